package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/config"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long: `Inspect the effective agentdesk configuration.

Configuration is stored at ~/.config/agentdesk/config.yaml
Project-specific overrides can be placed in .agentdesk.yaml
Environment variables use the AGENTDESK_ prefix (AGENTDESK_RETRY_MIN_CHARS).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Print(formatConfig(cfg))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// formatConfig renders cfg as key: value lines. The API key is masked.
func formatConfig(cfg *config.Config) string {
	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "%s: %v\n", key, value)
	}

	key, _ := config.GetAPIKey(cfg)
	apiKeyDisplay := "(not set)"
	if key != "" {
		apiKeyDisplay = fmt.Sprintf("%s (%s)", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	} else if config.NeedsAPIKey(cfg) {
		apiKeyDisplay = color.YellowString("(not set, required for the anthropic provider)")
	}

	line("data_dir", cfg.DataDir)
	line("providers", strings.Join(cfg.Providers, ", "))
	line("anthropic.api_key", apiKeyDisplay)
	line("anthropic.use_bedrock", cfg.Anthropic.UseAWSBedrock)
	if cfg.Anthropic.UseAWSBedrock {
		line("anthropic.aws_region", cfg.Anthropic.AWSRegion)
		line("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	}
	line("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	line("cli.binary", cfg.CLI.Binary)
	line("cli.max_turns", cfg.CLI.MaxTurns)

	r := cfg.Retry
	line("retry.budgets", fmt.Sprintf("complex=%d standard=%d routine=%d full=%d",
		r.Budgets.Complex, r.Budgets.Standard, r.Budgets.Routine, r.Budgets.Full))
	line("retry.min_chars", r.MinChars)
	line("retry.breaker_threshold", r.BreakerThreshold)
	line("retry.backoff_step", r.BackoffStep)
	line("retry.heartbeat", r.Heartbeat)
	line("retry.timeout", r.Timeout)
	line("retry.fallback_model", r.FallbackModel)

	roleModels := cfg.RoleModels()
	roleModes := cfg.RoleModes()
	for _, role := range rolesWithOverrides(roleModels, roleModes) {
		if m, ok := roleModels[role]; ok {
			line("roles."+string(role)+".model", m)
		}
		if m, ok := roleModes[role]; ok {
			line("roles."+string(role)+".mode", m)
		}
	}

	for _, name := range cfg.OfficeNames() {
		line("offices."+name, strings.Join(cfg.Offices.Rosters[name], ", "))
	}
	line("offices.cooldown", cfg.Offices.Cooldown)

	line("budget.monthly_cap", cfg.Budget.MonthlyCap)
	line("budget.daily_cap", cfg.Budget.DailyCap)
	line("budget.thresholds", cfg.Budget.Thresholds)
	line("budget.webhooks", len(cfg.Budget.Webhooks))
	line("budget.auto_pause", cfg.Budget.AutoPause)
	line("tui.refresh_rate", cfg.TUI.RefreshRate)
	return b.String()
}

func rolesWithOverrides(modelMap map[models.Role]string, modeMap map[models.Role]models.ExecMode) []models.Role {
	seen := make(map[models.Role]bool)
	for r := range modelMap {
		seen[r] = true
	}
	for r := range modeMap {
		seen[r] = true
	}
	out := make([]models.Role, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
