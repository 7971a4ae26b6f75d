// Package config handles configuration loading and management for agentdesk.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Provider names understood by the failover chain.
const (
	ProviderAnthropic = "anthropic"
	ProviderClaudeCLI = "claude-cli"
)

// Config holds all configuration for agentdesk.
type Config struct {
	DataDir   string                `mapstructure:"data_dir"`
	Anthropic AnthropicConfig       `mapstructure:"anthropic"`
	CLI       CLIConfig             `mapstructure:"cli"`
	Providers []string              `mapstructure:"providers"`
	Retry     RetryConfig           `mapstructure:"retry"`
	Roles     map[string]RoleConfig `mapstructure:"roles"`
	Offices   OfficesConfig         `mapstructure:"offices"`
	Budget    models.BudgetConfig   `mapstructure:"budget"`
	Alerts    AlertsConfig          `mapstructure:"alerts"`
	Ledger    LedgerConfig          `mapstructure:"ledger"`
	Pricing   models.PriceTable     `mapstructure:"pricing"`
	TUI       TUIConfig             `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	UseAWSBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
	BaseURL       string `mapstructure:"base_url"`
	MaxRetries    int    `mapstructure:"max_retries"`
	MaxTokens     int64  `mapstructure:"max_tokens"`
}

// CLIConfig holds settings for the claude CLI provider.
type CLIConfig struct {
	Binary   string `mapstructure:"binary"`
	MaxTurns int    `mapstructure:"max_turns"`
	WorkDir  string `mapstructure:"work_dir"`
}

// RetriesConfig holds per-tier retry budgets.
type RetriesConfig struct {
	Complex  int `mapstructure:"complex"`
	Standard int `mapstructure:"standard"`
	Routine  int `mapstructure:"routine"`
	Full     int `mapstructure:"full"`
}

// RetryConfig holds retry engine and dispatcher settings.
type RetryConfig struct {
	Budgets          RetriesConfig `mapstructure:"budgets"`
	MinChars         int           `mapstructure:"min_chars"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BackoffStep      time.Duration `mapstructure:"backoff_step"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
	FallbackModel    string        `mapstructure:"fallback_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	JoinGrace        time.Duration `mapstructure:"join_grace"`
}

// RoleConfig overrides a role's model or execution mode.
type RoleConfig struct {
	Model string `mapstructure:"model"`
	Mode  string `mapstructure:"mode"`
}

// OfficesConfig holds worker rosters.
type OfficesConfig struct {
	// Rosters maps office name to worker names.
	Rosters  map[string][]string `mapstructure:"rosters"`
	Cooldown time.Duration       `mapstructure:"cooldown"`
}

// AlertsConfig holds webhook delivery settings.
type AlertsConfig struct {
	// RatePerSecond throttles webhook posts across all sinks.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// LedgerConfig holds usage ledger settings.
type LedgerConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, AGENTDESK_*)
// 2. Project config (.agentdesk.yaml in current directory or parent)
// 3. User config (~/.config/agentdesk/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return decode(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	return decode(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("AGENTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "AGENTDESK_ANTHROPIC_API_KEY")
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.DataDir = expandHome(expandEnv(cfg.DataDir))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.max_retries", d.Anthropic.MaxRetries)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)

	v.SetDefault("cli.binary", d.CLI.Binary)
	v.SetDefault("cli.max_turns", d.CLI.MaxTurns)
	v.SetDefault("cli.work_dir", "")

	v.SetDefault("providers", d.Providers)

	v.SetDefault("retry.budgets.complex", d.Retry.Budgets.Complex)
	v.SetDefault("retry.budgets.standard", d.Retry.Budgets.Standard)
	v.SetDefault("retry.budgets.routine", d.Retry.Budgets.Routine)
	v.SetDefault("retry.budgets.full", d.Retry.Budgets.Full)
	v.SetDefault("retry.min_chars", d.Retry.MinChars)
	v.SetDefault("retry.breaker_threshold", d.Retry.BreakerThreshold)
	v.SetDefault("retry.backoff_step", d.Retry.BackoffStep.String())
	v.SetDefault("retry.heartbeat", d.Retry.Heartbeat.String())
	v.SetDefault("retry.fallback_model", d.Retry.FallbackModel)
	v.SetDefault("retry.timeout", d.Retry.Timeout.String())
	v.SetDefault("retry.join_grace", d.Retry.JoinGrace.String())

	for office, roster := range d.Offices.Rosters {
		v.SetDefault("offices.rosters."+office, roster)
	}
	v.SetDefault("offices.cooldown", d.Offices.Cooldown.String())

	v.SetDefault("budget.monthly_cap", d.Budget.MonthlyCap)
	v.SetDefault("budget.daily_cap", d.Budget.DailyCap)
	v.SetDefault("budget.thresholds", d.Budget.Thresholds)
	v.SetDefault("budget.webhooks", []string{})
	v.SetDefault("budget.auto_pause", d.Budget.AutoPause)

	v.SetDefault("alerts.rate_per_second", d.Alerts.RatePerSecond)
	v.SetDefault("alerts.burst", d.Alerts.Burst)

	v.SetDefault("ledger.buffer", d.Ledger.Buffer)

	v.SetDefault("tui.refresh_rate", d.TUI.RefreshRate.String())
}

// getUserConfigDir returns the XDG config directory for agentdesk.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentdesk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agentdesk")
	}
	return filepath.Join(home, ".config", "agentdesk")
}

// defaultDataDir returns the XDG data directory for agentdesk.
func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "agentdesk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agentdesk")
	}
	return filepath.Join(home, ".local", "share", "agentdesk")
}

// findProjectConfig searches for .agentdesk.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".agentdesk.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Anthropic: AnthropicConfig{
			MaxRetries: 2,
			MaxTokens:  8192,
		},
		CLI: CLIConfig{
			Binary:   "claude",
			MaxTurns: 3,
		},
		Providers: []string{ProviderAnthropic, ProviderClaudeCLI},
		Retry: RetryConfig{
			Budgets: RetriesConfig{
				Complex:  1,
				Standard: 2,
				Routine:  2,
				Full:     5,
			},
			MinChars:         200,
			BreakerThreshold: 5,
			BackoffStep:      2 * time.Second,
			Heartbeat:        30 * time.Second,
			FallbackModel:    models.ModelSonnet,
			Timeout:          10 * time.Minute,
			JoinGrace:        5 * time.Second,
		},
		Offices: OfficesConfig{
			Rosters: map[string][]string{
				models.OfficePlanning: {"ada", "grace"},
				models.OfficeCoding:   {"linus", "ken", "rob"},
				models.OfficeQA:       {"margaret", "barbara"},
			},
			Cooldown: time.Second,
		},
		Budget: models.BudgetConfig{
			Thresholds: []float64{50, 75, 90, 100},
		},
		Alerts: AlertsConfig{
			RatePerSecond: 1,
			Burst:         5,
		},
		Ledger: LedgerConfig{
			Buffer: 256,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// Validate checks retry budget ordering, floors, providers, role overrides,
// rosters and alert thresholds.
func (c *Config) Validate() error {
	b := c.Retry.Budgets
	if b.Complex < 1 || b.Standard < 1 || b.Routine < 1 || b.Full < 1 {
		return fmt.Errorf("retry budgets must be at least 1")
	}
	if b.Complex > b.Standard || b.Standard > b.Routine || b.Routine > b.Full {
		return fmt.Errorf("retry budgets must satisfy complex <= standard <= routine <= full, got %d/%d/%d/%d",
			b.Complex, b.Standard, b.Routine, b.Full)
	}
	if c.Retry.MinChars < 1 {
		return fmt.Errorf("retry.min_chars must be positive, got %d", c.Retry.MinChars)
	}
	if c.Retry.BreakerThreshold < 0 {
		return fmt.Errorf("retry.breaker_threshold must not be negative")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for _, p := range c.Providers {
		if p != ProviderAnthropic && p != ProviderClaudeCLI {
			return fmt.Errorf("unknown provider %q", p)
		}
	}

	for name, rc := range c.Roles {
		if _, err := models.ParseRole(name); err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		if rc.Mode != "" && !models.ExecMode(rc.Mode).Valid() {
			return fmt.Errorf("roles.%s.mode: unknown mode %q", name, rc.Mode)
		}
	}

	for _, role := range models.AllRoles {
		office := role.MustSpec().Office
		if len(c.Offices.Rosters[office]) == 0 {
			return fmt.Errorf("office %q has no workers (needed by role %s)", office, role)
		}
	}

	return c.Budget.Validate()
}

// RoleModels returns the per-role model overrides.
func (c *Config) RoleModels() map[models.Role]string {
	out := make(map[models.Role]string)
	for name, rc := range c.Roles {
		if rc.Model == "" {
			continue
		}
		if role, err := models.ParseRole(name); err == nil {
			out[role] = rc.Model
		}
	}
	return out
}

// RoleModes returns the per-role execution mode overrides.
func (c *Config) RoleModes() map[models.Role]models.ExecMode {
	out := make(map[models.Role]models.ExecMode)
	for name, rc := range c.Roles {
		if rc.Mode == "" {
			continue
		}
		if role, err := models.ParseRole(name); err == nil {
			out[role] = models.ExecMode(rc.Mode)
		}
	}
	return out
}

// OfficeNames returns the configured office names, sorted.
func (c *Config) OfficeNames() []string {
	names := make([]string, 0, len(c.Offices.Rosters))
	for name := range c.Offices.Rosters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
