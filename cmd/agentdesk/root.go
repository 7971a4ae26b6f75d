package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/config"
	"github.com/ShayCichocki/agentdesk/internal/desk"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentdesk",
	Short: "Resilient LLM agent calls with budgets",
	Long: `agentdesk runs role-based LLM agent calls through offices of named workers.

Each call is retried with a per-tier budget, checked for plausible output,
escalated on demand and failed over to the next provider when one is
exhausted. Every call is metered into a usage ledger with spend alerts,
burn-rate and forecast reporting.

Configuration is read from ~/.config/agentdesk/config.yaml and an optional
.agentdesk.yaml in the current directory.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (overrides the default lookup)")

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(escalateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the --config file when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// openDesk loads the config and opens a desk with opts.
func openDesk(opts ...desk.Option) (*config.Config, *desk.Desk, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	d, err := desk.Open(cfg, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open desk: %w", err)
	}
	return cfg, d, nil
}

// printStatus prints a colored status line.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
