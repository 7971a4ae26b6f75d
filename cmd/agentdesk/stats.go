package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/state"
)

var (
	statsJSON  bool
	statsPurge time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-model call statistics",
	Long: `Rank every agent/model pair by success rate, latency and cost.

Every provider attempt is recorded, including failures, so a model that
often times out or returns implausible output ranks below one that answers
on the first try.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output in JSON format")
	statsCmd.Flags().DurationVar(&statsPurge, "purge", 0, "Delete rows older than this age first (e.g. 720h)")
}

var (
	statsHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	statsGood   = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	statsBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := state.DefaultDBPath(cfg.DataDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No calls recorded yet. Run 'agentdesk call <role> <prompt>' first.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open stats database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate stats database: %w", err)
	}

	if statsPurge > 0 {
		n, err := db.PurgeOlderThan(statsPurge)
		if err != nil {
			return err
		}
		if !statsJSON {
			printStatus("✓", fmt.Sprintf("Purged %d row(s) older than %s", n, statsPurge), color.FgGreen)
		}
	}

	scores, err := db.Scores()
	if err != nil {
		return err
	}
	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if scores == nil {
			scores = []state.ModelScore{}
		}
		return enc.Encode(scores)
	}

	if len(scores) == 0 {
		fmt.Println("No calls recorded.")
		return nil
	}

	fmt.Println(statsHeader.Render(fmt.Sprintf("%-12s %-34s %6s %8s %10s %10s %7s",
		"AGENT", "MODEL", "CALLS", "SUCCESS", "LATENCY", "COST", "SCORE")))
	for _, s := range scores {
		success := fmt.Sprintf("%7.1f%%", s.SuccessRate*100)
		if s.SuccessRate >= 0.9 {
			success = statsGood.Render(success)
		} else if s.SuccessRate < 0.5 {
			success = statsBad.Render(success)
		}
		fmt.Printf("%-12s %-34s %6d %s %10s %10s %7.1f\n",
			s.Agent, s.Model, s.Calls, success,
			(time.Duration(s.AvgLatencyMS) * time.Millisecond).Round(time.Millisecond),
			fmt.Sprintf("$%.4f", s.TotalCostUSD), s.CompositeScore)
	}
	return nil
}
