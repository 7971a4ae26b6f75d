package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/budget"
)

var alertsJSON bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate budget thresholds now",
	Long: `Evaluate the daily and monthly caps and every project budget.

Alerts that fire are delivered to the configured webhooks and recorded so
they do not fire again in the same period. Alerts that already fired are
not repeated.`,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output fired alerts in JSON format")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	cfg, d, err := openDesk()
	if err != nil {
		return err
	}
	defer d.Close()

	fired := d.CheckAlerts(context.Background())
	if alertsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if fired == nil {
			fired = []budget.Alert{}
		}
		return enc.Encode(fired)
	}

	if len(fired) == 0 {
		printStatus("✓", "No new alerts", color.FgGreen)
	}
	for _, a := range fired {
		scope := a.Scope
		if a.ProjectID != "" {
			scope += " " + a.ProjectID
		}
		printStatus("⚠", fmt.Sprintf("%s %s reached %.0f%% ($%.2f of $%.2f)",
			scope, a.Period, a.UsagePercent, a.Spent, a.Budget), color.FgYellow)
	}

	for _, p := range d.Projects().List() {
		pct := budget.UsagePercent(p.TotalBudget, p.Spent)
		fmt.Printf("  %-10s %-24s %5.1f%%  $%.2f remaining\n", p.ID, p.Name, pct, p.Remaining())
	}

	if delivered, failed := d.Alerts().DeliveryStats(); delivered+failed > 0 {
		fmt.Printf("Webhooks: %d delivered, %d failed\n", delivered, failed)
	}
	if d.Alerts().Paused() {
		printStatus("✗", "Spending is paused (auto_pause)", color.FgRed)
	}
	if len(cfg.Budget.Webhooks) == 0 && len(fired) > 0 {
		fmt.Println(color.HiBlackString("No webhooks configured; set budget.webhooks to deliver alerts."))
	}
	return nil
}
