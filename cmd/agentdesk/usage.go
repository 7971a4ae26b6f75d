package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var (
	usageWindow  int
	usageDays    int
	usageProject string
	usageJSON    bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show spend, burn rate and forecast",
	Long: `Summarize the usage ledger.

Shows spend per model, the burn rate over a trailing window and a linear
forecast of daily spend. The forecast needs at least 7 days of data.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().IntVar(&usageWindow, "window", 7, "Burn-rate window in days")
	usageCmd.Flags().IntVar(&usageDays, "days", 30, "Days to forecast")
	usageCmd.Flags().StringVar(&usageProject, "project", "", "Only records charged to this project")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Output in JSON format")
}

// usageReport is the usage command's output.
type usageReport struct {
	Records  int                `json:"records"`
	Total    float64            `json:"total"`
	ByModel  map[string]float64 `json:"by_model"`
	BurnRate budget.BurnRate    `json:"burn_rate"`
	Forecast budget.Forecast    `json:"forecast"`
}

func buildUsageReport(records []models.UsageRecord, project string, window, days int, now time.Time) usageReport {
	if project != "" {
		filtered := records[:0:0]
		for _, r := range records {
			if r.ProjectID == project {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	rep := usageReport{Records: len(records), ByModel: make(map[string]float64)}
	for _, r := range records {
		rep.Total += r.CostUSD
		rep.ByModel[r.Model] += r.CostUSD
	}
	rep.BurnRate = budget.CalculateBurnRate(records, window, now)
	rep.Forecast = budget.PredictCosts(records, days)
	return rep
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	records, err := budget.LoadUsage(filepath.Join(cfg.DataDir, budget.UsageFileName))
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}

	rep := buildUsageReport(records, usageProject, usageWindow, usageDays, time.Now())
	if usageJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	bold := color.New(color.Bold)
	bold.Println("Spend")
	fmt.Printf("  Records: %d\n", rep.Records)
	fmt.Printf("  Total:   $%.4f\n", rep.Total)

	modelNames := make([]string, 0, len(rep.ByModel))
	for m := range rep.ByModel {
		modelNames = append(modelNames, m)
	}
	sort.Strings(modelNames)
	for _, m := range modelNames {
		fmt.Printf("    %-36s $%.4f\n", m, rep.ByModel[m])
	}

	br := rep.BurnRate
	fmt.Println()
	bold.Printf("Burn rate (last %d days)\n", br.WindowDays)
	fmt.Printf("  Daily:   $%.4f\n", br.Daily)
	fmt.Printf("  Weekly:  $%.4f\n", br.Weekly)
	fmt.Printf("  Monthly: $%.4f\n", br.Monthly)
	if cfg.Budget.MonthlyCap > 0 {
		pct := budget.UsagePercent(cfg.Budget.MonthlyCap, br.Monthly)
		c := color.GreenString
		if pct >= 100 {
			c = color.RedString
		} else if pct >= 75 {
			c = color.YellowString
		}
		fmt.Printf("  Projected vs monthly cap: %s\n", c("%.0f%% of $%.2f", pct, cfg.Budget.MonthlyCap))
	}

	f := rep.Forecast
	fmt.Println()
	bold.Printf("Forecast (next %d days)\n", usageDays)
	if !f.Available {
		fmt.Printf("  %s\n", color.YellowString(f.Reason))
		return nil
	}
	fmt.Printf("  Projected total: $%.4f\n", f.ProjectedTotal)
	fmt.Printf("  Trend:           %s\n", f.Trend)
	fmt.Printf("  Confidence:      %s (%d days of data)\n", f.Confidence, f.DaysOfData)
	return nil
}
