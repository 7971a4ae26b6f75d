package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/internal/config"
)

var projectRecompute bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project budgets",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name> <budget-usd>",
	Short: "Create a project with a total budget",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid budget %q: %w", args[1], err)
		}
		store, _, err := openProjectStore()
		if err != nil {
			return err
		}
		p, err := store.Add(args[0], amount)
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Created project %s (%s) with $%.2f", color.CyanString(p.ID), p.Name, p.TotalBudget), color.FgGreen)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects and their spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := openProjectStore()
		if err != nil {
			return err
		}
		if projectRecompute {
			records, err := budget.LoadUsage(filepath.Join(cfg.DataDir, budget.UsageFileName))
			if err != nil {
				return fmt.Errorf("load usage: %w", err)
			}
			if err := store.RecomputeSpend(records); err != nil {
				return err
			}
		}

		projects := store.List()
		if len(projects) == 0 {
			fmt.Println("No projects. Create one with 'agentdesk project add <name> <budget>'.")
			return nil
		}
		fmt.Printf("%-10s %-24s %10s %10s %6s  %s\n", "ID", "NAME", "BUDGET", "SPENT", "USED", "CREATED")
		for _, p := range projects {
			pct := budget.UsagePercent(p.TotalBudget, p.Spent)
			used := fmt.Sprintf("%5.1f%%", pct)
			switch {
			case pct >= 100:
				used = color.RedString(used)
			case pct >= 75:
				used = color.YellowString(used)
			}
			fmt.Printf("%-10s %-24s %10.2f %10.2f %s  %s\n",
				p.ID, p.Name, p.TotalBudget, p.Spent, used, p.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	projectListCmd.Flags().BoolVar(&projectRecompute, "recompute", false, "Recompute spend from the usage ledger")
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
}

func openProjectStore() (*budget.ProjectStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := budget.OpenProjectStore(filepath.Join(cfg.DataDir, budget.ProjectsFileName))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}
