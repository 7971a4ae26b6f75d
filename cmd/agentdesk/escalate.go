package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/signals"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var escalateCmd = &cobra.Command{
	Use:   "escalate <role> [target-role]",
	Short: "Escalate the next call of a role",
	Long: `Ask a running desk to hand the next call of <role> to a higher tier.

Without a target the next tier's canonical role is used (tester -> coder,
coder -> architect). The signal is consumed by the next attempt for <role>
and only ever moves a call up a tier.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		var target models.Role
		if len(args) == 2 {
			target, err = models.ParseRole(args[1])
			if err != nil {
				return err
			}
			if target.MustSpec().Tier <= role.MustSpec().Tier {
				return fmt.Errorf("%s is not above %s (tiers %s and %s)", target, role,
					target.MustSpec().Tier, role.MustSpec().Tier)
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := signals.Send(cfg.DataDir, role, target); err != nil {
			return fmt.Errorf("send escalation: %w", err)
		}

		dest := string(target)
		if dest == "" {
			dest = "next tier"
		}
		printStatus("✓", fmt.Sprintf("Escalation queued: %s -> %s", role, color.CyanString(dest)), color.FgGreen)
		return nil
	},
}
