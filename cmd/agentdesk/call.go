package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/agentdesk/internal/desk"
	"github.com/ShayCichocki/agentdesk/internal/retry"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var (
	callProject string
	callTask    string
	callModel   string
	callTimeout time.Duration
	callSystem  string
	callQuiet   bool
)

var callCmd = &cobra.Command{
	Use:   "call <role> <prompt>",
	Short: "Run one resilient agent call",
	Long: `Run a single prompt as the given role and print the reply.

Roles: planner, architect, coder, reviewer, fixer, tester, documenter.

The call goes to the role's office, is retried up to the tier's budget and
fails over across providers. Provider switches, escalations and backoffs
are printed to stderr unless --quiet is set.

Use "-" as the prompt to read it from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callProject, "project", "", "Project id to charge the call to")
	callCmd.Flags().StringVar(&callTask, "task", "", "Task label recorded in the usage ledger")
	callCmd.Flags().StringVar(&callModel, "model", "", "Pin the model (escalation still overrides)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Per-attempt timeout (default from config)")
	callCmd.Flags().StringVar(&callSystem, "system", "", "Extra system prompt")
	callCmd.Flags().BoolVarP(&callQuiet, "quiet", "q", false, "Do not print notices")
}

func runCall(cmd *cobra.Command, args []string) error {
	role, err := models.ParseRole(args[0])
	if err != nil {
		return err
	}
	prompt, err := readPrompt(args[1])
	if err != nil {
		return err
	}

	var opts []desk.Option
	if !callQuiet {
		opts = append(opts, desk.WithNoticeFunc(printNotice))
	}
	_, d, err := openDesk(opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reply, err := d.Call(ctx, role, prompt, desk.CallOptions{
		System:    callSystem,
		Model:     callModel,
		Timeout:   callTimeout,
		ProjectID: callProject,
		Task:      callTask,
	})
	if err != nil {
		return describeCallError(err)
	}

	fmt.Println(reply.Text)
	if !callQuiet {
		fmt.Fprintf(os.Stderr, "%s %s via %s (%s, %d attempt(s))\n",
			color.GreenString("✓"), reply.Role, reply.Provider, reply.Model, reply.Attempts)
	}
	return nil
}

// readPrompt returns arg, or stdin when arg is "-".
func readPrompt(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt on stdin")
	}
	return prompt, nil
}

func printNotice(n retry.Notice) {
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.YellowString("⚠"), n.Kind, n.Message)
}

func describeCallError(err error) error {
	switch {
	case errors.Is(err, retry.ErrPaused):
		return fmt.Errorf("%w (raise budget.daily_cap or budget.monthly_cap, or disable budget.auto_pause)", err)
	case errors.Is(err, retry.ErrAgentUnavailable):
		return fmt.Errorf("%w (see `agentdesk stats` for recent provider failures)", err)
	}
	return err
}
