package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/agentdesk/internal/desk"
	"github.com/ShayCichocki/agentdesk/internal/tui"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var (
	batchWatch    bool
	batchParallel int
	batchOutDir   string
)

// BatchFile is the YAML document read by the batch command.
type BatchFile struct {
	// Project applies to calls that do not name their own.
	Project string      `yaml:"project"`
	Calls   []BatchCall `yaml:"calls"`
}

// BatchCall is one call in a batch file.
type BatchCall struct {
	Name    string        `yaml:"name"`
	Role    string        `yaml:"role"`
	Prompt  string        `yaml:"prompt"`
	System  string        `yaml:"system"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	Project string        `yaml:"project"`
	Task    string        `yaml:"task"`
}

// batchResult is the outcome of one batch call.
type batchResult struct {
	Call    BatchCall
	Reply   desk.Reply
	Err     error
	Elapsed time.Duration
}

var batchCmd = &cobra.Command{
	Use:   "batch <file.yaml>",
	Short: "Run many agent calls from a YAML file",
	Long: `Run every call listed in a YAML batch file.

Calls are submitted to their offices concurrently. When an office has no
idle worker the call waits in that office's queue. With --watch a live view
shows every office's workers, the queues and provider notices.

Example file:

  project: ab12cd34
  calls:
    - name: design
      role: architect
      prompt: Design a rate limiter for the ingest API.
    - name: tests
      role: tester
      prompt: Write table-driven tests for ParseDuration.
      timeout: 2m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVarP(&batchWatch, "watch", "w", false, "Show the live office view")
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 0, "Max calls in flight (0 = submit all)")
	batchCmd.Flags().StringVarP(&batchOutDir, "out", "o", "", "Write each reply to <out>/<name>.md")
}

// parseBatchFile decodes and validates a batch document.
func parseBatchFile(data []byte) (*BatchFile, error) {
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(bf.Calls) == 0 {
		return nil, errors.New("batch file has no calls")
	}

	seen := make(map[string]bool, len(bf.Calls))
	for i := range bf.Calls {
		c := &bf.Calls[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("call-%d", i+1)
		}
		if strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
			return nil, fmt.Errorf("calls[%d]: name %q must not contain path separators", i, c.Name)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("calls[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true

		role, err := models.ParseRole(c.Role)
		if err != nil {
			return nil, fmt.Errorf("calls[%d] %s: %w", i, c.Name, err)
		}
		c.Role = string(role)
		if strings.TrimSpace(c.Prompt) == "" {
			return nil, fmt.Errorf("calls[%d] %s: empty prompt", i, c.Name)
		}
		if c.Timeout < 0 {
			return nil, fmt.Errorf("calls[%d] %s: negative timeout", i, c.Name)
		}
		if c.Project == "" {
			c.Project = bf.Project
		}
	}
	return &bf, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	bf, err := parseBatchFile(data)
	if err != nil {
		return err
	}
	if batchOutDir != "" {
		if err := os.MkdirAll(batchOutDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if batchWatch {
		return runBatchWatch(ctx, bf)
	}

	_, d, err := openDesk(desk.WithNoticeFunc(printNotice))
	if err != nil {
		return err
	}
	defer d.Close()

	results := runCalls(ctx, d, bf.Calls, batchParallel, func(r batchResult) {
		if r.Err != nil {
			printStatus("✗", fmt.Sprintf("%s: %v", r.Call.Name, describeCallError(r.Err)), color.FgRed)
			return
		}
		printStatus("✓", fmt.Sprintf("%s: %s via %s in %s", r.Call.Name, r.Reply.Role, r.Reply.Provider,
			r.Elapsed.Round(time.Millisecond)), color.FgGreen)
	})
	return summarize(results)
}

// runBatchWatch runs the batch behind the office watch view.
func runBatchWatch(ctx context.Context, bf *BatchFile) error {
	feed := tui.NewFeed(512)
	cfg, d, err := openDesk(
		desk.WithStatusFunc(feed.Status),
		desk.WithNoticeFunc(feed.Notice),
		desk.WithAlertFunc(feed.Alert),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	// The view owns the terminal while it runs.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, _ := tui.NewWatchProgram(feed, d.Offices().GetAllStatus, len(bf.Calls), cfg.TUI.RefreshRate)

	var results []batchResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		results = runCalls(ctx, d, bf.Calls, batchParallel, func(r batchResult) {
			feed.Done(tui.CallDoneMsg{
				Label:    r.Call.Name,
				Provider: r.Reply.Provider,
				Attempts: r.Reply.Attempts,
				Err:      r.Err,
				Elapsed:  r.Elapsed,
			})
		})
		feed.Finish()
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("watch view: %w", err)
	}
	// Quitting the view abandons the remaining calls.
	cancel()
	<-done

	log.SetOutput(originalOutput)
	return summarize(results)
}

// runCalls runs calls with at most parallel in flight and reports each
// result to onDone as it finishes. Results keep the input order.
func runCalls(ctx context.Context, d *desk.Desk, calls []BatchCall, parallel int, onDone func(batchResult)) []batchResult {
	if parallel <= 0 || parallel > len(calls) {
		parallel = len(calls)
	}
	sem := make(chan struct{}, parallel)
	results := make([]batchResult, len(calls))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c BatchCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = batchResult{Call: c, Err: ctx.Err()}
				mu.Lock()
				onDone(results[i])
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			start := time.Now()
			reply, err := d.Call(ctx, models.Role(c.Role), c.Prompt, desk.CallOptions{
				System:      c.System,
				Model:       c.Model,
				Timeout:     c.Timeout,
				DisplayName: c.Name,
				ProjectID:   c.Project,
				Task:        taskLabel(c),
			})
			res := batchResult{Call: c, Reply: reply, Err: err, Elapsed: time.Since(start)}
			if err == nil && batchOutDir != "" {
				res.Err = writeReply(batchOutDir, c.Name, reply.Text)
			}
			results[i] = res

			mu.Lock()
			onDone(res)
			mu.Unlock()
		}(i, c)
	}
	wg.Wait()
	return results
}

func taskLabel(c BatchCall) string {
	if c.Task != "" {
		return c.Task
	}
	return c.Name
}

func writeReply(dir, name, text string) error {
	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(text+"\n"), 0644); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// summarize prints totals and returns an error when any call failed.
func summarize(results []batchResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	fmt.Printf("\n%d call(s): %s, %s\n", len(results),
		color.GreenString("%d ok", len(results)-failed),
		color.RedString("%d failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(results))
	}
	return nil
}
