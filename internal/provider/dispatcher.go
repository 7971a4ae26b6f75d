package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Dispatcher defaults.
const (
	DefaultTimeout   = 10 * time.Minute
	DefaultJoinGrace = 5 * time.Second
)

// UsageRecorder receives one usage record per call. It must not block.
type UsageRecorder interface {
	RecordUsage(rec models.UsageRecord)
}

// StatsRecorder receives one stats row per call.
type StatsRecorder interface {
	RecordCall(row models.ModelStatsRow) error
}

// Call is one logical dispatch.
type Call struct {
	// RunID keys the stats row. A random id is assigned when empty.
	RunID string
	// Agent is the display name recorded in usage and stats.
	Agent     string
	Role      models.Role
	Model     string
	Prompt    string
	System    string
	Timeout   time.Duration
	ProjectID string
	Task      string
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Name identifies the provider in logs and notices.
	Name string
	// Streaming serves roles in streaming mode.
	Streaming Backend
	// OneShot serves roles in one-shot mode.
	OneShot Backend
	// Modes overrides the per-role execution mode.
	Modes map[models.Role]models.ExecMode
	// Models overrides the per-role model when a call names none.
	Models map[models.Role]string
	Usage  UsageRecorder
	Stats  StatsRecorder
	// Pricing overrides the default price table.
	Pricing        models.PriceTable
	DefaultTimeout time.Duration
	// JoinGrace is how long to wait for a backend after cancelling it.
	JoinGrace time.Duration
}

// Dispatcher runs calls on the backend selected by role mode, bounds them
// with a timeout, and records usage and stats for every call.
type Dispatcher struct {
	cfg DispatcherConfig
	now func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.JoinGrace <= 0 {
		cfg.JoinGrace = DefaultJoinGrace
	}
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	return &Dispatcher{cfg: cfg, now: time.Now}
}

// Name returns the provider name.
func (d *Dispatcher) Name() string {
	return d.cfg.Name
}

// ModeFor returns the execution mode for role.
func (d *Dispatcher) ModeFor(role models.Role) models.ExecMode {
	if m, ok := d.cfg.Modes[role]; ok && m.Valid() {
		return m
	}
	if spec, ok := role.Spec(); ok {
		return spec.Mode
	}
	return models.ExecOneShot
}

// ModelFor returns the model for role when a call does not name one.
func (d *Dispatcher) ModelFor(role models.Role) string {
	if m := d.cfg.Models[role]; m != "" {
		return m
	}
	if spec, ok := role.Spec(); ok {
		return spec.Tier.DefaultModel()
	}
	return models.ModelSonnet
}

func (d *Dispatcher) backendFor(mode models.ExecMode) Backend {
	if mode == models.ExecStreaming && d.cfg.Streaming != nil {
		return d.cfg.Streaming
	}
	if d.cfg.OneShot != nil {
		return d.cfg.OneShot
	}
	return d.cfg.Streaming
}

type outcome struct {
	resp Response
	err  error
}

// Dispatch returns the call's text or a classified *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (string, error) {
	if call.RunID == "" {
		call.RunID = uuid.New().String()[:8]
	}
	if call.Model == "" {
		call.Model = d.ModelFor(call.Role)
	}
	if call.Agent == "" {
		call.Agent = string(call.Role)
	}
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = d.cfg.DefaultTimeout
	}

	backend := d.backendFor(d.ModeFor(call.Role))
	if backend == nil {
		err := &Error{Kind: KindUnavailable, Backend: d.cfg.Name, Model: call.Model, Err: errors.New("no backend configured")}
		d.record(call, Response{}, err, 0)
		return "", err
	}

	start := d.now()
	resp, err := d.run(ctx, backend, call, timeout)
	latency := d.now().Sub(start)

	if err == nil && resp.Text == "" {
		err = ErrEmptyResponse
	}
	var perr *Error
	if err != nil {
		perr = classify(backend.Name(), call.Model, err)
	}
	d.record(call, resp, perr, latency)

	if perr != nil {
		return "", perr
	}
	return resp.Text, nil
}

// run executes the backend on its own goroutine. The result channel is
// written exactly once. On timeout the backend's context is cancelled and
// the join waits at most JoinGrace before abandoning the goroutine.
func (d *Dispatcher) run(ctx context.Context, backend Backend, call Call, timeout time.Duration) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		resp, err := backend.Complete(callCtx, Request{
			Role:   call.Role,
			Model:  call.Model,
			Prompt: call.Prompt,
			System: call.System,
		})
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-callCtx.Done():
	}

	cancel()
	grace := time.NewTimer(d.cfg.JoinGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		log.Printf("[provider] %s: %s backend did not stop within %s, abandoning", d.cfg.Name, backend.Name(), d.cfg.JoinGrace)
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Response{}, fmt.Errorf("call timed out after %s: %w", timeout, context.DeadlineExceeded)
}

// record writes one usage record and one stats row. Neither may fail the call.
func (d *Dispatcher) record(call Call, resp Response, callErr *Error, latency time.Duration) {
	promptTokens := resp.PromptTokens
	completionTokens := resp.CompletionTokens
	estimated := !resp.Exact
	if estimated {
		promptTokens = models.EstimateTokens(call.System + call.Prompt)
		completionTokens = models.EstimateTokens(resp.Text)
	}
	cost := d.cfg.Pricing.Cost(call.Model, promptTokens, completionTokens)
	now := d.now()

	if d.cfg.Usage != nil {
		d.cfg.Usage.RecordUsage(models.UsageRecord{
			Timestamp:        now,
			RunID:            call.RunID,
			Agent:            call.Agent,
			Model:            call.Model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          cost,
			ProjectID:        call.ProjectID,
			Task:             call.Task,
			Estimated:        estimated,
		})
	}

	if d.cfg.Stats != nil {
		row := models.ModelStatsRow{
			RunID:            call.RunID,
			Agent:            call.Agent,
			Model:            call.Model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          cost,
			LatencyMS:        latency.Milliseconds(),
			Success:          callErr == nil,
			CreatedAt:        now,
		}
		if callErr != nil {
			row.ErrorKind = callErr.Kind.String()
		}
		if err := d.cfg.Stats.RecordCall(row); err != nil {
			log.Printf("[provider] %s: failed to record stats for run %s: %v", d.cfg.Name, call.RunID, err)
		}
	}
}
