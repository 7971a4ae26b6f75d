// Package retry drives one logical agent call through model selection,
// dispatch, plausibility gating and bounded retries, and decides when the
// caller should fail over to another provider.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/agentdesk/internal/provider"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Engine defaults.
const (
	DefaultMinChars         = 200
	DefaultBreakerThreshold = 5
	DefaultBackoffStep      = 2 * time.Second
	DefaultHeartbeat        = 30 * time.Second
)

// Outcome is how a logical call ended.
type Outcome string

const (
	// OutcomeSuccess means the output passed the role's gate.
	OutcomeSuccess Outcome = "success"
	// OutcomeExhausted means every attempt failed retryably.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeHardLimit means a non-retryable provider failure ended the call.
	OutcomeHardLimit Outcome = "hard_limit"
	// OutcomeCircuitOpen means the short-response breaker forced a switch.
	OutcomeCircuitOpen Outcome = "circuit_open"
	// OutcomeUnavailable means every model this provider could substitute was unavailable.
	OutcomeUnavailable Outcome = "model_unavailable"
	// OutcomeAborted means the caller's context ended the call.
	OutcomeAborted Outcome = "aborted"
	// OutcomePaused means the budget guard refused the call.
	OutcomePaused Outcome = "paused"
)

// Failover reports whether the caller should re-issue the call on another provider.
func (o Outcome) Failover() bool {
	switch o {
	case OutcomeExhausted, OutcomeHardLimit, OutcomeCircuitOpen, OutcomeUnavailable:
		return true
	default:
		return false
	}
}

// Dispatcher sends one attempt to a provider.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, call provider.Call) (string, error)
}

// EscalationSource yields a one-call escalation target for a role.
type EscalationSource interface {
	Take(role models.Role) (models.Role, bool)
}

// BudgetGuard reports whether spending is paused.
type BudgetGuard interface {
	Paused() bool
}

// Budgets are per-tier retry budgets. Costlier tiers fail fast.
type Budgets struct {
	Complex  int `mapstructure:"complex"`
	Standard int `mapstructure:"standard"`
	Routine  int `mapstructure:"routine"`
	Full     int `mapstructure:"full"`
}

// DefaultBudgets returns the default retry budgets.
func DefaultBudgets() Budgets {
	return Budgets{Complex: 1, Standard: 2, Routine: 2, Full: 5}
}

// Validate checks complex <= standard <= routine <= full and that every budget is positive.
func (b Budgets) Validate() error {
	if b.Complex < 1 || b.Standard < 1 || b.Routine < 1 || b.Full < 1 {
		return fmt.Errorf("retry budgets must be at least 1: %+v", b)
	}
	if b.Complex > b.Standard || b.Standard > b.Routine || b.Routine > b.Full {
		return fmt.Errorf("retry budgets must satisfy complex <= standard <= routine <= full: %+v", b)
	}
	return nil
}

// For returns the attempt budget for a role.
func (b Budgets) For(spec models.RoleSpec) int {
	switch {
	case spec.Tier == models.TierComplex:
		return b.Complex
	case spec.HeavyUse:
		return b.Full
	case spec.Tier == models.TierStandard:
		return b.Standard
	default:
		return b.Routine
	}
}

// Config configures an Engine.
type Config struct {
	Budgets Budgets
	// MinChars is the plausibility floor for length-gated roles.
	MinChars int
	// BreakerThreshold is the global short-response tally that arms the breaker.
	BreakerThreshold int
	// BackoffStep is multiplied by the attempt number on rate limits.
	BackoffStep time.Duration
	// Heartbeat is the progress log interval while an attempt is in flight.
	Heartbeat time.Duration
	// FallbackModel replaces the model after an unavailable-model failure.
	FallbackModel string
	// Models overrides the per-role model.
	Models map[models.Role]string
}

// DefaultConfig returns an engine configuration with default values.
func DefaultConfig() Config {
	return Config{
		Budgets:          DefaultBudgets(),
		MinChars:         DefaultMinChars,
		BreakerThreshold: DefaultBreakerThreshold,
		BackoffStep:      DefaultBackoffStep,
		Heartbeat:        DefaultHeartbeat,
	}
}

// Request is one logical call.
type Request struct {
	Role   models.Role
	Prompt string
	System string
	// Model pins the model. Ignored when an escalation applies.
	Model       string
	Timeout     time.Duration
	DisplayName string
	ProjectID   string
	Task        string
}

// Result is what a logical call produced. Text is set only when OK.
type Result struct {
	Text     string
	OK       bool
	Outcome  Outcome
	Attempts int
	// Role is the effective role after any escalation.
	Role     models.Role
	Model    string
	Provider string
	// Err is the last failure seen, if any.
	Err error
}

// Engine runs logical calls against one provider.
type Engine struct {
	cfg        Config
	dispatcher Dispatcher
	breaker    *Breaker
	escalation EscalationSource
	guard      BudgetGuard
	notify     NoticeFunc
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBreaker shares a breaker across engines.
func WithBreaker(b *Breaker) Option {
	return func(e *Engine) {
		e.breaker = b
	}
}

// WithEscalation sets the escalation source.
func WithEscalation(src EscalationSource) Option {
	return func(e *Engine) {
		e.escalation = src
	}
}

// WithBudgetGuard sets the budget guard.
func WithBudgetGuard(g BudgetGuard) Option {
	return func(e *Engine) {
		e.guard = g
	}
}

// WithNotices sets the notice callback.
func WithNotices(fn NoticeFunc) Option {
	return func(e *Engine) {
		e.notify = fn
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// New creates an engine on dispatcher.
func New(dispatcher Dispatcher, cfg Config, opts ...Option) *Engine {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Budgets == (Budgets{}) {
		cfg.Budgets = DefaultBudgets()
	}

	e := &Engine{
		cfg:        cfg,
		dispatcher: dispatcher,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breaker == nil {
		e.breaker = NewBreaker(cfg.BreakerThreshold)
	}
	return e
}

// Name returns the provider name.
func (e *Engine) Name() string {
	return e.dispatcher.Name()
}

// Breaker returns the engine's short-response breaker.
func (e *Engine) Breaker() *Breaker {
	return e.breaker
}

// Call runs the logical call until it passes its gate, exhausts its budget,
// or hits a failure that warrants failover. It never returns an error; the
// Outcome says what happened.
func (e *Engine) Call(ctx context.Context, req Request) Result {
	res := Result{Role: req.Role, Provider: e.Name()}

	if e.guard != nil && e.guard.Paused() {
		log.Printf("[retry] %s: spending paused, refusing %s call", e.Name(), req.Role)
		res.Outcome = OutcomePaused
		return res
	}

	spec, ok := req.Role.Spec()
	if !ok {
		res.Outcome = OutcomeExhausted
		res.Err = fmt.Errorf("unknown role %q", req.Role)
		return res
	}

	role, model := req.Role, req.Model
	if target, escalated := e.escalate(req.Role, spec); escalated {
		role = target
		spec = target.MustSpec()
		model = ""
		e.emit(Notice{Kind: NoticeEscalated, Role: role, Message: fmt.Sprintf("%s escalated to %s", req.Role, role)})
	}
	if model == "" {
		model = e.modelFor(role, spec)
	}
	res.Role = role

	name := req.DisplayName
	if name == "" {
		name = string(role)
	}
	maxAttempts := e.cfg.Budgets.For(spec)
	unavailable := make(map[string]bool)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeAborted
			res.Err = err
			return res
		}
		res.Attempts = attempt
		res.Model = model

		text, err := e.dispatch(ctx, provider.Call{
			Agent:     name,
			Role:      role,
			Model:     model,
			Prompt:    req.Prompt,
			System:    req.System,
			Timeout:   req.Timeout,
			ProjectID: req.ProjectID,
			Task:      req.Task,
		}, attempt, maxAttempts)

		if err != nil {
			res.Err = err
			if ctx.Err() != nil {
				res.Outcome = OutcomeAborted
				return res
			}

			kind := provider.KindOf(err)
			if kind == provider.KindHardLimit || provider.ContainsHardLimit(err.Error()) || !kind.Retryable() {
				log.Printf("[retry] %s: %s attempt %d/%d non-retryable (%s): %v", e.Name(), name, attempt, maxAttempts, kind, err)
				res.Outcome = OutcomeHardLimit
				return res
			}

			log.Printf("[retry] %s: %s attempt %d/%d failed (%s): %v", e.Name(), name, attempt, maxAttempts, kind, err)
			switch kind {
			case provider.KindUnavailable:
				unavailable[model] = true
				fb := e.cfg.FallbackModel
				if fb == "" || unavailable[fb] {
					log.Printf("[retry] %s: %s model %s unavailable, no substitute left", e.Name(), name, model)
					res.Outcome = OutcomeUnavailable
					return res
				}
				log.Printf("[retry] %s: %s model %s unavailable, switching to %s", e.Name(), name, model, fb)
				model = fb
			case provider.KindEmpty:
				if e.breaker.RecordShort(role) {
					return e.tripped(res, name)
				}
			case provider.KindRateLimited:
				if attempt < maxAttempts {
					if err := e.backoff(ctx, role, attempt); err != nil {
						res.Outcome = OutcomeAborted
						res.Err = err
						return res
					}
				}
			}
			continue
		}

		cleaned := StripReasoning(text)
		if provider.ContainsHardLimit(cleaned) {
			log.Printf("[retry] %s: %s hit usage limit", e.Name(), name)
			res.Outcome = OutcomeHardLimit
			res.Err = errors.New("usage limit reached")
			return res
		}

		if ok, reason := Plausible(spec, cleaned, e.cfg.MinChars); !ok {
			log.Printf("[retry] %s: %s attempt %d/%d rejected: %s", e.Name(), name, attempt, maxAttempts, reason)
			res.Err = fmt.Errorf("implausible output: %s", reason)
			if e.breaker.RecordShort(role) {
				return e.tripped(res, name)
			}
			continue
		}

		e.breaker.RecordSuccess()
		res.Text = cleaned
		res.OK = true
		res.Outcome = OutcomeSuccess
		return res
	}

	log.Printf("[retry] %s: %s exhausted after %d attempt(s)", e.Name(), name, res.Attempts)
	res.Outcome = OutcomeExhausted
	return res
}

func (e *Engine) tripped(res Result, name string) Result {
	global, _ := e.breaker.Counts(res.Role)
	log.Printf("[retry] %s: short-response breaker open (%d global), abandoning %s", e.Name(), global, name)
	res.Outcome = OutcomeCircuitOpen
	return res
}

// escalate consumes a pending escalation. Only moves to a higher tier count.
func (e *Engine) escalate(role models.Role, spec models.RoleSpec) (models.Role, bool) {
	if e.escalation == nil {
		return "", false
	}
	target, ok := e.escalation.Take(role)
	if !ok {
		return "", false
	}
	targetSpec, valid := target.Spec()
	if !valid || targetSpec.Tier <= spec.Tier {
		log.Printf("[retry] ignoring escalation of %s to %q", role, target)
		return "", false
	}
	return target, true
}

func (e *Engine) modelFor(role models.Role, spec models.RoleSpec) string {
	if m := e.cfg.Models[role]; m != "" {
		return m
	}
	return spec.Tier.DefaultModel()
}

// dispatch runs one attempt under a heartbeat reporter.
func (e *Engine) dispatch(ctx context.Context, call provider.Call, attempt, maxAttempts int) (string, error) {
	stop := make(chan struct{})
	defer close(stop)

	start := e.now()
	go func() {
		ticker := time.NewTicker(e.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.Printf("[retry] %s: %s still waiting on %s (attempt %d/%d, %s elapsed)",
					e.Name(), call.Agent, call.Model, attempt, maxAttempts, e.now().Sub(start).Round(time.Second))
			}
		}
	}()

	return e.dispatcher.Dispatch(ctx, call)
}

func (e *Engine) backoff(ctx context.Context, role models.Role, attempt int) error {
	if e.cfg.BackoffStep <= 0 {
		return nil
	}
	wait := time.Duration(attempt) * e.cfg.BackoffStep
	e.emit(Notice{Kind: NoticeBackoff, Role: role, Attempt: attempt, Message: fmt.Sprintf("rate limited, waiting %s", wait)})
	return e.sleep(ctx, wait)
}

func (e *Engine) emit(n Notice) {
	if e.notify == nil {
		return
	}
	n.Provider = e.Name()
	if n.Time.IsZero() {
		n.Time = e.now()
	}
	e.notify(n)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
