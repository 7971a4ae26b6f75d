// Package desk wires the office pools, providers, retry engines and budget
// tracking into one handle that runs resilient agent calls.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/internal/config"
	"github.com/ShayCichocki/agentdesk/internal/office"
	"github.com/ShayCichocki/agentdesk/internal/provider"
	"github.com/ShayCichocki/agentdesk/internal/retry"
	"github.com/ShayCichocki/agentdesk/internal/signals"
	"github.com/ShayCichocki/agentdesk/internal/state"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// ErrNoProviders is returned by Open when no provider could be built.
var ErrNoProviders = errors.New("desk: no usable provider configured")

// backendPair is the streaming and one-shot backend of one provider.
type backendPair struct {
	name      string
	streaming provider.Backend
	oneShot   provider.Backend
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	providers []backendPair
	onStatus  office.StatusFunc
	onNotice  retry.NoticeFunc
	onAlert   func(budget.Alert)
	sleep     func(ctx context.Context, d time.Duration) error
}

// WithProvider replaces the configured providers with the given backends.
// Providers are tried in the order the options are applied.
func WithProvider(name string, streaming, oneShot provider.Backend) Option {
	return func(o *openOptions) {
		o.providers = append(o.providers, backendPair{name: name, streaming: streaming, oneShot: oneShot})
	}
}

// WithStatusFunc receives office status changes.
func WithStatusFunc(fn office.StatusFunc) Option {
	return func(o *openOptions) {
		o.onStatus = fn
	}
}

// WithNoticeFunc receives retry and failover notices.
func WithNoticeFunc(fn retry.NoticeFunc) Option {
	return func(o *openOptions) {
		o.onNotice = fn
	}
}

// WithAlertFunc receives fired budget alerts.
func WithAlertFunc(fn func(budget.Alert)) Option {
	return func(o *openOptions) {
		o.onAlert = fn
	}
}

// WithBackoffSleep replaces the retry engines' backoff sleep.
func WithBackoffSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *openOptions) {
		o.sleep = fn
	}
}

// Desk is the composition root.
type Desk struct {
	cfg  *config.Config
	opts openOptions

	ledger   *budget.Ledger
	projects *budget.ProjectStore
	alerts   *budget.AlertManager
	stats    *state.DB
	signals  *signals.Watcher
	breaker  *retry.Breaker
	failover *retry.Failover
	offices  *office.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	history []models.UsageRecord
	dirty   map[string]bool
	kick    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open builds every component from cfg. Providers that cannot be built are
// logged and skipped; Open fails only when none remain.
func Open(cfg *config.Config, opts ...Option) (*Desk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	d := &Desk{
		cfg:   cfg,
		dirty: make(map[string]bool),
		kick:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	var err error
	d.projects, err = budget.OpenProjectStore(filepath.Join(cfg.DataDir, budget.ProjectsFileName))
	if err != nil {
		d.cancel()
		return nil, err
	}

	limit := rate.Inf
	if cfg.Alerts.RatePerSecond > 0 {
		limit = rate.Limit(cfg.Alerts.RatePerSecond)
	}
	d.alerts = budget.NewAlertManager(budget.AlertManagerConfig{
		Budget:    cfg.Budget,
		Store:     d.projects,
		RateLimit: limit,
		Burst:     cfg.Alerts.Burst,
		OnAlert:   d.opts.onAlert,
	})
	if d.alerts.RestorePause(time.Now()) {
		log.Printf("[desk] spending paused by an earlier budget alert")
	}

	ledgerPath := filepath.Join(cfg.DataDir, budget.UsageFileName)
	d.history, err = budget.LoadUsage(ledgerPath)
	if err != nil {
		d.cancel()
		return nil, fmt.Errorf("load usage history: %w", err)
	}
	d.ledger, err = budget.OpenLedger(budget.LedgerConfig{
		Path:     ledgerPath,
		Buffer:   cfg.Ledger.Buffer,
		Pricing:  cfg.Pricing,
		Projects: d.projects,
		OnRecord: d.afterRecord,
	})
	if err != nil {
		d.cancel()
		return nil, err
	}

	d.stats, err = state.Open(state.DefaultDBPath(cfg.DataDir))
	if err != nil {
		d.ledger.Close()
		d.cancel()
		return nil, fmt.Errorf("open stats database: %w", err)
	}
	if err := d.stats.Migrate(); err != nil {
		d.stats.Close()
		d.ledger.Close()
		d.cancel()
		return nil, fmt.Errorf("migrate stats database: %w", err)
	}

	d.signals, err = signals.Open(cfg.DataDir)
	if err != nil {
		d.stats.Close()
		d.ledger.Close()
		d.cancel()
		return nil, fmt.Errorf("open signals: %w", err)
	}

	d.breaker = retry.NewBreaker(cfg.Retry.BreakerThreshold)
	engines := d.buildEngines()
	if len(engines) == 0 {
		d.signals.Close()
		d.stats.Close()
		d.ledger.Close()
		d.cancel()
		return nil, ErrNoProviders
	}
	d.failover = retry.NewFailover(d.notice, engines...)

	d.offices = office.NewManager(office.ManagerConfig{
		Rosters:     cfg.Offices.Rosters,
		Cooldown:    cfg.Offices.Cooldown,
		OnStatus:    d.opts.onStatus,
		BaseContext: d.ctx,
	})

	d.wg.Add(1)
	go d.alertLoop()

	log.Printf("[desk] ready: providers=%v offices=%v data=%s", d.failover.Providers(), d.offices.Offices(), cfg.DataDir)
	return d, nil
}

func (d *Desk) buildEngines() []*retry.Engine {
	pairs := d.opts.providers
	if len(pairs) == 0 {
		pairs = d.configuredProviders()
	}

	rc := d.cfg.Retry
	engineCfg := retry.Config{
		Budgets: retry.Budgets{
			Complex:  rc.Budgets.Complex,
			Standard: rc.Budgets.Standard,
			Routine:  rc.Budgets.Routine,
			Full:     rc.Budgets.Full,
		},
		MinChars:         rc.MinChars,
		BreakerThreshold: rc.BreakerThreshold,
		BackoffStep:      rc.BackoffStep,
		Heartbeat:        rc.Heartbeat,
		FallbackModel:    rc.FallbackModel,
		Models:           d.cfg.RoleModels(),
	}

	engineOpts := []retry.Option{
		retry.WithBreaker(d.breaker),
		retry.WithEscalation(d.signals),
		retry.WithBudgetGuard(d.alerts),
		retry.WithNotices(d.notice),
	}
	if d.opts.sleep != nil {
		engineOpts = append(engineOpts, retry.WithSleep(d.opts.sleep))
	}

	engines := make([]*retry.Engine, 0, len(pairs))
	for _, p := range pairs {
		dispatcher := provider.NewDispatcher(provider.DispatcherConfig{
			Name:           p.name,
			Streaming:      p.streaming,
			OneShot:        p.oneShot,
			Modes:          d.cfg.RoleModes(),
			Models:         d.cfg.RoleModels(),
			Usage:          d.ledger,
			Stats:          d.stats,
			Pricing:        d.cfg.Pricing,
			DefaultTimeout: rc.Timeout,
			JoinGrace:      rc.JoinGrace,
		})
		engines = append(engines, retry.New(dispatcher, engineCfg, engineOpts...))
	}
	return engines
}

// configuredProviders builds backends for cfg.Providers in order.
func (d *Desk) configuredProviders() []backendPair {
	var pairs []backendPair
	for _, name := range d.cfg.Providers {
		switch name {
		case config.ProviderAnthropic:
			key, _ := config.GetAPIKey(d.cfg)
			client, err := provider.NewClient(provider.ClientConfig{
				APIKey:        key,
				UseAWSBedrock: d.cfg.Anthropic.UseAWSBedrock,
				AWSRegion:     d.cfg.Anthropic.AWSRegion,
				AWSProfile:    d.cfg.Anthropic.AWSProfile,
				BaseURL:       d.cfg.Anthropic.BaseURL,
				MaxRetries:    d.cfg.Anthropic.MaxRetries,
			})
			if err != nil {
				log.Printf("[desk] skipping provider %s: %v", name, err)
				continue
			}
			api := provider.NewAPIBackend(client, d.cfg.Anthropic.MaxTokens)
			pairs = append(pairs, backendPair{name: name, streaming: api, oneShot: api})
		case config.ProviderClaudeCLI:
			pairs = append(pairs, backendPair{
				name:      name,
				streaming: &provider.StreamSession{Binary: d.cfg.CLI.Binary, Dir: d.cfg.CLI.WorkDir},
				oneShot:   &provider.OneShot{Binary: d.cfg.CLI.Binary, Dir: d.cfg.CLI.WorkDir, MaxTurns: d.cfg.CLI.MaxTurns},
			})
		default:
			log.Printf("[desk] unknown provider %q", name)
		}
	}
	return pairs
}

func (d *Desk) notice(n retry.Notice) {
	log.Printf("[desk] notice %s: %s", n.Kind, n.Message)
	if d.opts.onNotice != nil {
		d.opts.onNotice(n)
	}
}

// Providers returns provider names in failover order.
func (d *Desk) Providers() []string {
	return d.failover.Providers()
}

// Offices returns the office manager.
func (d *Desk) Offices() *office.Manager {
	return d.offices
}

// Signals returns the escalation watcher.
func (d *Desk) Signals() *signals.Watcher {
	return d.signals
}

// Projects returns the project budget store.
func (d *Desk) Projects() *budget.ProjectStore {
	return d.projects
}

// Alerts returns the alert manager.
func (d *Desk) Alerts() *budget.AlertManager {
	return d.alerts
}

// Stats returns the model stats store.
func (d *Desk) Stats() *state.DB {
	return d.stats
}

// Ledger returns the usage ledger.
func (d *Desk) Ledger() *budget.Ledger {
	return d.ledger
}

// Breaker returns the shared short-response breaker.
func (d *Desk) Breaker() *retry.Breaker {
	return d.breaker
}

// Close stops the offices, flushes the ledger and closes the stores. It is
// safe to call more than once.
func (d *Desk) Close() error {
	d.closeOnce.Do(func() {
		d.offices.Close()
		d.signals.Close()

		var errs []error
		if err := d.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
		d.cancel()
		d.wg.Wait()

		if err := d.stats.Close(); err != nil {
			errs = append(errs, err)
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
