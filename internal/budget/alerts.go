package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Scope kinds.
const (
	ScopeProject = "project"
	ScopeMonthly = "monthly"
	ScopeDaily   = "daily"
)

// Scope is one budget evaluated for alerts.
type Scope struct {
	Kind      string
	ProjectID string
	Budget    float64
	Spent     float64
	// PeriodKey distinguishes budget periods; a new key re-arms every threshold.
	PeriodKey string
}

func (s Scope) key() string {
	if s.Kind == ScopeProject {
		return ScopeProject + "/" + s.ProjectID
	}
	return s.Kind
}

// Alert is one fired threshold.
type Alert struct {
	ID           string    `json:"id"`
	Scope        string    `json:"scope"`
	ProjectID    string    `json:"project_id,omitempty"`
	Period       string    `json:"period"`
	Threshold    float64   `json:"threshold"`
	UsagePercent float64   `json:"usage_percent"`
	Spent        float64   `json:"spent"`
	Budget       float64   `json:"budget"`
	FiredAt      time.Time `json:"fired_at"`
}

// AlertManagerConfig configures an AlertManager.
type AlertManagerConfig struct {
	Budget models.BudgetConfig
	// Store persists fired alert ids. Without it fired state lives in memory.
	Store *ProjectStore
	// Client delivers webhooks. Defaults to a client with a 10s timeout.
	Client *http.Client
	// RateLimit throttles webhook deliveries across all sinks.
	RateLimit rate.Limit
	Burst     int
	// OnAlert is called for every fired alert. Optional.
	OnAlert func(Alert)
}

// AlertManager fires each ascending threshold at most once per scope and
// period and delivers fired alerts to webhook sinks. Delivery failures are
// logged per sink and never affect fired state.
type AlertManager struct {
	cfg     AlertManagerConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	fired map[string]bool

	paused    atomic.Bool
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewAlertManager creates an alert manager.
func NewAlertManager(cfg AlertManagerConfig) *AlertManager {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = rate.Every(time.Second)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &AlertManager{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		fired:   make(map[string]bool),
	}
}

// AlertID builds the id of a threshold within a scope and period.
func AlertID(scope Scope, threshold float64) string {
	return scope.key() + ":" + scope.PeriodKey + ":" + strconv.FormatFloat(threshold, 'f', -1, 64)
}

// UsagePercent returns (budget - remaining) / budget * 100 with remaining clamped at zero.
func UsagePercent(budget, spent float64) float64 {
	if budget <= 0 {
		return 0
	}
	remaining := budget - spent
	if remaining < 0 {
		remaining = 0
	}
	return (budget - remaining) / budget * 100
}

// CheckAlerts fires every configured threshold the scope has reached that
// has not fired this period, in ascending order.
func (a *AlertManager) CheckAlerts(ctx context.Context, scope Scope) []Alert {
	if scope.Budget <= 0 {
		return nil
	}
	usage := UsagePercent(scope.Budget, scope.Spent)

	var fired []Alert
	for _, threshold := range a.cfg.Budget.Thresholds {
		if usage < threshold {
			break
		}
		id := AlertID(scope, threshold)
		if !a.claim(scope, id) {
			continue
		}

		alert := Alert{
			ID:           id,
			Scope:        scope.Kind,
			ProjectID:    scope.ProjectID,
			Period:       scope.PeriodKey,
			Threshold:    threshold,
			UsagePercent: usage,
			Spent:        scope.Spent,
			Budget:       scope.Budget,
			FiredAt:      a.now(),
		}
		fired = append(fired, alert)
		log.Printf("[alerts] %s reached %.0f%% of budget (%.2f / %.2f)", scope.key(), threshold, scope.Spent, scope.Budget)

		if threshold >= 100 && a.cfg.Budget.AutoPause && !a.paused.Swap(true) {
			log.Printf("[alerts] auto-pause engaged by %s", id)
		}
		if a.cfg.OnAlert != nil {
			a.cfg.OnAlert(alert)
		}
		a.deliver(ctx, alert)
	}
	return fired
}

// CheckProject evaluates one project's lifetime budget.
func (a *AlertManager) CheckProject(ctx context.Context, projectID string) ([]Alert, error) {
	if a.cfg.Store == nil {
		return nil, fmt.Errorf("no project store configured")
	}
	p, ok := a.cfg.Store.Get(projectID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return a.CheckAlerts(ctx, Scope{
		Kind:      ScopeProject,
		ProjectID: p.ID,
		Budget:    p.TotalBudget,
		Spent:     p.Spent,
		PeriodKey: "total",
	}), nil
}

// CheckGlobal evaluates the monthly and daily caps against records.
func (a *AlertManager) CheckGlobal(ctx context.Context, records []models.UsageRecord, now time.Time) []Alert {
	monthKey := now.Format("2006-01")
	dayKey := now.Format("2006-01-02")

	var monthSpent, daySpent float64
	for _, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		ts := r.Timestamp.In(now.Location())
		if ts.Format("2006-01") == monthKey {
			monthSpent += r.CostUSD
		}
		if ts.Format("2006-01-02") == dayKey {
			daySpent += r.CostUSD
		}
	}

	var fired []Alert
	if a.cfg.Budget.MonthlyCap > 0 {
		fired = append(fired, a.CheckAlerts(ctx, Scope{Kind: ScopeMonthly, Budget: a.cfg.Budget.MonthlyCap, Spent: monthSpent, PeriodKey: monthKey})...)
	}
	if a.cfg.Budget.DailyCap > 0 {
		fired = append(fired, a.CheckAlerts(ctx, Scope{Kind: ScopeDaily, Budget: a.cfg.Budget.DailyCap, Spent: daySpent, PeriodKey: dayKey})...)
	}
	return fired
}

// Paused reports whether auto-pause has engaged.
func (a *AlertManager) Paused() bool {
	return a.paused.Load()
}

// Resume clears auto-pause.
func (a *AlertManager) Resume() {
	a.paused.Store(false)
}

// RestorePause re-engages auto-pause from fired ids persisted by an earlier
// process: any threshold of 100% or more already fired in the current period.
// It reports whether the pause is on.
func (a *AlertManager) RestorePause(now time.Time) bool {
	if !a.cfg.Budget.AutoPause || a.cfg.Store == nil {
		return a.paused.Load()
	}

	var scopes []Scope
	if a.cfg.Budget.MonthlyCap > 0 {
		scopes = append(scopes, Scope{Kind: ScopeMonthly, PeriodKey: now.Format("2006-01")})
	}
	if a.cfg.Budget.DailyCap > 0 {
		scopes = append(scopes, Scope{Kind: ScopeDaily, PeriodKey: now.Format("2006-01-02")})
	}
	for _, p := range a.cfg.Store.List() {
		scopes = append(scopes, Scope{Kind: ScopeProject, ProjectID: p.ID, PeriodKey: "total"})
	}

	for _, threshold := range a.cfg.Budget.Thresholds {
		if threshold < 100 {
			continue
		}
		for _, scope := range scopes {
			id := AlertID(scope, threshold)
			if a.cfg.Store.HasFired(scope.ProjectID, id) {
				if !a.paused.Swap(true) {
					log.Printf("[alerts] auto-pause restored from %s", id)
				}
				return true
			}
		}
	}
	return a.paused.Load()
}

// DeliveryStats returns successful and failed webhook deliveries.
func (a *AlertManager) DeliveryStats() (delivered, failed int64) {
	return a.delivered.Load(), a.failed.Load()
}

// claim marks id fired and reports whether this call was the first to do so.
// Check and mark share one critical section.
func (a *AlertManager) claim(scope Scope, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired[id] {
		return false
	}
	if a.cfg.Store != nil && a.cfg.Store.HasFired(scope.ProjectID, id) {
		a.fired[id] = true
		return false
	}
	a.fired[id] = true
	if a.cfg.Store != nil {
		if err := a.cfg.Store.MarkFired(scope.ProjectID, id); err != nil {
			log.Printf("[alerts] failed to persist fired alert %s: %v", id, err)
		}
	}
	return true
}

// deliver posts the alert to every webhook. Each sink is attempted independently.
func (a *AlertManager) deliver(ctx context.Context, alert Alert) {
	if len(a.cfg.Budget.Webhooks) == 0 {
		return
	}
	body, err := json.Marshal(map[string]any{"alert": alert})
	if err != nil {
		log.Printf("[alerts] failed to encode alert %s: %v", alert.ID, err)
		return
	}
	for _, url := range a.cfg.Budget.Webhooks {
		if err := a.post(ctx, url, body); err != nil {
			a.failed.Add(1)
			log.Printf("[alerts] webhook %s failed for %s: %v", url, alert.ID, err)
			continue
		}
		a.delivered.Add(1)
	}
}

func (a *AlertManager) post(ctx context.Context, url string, body []byte) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
