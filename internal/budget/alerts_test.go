package budget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

func thresholds() []float64 {
	return []float64{50, 75, 90, 100}
}

func TestUsagePercent(t *testing.T) {
	tests := []struct {
		budget, spent, want float64
	}{
		{100, 0, 0},
		{100, 50, 50},
		{100, 150, 100},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := UsagePercent(tt.budget, tt.spent); got != tt.want {
			t.Errorf("UsagePercent(%v, %v) = %v, want %v", tt.budget, tt.spent, got, tt.want)
		}
	}
}

func TestCheckAlerts_EachThresholdOnceInOrder(t *testing.T) {
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds()}})
	ctx := context.Background()

	var order []float64
	for _, spent := range []float64{0, 10, 49, 50, 60, 76, 91, 100} {
		for _, a := range am.CheckAlerts(ctx, Scope{Kind: ScopeMonthly, Budget: 100, Spent: spent, PeriodKey: "2026-10"}) {
			order = append(order, a.Threshold)
		}
	}
	want := thresholds()
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("fired[%d] = %v, want %v", i, order[i], want[i])
		}
	}

	// Dip and re-climb within the same period.
	for _, spent := range []float64{20, 80, 100} {
		if fired := am.CheckAlerts(ctx, Scope{Kind: ScopeMonthly, Budget: 100, Spent: spent, PeriodKey: "2026-10"}); len(fired) != 0 {
			t.Errorf("refired %+v at spent %v", fired, spent)
		}
	}
}

func TestCheckAlerts_JumpFiresAllCrossed(t *testing.T) {
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds()}})
	fired := am.CheckAlerts(context.Background(), Scope{Kind: ScopeDaily, Budget: 10, Spent: 9.5, PeriodKey: "2026-10-19"})
	if len(fired) != 3 {
		t.Fatalf("fired %d alerts, want 3", len(fired))
	}
	if fired[0].ID != "daily:2026-10-19:50" {
		t.Errorf("id = %q", fired[0].ID)
	}
}

func TestCheckAlerts_NewPeriodRearms(t *testing.T) {
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: []float64{50}}})
	ctx := context.Background()
	if n := len(am.CheckAlerts(ctx, Scope{Kind: ScopeMonthly, Budget: 10, Spent: 6, PeriodKey: "2026-09"})); n != 1 {
		t.Fatalf("first period fired %d", n)
	}
	if n := len(am.CheckAlerts(ctx, Scope{Kind: ScopeMonthly, Budget: 10, Spent: 6, PeriodKey: "2026-10"})); n != 1 {
		t.Errorf("new period fired %d, want 1", n)
	}
}

func TestCheckAlerts_WebhookFailuresIsolated(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]Alert
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]Alert
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode webhook: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	am := NewAlertManager(AlertManagerConfig{
		Budget: models.BudgetConfig{
			Thresholds: []float64{50, 100},
			Webhooks:   []string{bad.URL, "http://127.0.0.1:0/unreachable", good.URL},
		},
		RateLimit: rate.Inf,
	})

	fired := am.CheckAlerts(context.Background(), Scope{Kind: ScopeMonthly, Budget: 10, Spent: 10, PeriodKey: "2026-10"})
	if len(fired) != 2 {
		t.Fatalf("fired %d, want 2", len(fired))
	}

	delivered, failed := am.DeliveryStats()
	if delivered != 2 || failed != 4 {
		t.Errorf("delivered=%d failed=%d, want 2/4", delivered, failed)
	}
	if len(payloads) != 2 || payloads[1]["alert"].Threshold != 100 {
		t.Errorf("payloads = %+v", payloads)
	}

	// Failed delivery does not un-fire the alert.
	if again := am.CheckAlerts(context.Background(), Scope{Kind: ScopeMonthly, Budget: 10, Spent: 10, PeriodKey: "2026-10"}); len(again) != 0 {
		t.Errorf("refired after failed delivery: %+v", again)
	}
}

func TestCheckAlerts_AutoPause(t *testing.T) {
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds(), AutoPause: true}})
	am.CheckAlerts(context.Background(), Scope{Kind: ScopeMonthly, Budget: 10, Spent: 9.5, PeriodKey: "k"})
	if am.Paused() {
		t.Fatal("paused before 100%")
	}
	am.CheckAlerts(context.Background(), Scope{Kind: ScopeMonthly, Budget: 10, Spent: 10, PeriodKey: "k"})
	if !am.Paused() {
		t.Fatal("not paused at 100%")
	}
	am.Resume()
	if am.Paused() {
		t.Error("Resume did not clear pause")
	}
}

func TestRestorePause(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	budgetCfg := models.BudgetConfig{DailyCap: 10, Thresholds: thresholds(), AutoPause: true}

	tests := []struct {
		name   string
		fired  []string
		config models.BudgetConfig
		want   bool
	}{
		{"cap fired today", []string{"daily:2026-10-19:100"}, budgetCfg, true},
		{"cap fired yesterday", []string{"daily:2026-10-18:100"}, budgetCfg, false},
		{"below cap", []string{"daily:2026-10-19:50", "daily:2026-10-19:90"}, budgetCfg, false},
		{"auto-pause off", []string{"daily:2026-10-19:100"}, models.BudgetConfig{DailyCap: 10, Thresholds: thresholds()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := OpenProjectStore(filepath.Join(t.TempDir(), ProjectsFileName))
			if err != nil {
				t.Fatal(err)
			}
			for _, id := range tt.fired {
				if err := store.MarkFired("", id); err != nil {
					t.Fatal(err)
				}
			}
			am := NewAlertManager(AlertManagerConfig{Budget: tt.config, Store: store})
			if got := am.RestorePause(now); got != tt.want {
				t.Errorf("RestorePause() = %v, want %v", got, tt.want)
			}
			if am.Paused() != tt.want {
				t.Errorf("Paused() = %v, want %v", am.Paused(), tt.want)
			}
		})
	}
}

func TestRestorePause_ProjectOverBudget(t *testing.T) {
	store, err := OpenProjectStore(filepath.Join(t.TempDir(), ProjectsFileName))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := store.Add("app", 5)
	store.AddSpend(p.ID, 5)

	cfg := AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds(), AutoPause: true}, Store: store}
	if _, err := NewAlertManager(cfg).CheckProject(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}

	if !NewAlertManager(cfg).RestorePause(time.Now()) {
		t.Error("project cap alert did not restore pause")
	}
}

func TestCheckAlerts_ConcurrentFiresOnce(t *testing.T) {
	store, err := OpenProjectStore(filepath.Join(t.TempDir(), ProjectsFileName))
	if err != nil {
		t.Fatal(err)
	}
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds()}, Store: store})
	scope := Scope{Kind: ScopeMonthly, Budget: 10, Spent: 10, PeriodKey: "2026-10"}

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(am.CheckAlerts(context.Background(), scope))
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != len(thresholds()) {
		t.Errorf("fired %d alerts across goroutines, want %d", total, len(thresholds()))
	}
}

func TestCheckProject_PersistsFiredState(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectsFileName)
	store, err := OpenProjectStore(path)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := store.Add("app", 20)
	store.AddSpend(p.ID, 16)

	cfg := AlertManagerConfig{Budget: models.BudgetConfig{Thresholds: thresholds()}, Store: store}
	fired, err := NewAlertManager(cfg).CheckProject(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 2 {
		t.Fatalf("fired %d, want 2", len(fired))
	}

	// A fresh manager over a reopened store remembers what fired.
	reopened, _ := OpenProjectStore(path)
	cfg.Store = reopened
	fired, _ = NewAlertManager(cfg).CheckProject(context.Background(), p.ID)
	if len(fired) != 0 {
		t.Errorf("refired after reopen: %+v", fired)
	}
}

func TestCheckGlobal(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	records := []models.UsageRecord{
		{Timestamp: now.Add(-time.Hour), CostUSD: 6},
		{Timestamp: now.AddDate(0, 0, -3), CostUSD: 40},
		{Timestamp: now.AddDate(0, -1, 0), CostUSD: 500},
	}
	am := NewAlertManager(AlertManagerConfig{Budget: models.BudgetConfig{
		MonthlyCap: 100,
		DailyCap:   10,
		Thresholds: []float64{40, 50},
	}})

	fired := am.CheckGlobal(context.Background(), records, now)
	got := map[string]bool{}
	for _, a := range fired {
		got[a.ID] = true
	}
	want := []string{"monthly:2026-10:40", "daily:2026-10-19:40", "daily:2026-10-19:50"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %+v", fired)
	}
	for _, id := range want {
		if !got[id] {
			t.Errorf("missing alert %s", id)
		}
	}
}
