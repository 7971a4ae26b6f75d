package desk

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/internal/config"
	"github.com/ShayCichocki/agentdesk/internal/provider"
	"github.com/ShayCichocki/agentdesk/internal/retry"
	"github.com/ShayCichocki/agentdesk/internal/state"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var longText = strings.Repeat("plausible output ", 20)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Offices.Cooldown = 10 * time.Millisecond
	cfg.Retry.BackoffStep = 0
	cfg.Retry.Heartbeat = time.Minute
	return cfg
}

// fakeBackend returns text for every request and remembers the models it saw.
type fakeBackend struct {
	name  string
	text  string
	exact bool
	block bool

	calls  atomic.Int32
	mu     sync.Mutex
	models []string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.models = append(f.models, req.Model)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return provider.Response{}, ctx.Err()
	}
	resp := provider.Response{Text: f.text}
	if f.exact {
		resp.PromptTokens = 100000
		resp.CompletionTokens = 100000
		resp.Exact = true
	}
	return resp, nil
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

func openDesk(t *testing.T, cfg *config.Config, opts ...Option) *Desk {
	t.Helper()
	d, err := Open(cfg, opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestCall_Success(t *testing.T) {
	cfg := testConfig(t)
	primary := &fakeBackend{name: "fake", text: longText}
	d := openDesk(t, cfg, WithProvider("primary", primary, primary))

	reply, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{DisplayName: "unit tests"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.Text != strings.TrimSpace(longText) && reply.Text != longText {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.Provider != "primary" || reply.Attempts != 1 || reply.Role != models.RoleTester {
		t.Errorf("reply = %+v", reply)
	}
	if reply.Model != models.ModelHaiku {
		t.Errorf("Model = %q, want tester default", reply.Model)
	}
	if reply.WorkerID == "" {
		t.Error("WorkerID should be set")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records, err := budget.LoadUsage(filepath.Join(cfg.DataDir, budget.UsageFileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Model != models.ModelHaiku {
		t.Errorf("usage records = %+v", records)
	}

	db, err := state.Open(state.DefaultDBPath(cfg.DataDir))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Rows("")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].Success {
		t.Errorf("stats rows = %+v", rows)
	}
}

func TestCall_FailsOverToSecondProvider(t *testing.T) {
	cfg := testConfig(t)
	short := &fakeBackend{name: "short", text: "meh"}
	good := &fakeBackend{name: "good", text: longText}

	var mu sync.Mutex
	var notices []retry.Notice
	d := openDesk(t, cfg,
		WithProvider("primary", short, short),
		WithProvider("secondary", good, good),
		WithNoticeFunc(func(n retry.Notice) {
			mu.Lock()
			notices = append(notices, n)
			mu.Unlock()
		}),
	)

	reply, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.Provider != "secondary" {
		t.Errorf("Provider = %q, want secondary", reply.Provider)
	}
	if got := short.calls.Load(); got != int32(cfg.Retry.Budgets.Routine) {
		t.Errorf("primary calls = %d, want routine budget %d", got, cfg.Retry.Budgets.Routine)
	}

	mu.Lock()
	defer mu.Unlock()
	var switched bool
	for _, n := range notices {
		if n.Kind == retry.NoticeSwitchingProvider && n.Provider == "primary" {
			switched = true
		}
	}
	if !switched {
		t.Errorf("expected switching_provider notice, got %+v", notices)
	}
}

func TestCall_AllProvidersExhausted(t *testing.T) {
	cfg := testConfig(t)
	short := &fakeBackend{name: "short", text: "meh"}
	d := openDesk(t, cfg, WithProvider("a", short, short), WithProvider("b", short, short))

	_, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if !errors.Is(err, retry.ErrAgentUnavailable) {
		t.Fatalf("err = %v, want ErrAgentUnavailable", err)
	}
}

func TestCall_UnknownRole(t *testing.T) {
	cfg := testConfig(t)
	b := &fakeBackend{name: "fake", text: longText}
	d := openDesk(t, cfg, WithProvider("primary", b, b))

	if _, err := d.Call(context.Background(), models.Role("wizard"), "x", CallOptions{}); err == nil {
		t.Error("expected error for unknown role")
	}
	if b.calls.Load() != 0 {
		t.Error("unknown role must not dispatch")
	}
}

func TestCall_Escalation(t *testing.T) {
	cfg := testConfig(t)
	b := &fakeBackend{name: "fake", text: longText}
	d := openDesk(t, cfg, WithProvider("primary", b, b))

	d.Signals().Escalate(models.RoleTester, models.RoleArchitect)

	reply, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if reply.Role != models.RoleArchitect || reply.Model != models.ModelOpus {
		t.Errorf("reply = %+v, want architect on opus", reply)
	}
	if seen := b.seen(); len(seen) != 1 || seen[0] != models.ModelOpus {
		t.Errorf("backend saw models %v", seen)
	}

	// The escalation applies to one call only.
	reply, err = d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Role != models.RoleTester {
		t.Errorf("second call role = %s, want tester", reply.Role)
	}
}

func TestCall_ContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retry.JoinGrace = 100 * time.Millisecond
	b := &fakeBackend{name: "slow", block: true}
	d := openDesk(t, cfg, WithProvider("primary", b, b))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Call(ctx, models.RoleTester, "write tests", CallOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung after cancelled call")
	}
}

func TestCall_AutoPause(t *testing.T) {
	cfg := testConfig(t)
	cfg.Budget.DailyCap = 0.01
	cfg.Budget.AutoPause = true

	var fired atomic.Int32
	b := &fakeBackend{name: "fake", text: longText, exact: true}
	d := openDesk(t, cfg,
		WithProvider("primary", b, b),
		WithAlertFunc(func(budget.Alert) { fired.Add(1) }),
	)

	if _, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !d.Alerts().Paused() {
		if time.Now().After(deadline) {
			t.Fatal("auto-pause did not engage")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := fired.Load(); got != int32(len(cfg.Budget.Thresholds)) {
		t.Errorf("fired %d alerts, want %d", got, len(cfg.Budget.Thresholds))
	}

	_, err := d.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if !errors.Is(err, retry.ErrPaused) {
		t.Errorf("err = %v, want ErrPaused", err)
	}
	if b.calls.Load() != 1 {
		t.Errorf("paused call dispatched; calls = %d", b.calls.Load())
	}
}

func TestOpen_RestoresAutoPause(t *testing.T) {
	cfg := testConfig(t)
	cfg.Budget.DailyCap = 0.01
	cfg.Budget.AutoPause = true

	b := &fakeBackend{name: "fake", text: longText, exact: true}
	first := openDesk(t, cfg, WithProvider("primary", b, b))
	if _, err := first.Call(context.Background(), models.RoleTester, "write tests", CallOptions{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !first.Alerts().Paused() {
		if time.Now().After(deadline) {
			t.Fatal("auto-pause did not engage")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := openDesk(t, cfg, WithProvider("primary", b, b))
	if !second.Alerts().Paused() {
		t.Fatal("pause not restored after reopen")
	}
	_, err := second.Call(context.Background(), models.RoleTester, "write tests", CallOptions{})
	if !errors.Is(err, retry.ErrPaused) {
		t.Errorf("err = %v, want ErrPaused", err)
	}
	if b.calls.Load() != 1 {
		t.Errorf("paused call dispatched after reopen; calls = %d", b.calls.Load())
	}
}

func TestCheckAlerts_Project(t *testing.T) {
	cfg := testConfig(t)
	b := &fakeBackend{name: "fake", text: longText, exact: true}
	d := openDesk(t, cfg, WithProvider("primary", b, b))

	p, err := d.Projects().Add("demo", 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Projects().AddSpend(p.ID, 0.02); err != nil {
		t.Fatal(err)
	}

	alerts := d.CheckAlerts(context.Background())
	if len(alerts) != len(cfg.Budget.Thresholds) {
		t.Fatalf("fired %d alerts, want %d", len(alerts), len(cfg.Budget.Thresholds))
	}
	if again := d.CheckAlerts(context.Background()); len(again) != 0 {
		t.Errorf("alerts refired: %+v", again)
	}
}

func TestOpen_NoProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = []string{config.ProviderAnthropic}
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("AGENTDESK_ANTHROPIC_API_KEY", "")

	_, err := Open(cfg)
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("err = %v, want ErrNoProviders", err)
	}
}

func TestOpen_ConfiguredCLIProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = []string{config.ProviderClaudeCLI}

	d := openDesk(t, cfg)
	if got := d.Providers(); len(got) != 1 || got[0] != config.ProviderClaudeCLI {
		t.Errorf("Providers() = %v", got)
	}
}
