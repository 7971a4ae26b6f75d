package office

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownOffice is returned when no pool is registered under the office name.
var ErrUnknownOffice = errors.New("office: unknown office")

// ManagerConfig contains configuration for the Manager.
type ManagerConfig struct {
	// Rosters maps office name to worker names, in claim order.
	Rosters map[string][]string
	// Cooldown is the failure cool-down for every pool.
	Cooldown time.Duration
	// OnStatus receives status changes from every pool.
	OnStatus StatusFunc
	// BaseContext is the parent of every pool's execution context.
	BaseContext context.Context
}

// Manager routes work to the pool registered for each office.
type Manager struct {
	mu       sync.RWMutex
	pools    map[string]*Pool
	onStatus StatusFunc
}

// NewManager creates one pool per roster entry.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		pools:    make(map[string]*Pool, len(cfg.Rosters)),
		onStatus: cfg.OnStatus,
	}

	ctx := cfg.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}

	for office, roster := range cfg.Rosters {
		m.pools[office] = NewPool(office, roster,
			WithStatusFunc(m.fanOut),
			WithCooldown(cooldown),
			WithBaseContext(ctx),
		)
	}
	return m
}

// SetStatusFunc replaces the fan-out callback.
func (m *Manager) SetStatusFunc(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

func (m *Manager) fanOut(ev StatusEvent) {
	m.mu.RLock()
	fn := m.onStatus
	m.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Pool returns the pool for an office.
func (m *Manager) Pool(office string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[office]
	return p, ok
}

// Offices returns the registered office names, sorted.
func (m *Manager) Offices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssignTask submits the task to the office's pool.
func (m *Manager) AssignTask(office string, task Task) (string, *Ticket, error) {
	p, ok := m.Pool(office)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownOffice, office)
	}
	workerID, ticket := p.AssignTask(task)
	return workerID, ticket, nil
}

// Status returns the status of one office.
func (m *Manager) Status(office string) (PoolStatus, error) {
	p, ok := m.Pool(office)
	if !ok {
		return PoolStatus{}, fmt.Errorf("%w: %s", ErrUnknownOffice, office)
	}
	return p.Status(), nil
}

// GetAllStatus returns the status of every office.
func (m *Manager) GetAllStatus() map[string]PoolStatus {
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	out := make(map[string]PoolStatus, len(pools))
	for _, p := range pools {
		out[p.Office()] = p.Status()
	}
	return out
}

// ResetAllWorkers hard resets every pool.
func (m *Manager) ResetAllWorkers() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		p.Reset()
	}
}

// Close closes every pool and waits for in-flight executions.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		p.Close()
	}
}
