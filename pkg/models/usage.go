package models

import (
	"fmt"
	"time"
)

// UsageRecord is one immutable cost/token entry in the usage ledger.
type UsageRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	RunID            string    `json:"run_id,omitempty"`
	Agent            string    `json:"agent"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	ProjectID        string    `json:"project_id,omitempty"`
	Task             string    `json:"task,omitempty"`
	// Estimated is true when token counts were derived from character length.
	Estimated bool `json:"estimated,omitempty"`
}

// TotalTokens returns prompt plus completion tokens.
func (r UsageRecord) TotalTokens() int64 {
	return r.PromptTokens + r.CompletionTokens
}

// ProjectBudget tracks spend against a per-project budget.
type ProjectBudget struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	TotalBudget float64   `json:"total_budget" yaml:"total_budget"`
	Spent       float64   `json:"spent" yaml:"spent"`
	FiredAlerts []string  `json:"fired_alerts,omitempty" yaml:"fired_alerts,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Remaining returns the unspent budget, never below zero.
func (p ProjectBudget) Remaining() float64 {
	if p.Spent >= p.TotalBudget {
		return 0
	}
	return p.TotalBudget - p.Spent
}

// HasFired reports whether the alert id has already fired.
func (p ProjectBudget) HasFired(alertID string) bool {
	for _, id := range p.FiredAlerts {
		if id == alertID {
			return true
		}
	}
	return false
}

// BudgetConfig holds global spend caps and alerting settings.
type BudgetConfig struct {
	MonthlyCap float64   `json:"monthly_cap" mapstructure:"monthly_cap"`
	DailyCap   float64   `json:"daily_cap" mapstructure:"daily_cap"`
	Thresholds []float64 `json:"thresholds" mapstructure:"thresholds"`
	Webhooks   []string  `json:"webhooks" mapstructure:"webhooks"`
	AutoPause  bool      `json:"auto_pause" mapstructure:"auto_pause"`
}

// Validate checks that thresholds are positive and strictly ascending.
func (c BudgetConfig) Validate() error {
	if c.MonthlyCap < 0 || c.DailyCap < 0 {
		return fmt.Errorf("budget caps must not be negative")
	}
	prev := 0.0
	for i, t := range c.Thresholds {
		if t <= 0 {
			return fmt.Errorf("threshold %d must be positive, got %v", i, t)
		}
		if i > 0 && t <= prev {
			return fmt.Errorf("thresholds must be ascending: %v after %v", t, prev)
		}
		prev = t
	}
	return nil
}

// ModelStatsRow is one append-only per-call fact used for model scoring.
type ModelStatsRow struct {
	RunID            string    `json:"run_id"`
	Agent            string    `json:"agent"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMS        int64     `json:"latency_ms"`
	Success          bool      `json:"success"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
