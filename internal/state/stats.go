package state

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// ModelScore summarizes one agent/model pair.
type ModelScore struct {
	Agent          string  `json:"agent"`
	Model          string  `json:"model"`
	Calls          int     `json:"calls"`
	SuccessRate    float64 `json:"success_rate"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	AvgCostUSD     float64 `json:"avg_cost_usd"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokens    int64   `json:"total_tokens"`
	CompositeScore float64 `json:"score"`
}

// RecordCall appends one stats row.
func (db *DB) RecordCall(row models.ModelStatsRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	success := 0
	if row.Success {
		success = 1
	}
	_, err := db.Exec(`
		INSERT INTO model_stats (run_id, agent, model, prompt_tokens, completion_tokens, cost_usd, latency_ms, success, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.RunID, row.Agent, row.Model, row.PromptTokens, row.CompletionTokens, row.CostUSD,
		row.LatencyMS, success, row.ErrorKind, formatTime(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("record model stats: %w", err)
	}
	return nil
}

// Rows returns stats rows oldest first. An empty model returns every row.
func (db *DB) Rows(model string) ([]models.ModelStatsRow, error) {
	query := `
		SELECT run_id, agent, model, prompt_tokens, completion_tokens, cost_usd, latency_ms, success, error_kind, created_at
		FROM model_stats`
	var args []any
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	var out []models.ModelStatsRow
	for rows.Next() {
		var r models.ModelStatsRow
		var success int
		var created string
		if err := rows.Scan(&r.RunID, &r.Agent, &r.Model, &r.PromptTokens, &r.CompletionTokens,
			&r.CostUSD, &r.LatencyMS, &success, &r.ErrorKind, &created); err != nil {
			return nil, fmt.Errorf("scan model stats: %w", err)
		}
		r.Success = success == 1
		if t, err := parseTime(created); err == nil {
			r.CreatedAt = t
		} else {
			log.Printf("[state] run %s has unparsable created_at %q", r.RunID, created)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Scores aggregates stats per agent/model, best first. The composite score
// is the success rate discounted by mean cost and mean latency in minutes.
func (db *DB) Scores() ([]ModelScore, error) {
	rows, err := db.Query(`
		SELECT agent, model, COUNT(*), AVG(success), AVG(latency_ms), AVG(cost_usd), SUM(cost_usd),
			SUM(prompt_tokens + completion_tokens)
		FROM model_stats
		GROUP BY agent, model
	`)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []ModelScore
	for rows.Next() {
		var s ModelScore
		var tokens sql.NullInt64
		if err := rows.Scan(&s.Agent, &s.Model, &s.Calls, &s.SuccessRate, &s.AvgLatencyMS,
			&s.AvgCostUSD, &s.TotalCostUSD, &tokens); err != nil {
			return nil, fmt.Errorf("scan scores: %w", err)
		}
		s.TotalTokens = tokens.Int64
		s.CompositeScore = s.SuccessRate * 100 / (1 + s.AvgCostUSD + s.AvgLatencyMS/60000)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompositeScore != out[j].CompositeScore {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		return out[i].Agent+out[i].Model < out[j].Agent+out[j].Model
	})
	return out, nil
}

// PurgeOlderThan deletes rows older than the given age and returns how many were removed.
func (db *DB) PurgeOlderThan(age time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-age))
	result, err := db.Exec(`DELETE FROM model_stats WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge model stats: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
