package budget

import (
	"log"
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// BurnRate is spend extrapolated from a trailing window.
type BurnRate struct {
	WindowDays int     `json:"window_days"`
	Records    int     `json:"records"`
	Total      float64 `json:"total"`
	Daily      float64 `json:"daily"`
	Weekly     float64 `json:"weekly"`
	Monthly    float64 `json:"monthly"`
}

// CalculateBurnRate sums cost over the windowDays before now. Records
// without a timestamp are logged and skipped.
func CalculateBurnRate(records []models.UsageRecord, windowDays int, now time.Time) BurnRate {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	br := BurnRate{WindowDays: windowDays}
	skipped := 0
	for _, r := range records {
		if r.Timestamp.IsZero() {
			skipped++
			continue
		}
		if r.Timestamp.Before(since) || r.Timestamp.After(now) {
			continue
		}
		br.Total += r.CostUSD
		br.Records++
	}
	if skipped > 0 {
		log.Printf("[ledger] burn rate skipped %d record(s) without a timestamp", skipped)
	}

	br.Daily = br.Total / float64(windowDays)
	br.Weekly = br.Daily * 7
	br.Monthly = br.Daily * 30
	return br
}
