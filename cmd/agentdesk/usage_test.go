package main

import (
	"testing"
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

func TestBuildUsageReport(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []models.UsageRecord{
		{Timestamp: now.Add(-time.Hour), Model: "sonnet", CostUSD: 1.5, ProjectID: "p1"},
		{Timestamp: now.Add(-2 * time.Hour), Model: "haiku", CostUSD: 0.5, ProjectID: "p2"},
		{Timestamp: now.Add(-30 * 24 * time.Hour), Model: "sonnet", CostUSD: 4, ProjectID: "p1"},
	}

	tests := []struct {
		name      string
		project   string
		records   int
		total     float64
		sonnet    float64
		burnTotal float64
	}{
		{"all", "", 3, 6, 5.5, 2},
		{"project filter", "p1", 2, 5.5, 5.5, 1.5},
		{"no match", "zz", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := buildUsageReport(records, tt.project, 7, 30, now)
			if rep.Records != tt.records {
				t.Errorf("Records = %d, want %d", rep.Records, tt.records)
			}
			if rep.Total != tt.total {
				t.Errorf("Total = %v, want %v", rep.Total, tt.total)
			}
			if rep.ByModel["sonnet"] != tt.sonnet {
				t.Errorf("ByModel[sonnet] = %v, want %v", rep.ByModel["sonnet"], tt.sonnet)
			}
			if rep.BurnRate.Total != tt.burnTotal {
				t.Errorf("BurnRate.Total = %v, want %v", rep.BurnRate.Total, tt.burnTotal)
			}
			if rep.Forecast.Available {
				t.Error("forecast should be unavailable with fewer than 7 days")
			}
		})
	}

	if len(records) != 3 {
		t.Error("filtering must not modify the input")
	}
}
