package desk

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// afterRecord runs on the ledger writer goroutine. It only notes the record
// and wakes the alert loop so webhook delivery never stalls the writer.
func (d *Desk) afterRecord(rec models.UsageRecord) {
	d.mu.Lock()
	d.history = append(d.history, rec)
	if rec.ProjectID != "" {
		d.dirty[rec.ProjectID] = true
	}
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Desk) alertLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.kick:
			d.evaluate(d.ctx)
		}
	}
}

// evaluate checks the global caps and every project touched since the last run.
func (d *Desk) evaluate(ctx context.Context) []budget.Alert {
	d.mu.Lock()
	records := make([]models.UsageRecord, len(d.history))
	copy(records, d.history)
	projects := make([]string, 0, len(d.dirty))
	for id := range d.dirty {
		projects = append(projects, id)
	}
	d.dirty = make(map[string]bool)
	d.mu.Unlock()
	sort.Strings(projects)

	fired := d.alerts.CheckGlobal(ctx, records, time.Now())
	for _, id := range projects {
		alerts, err := d.alerts.CheckProject(ctx, id)
		if err != nil {
			log.Printf("[desk] project alert check for %s: %v", id, err)
			continue
		}
		fired = append(fired, alerts...)
	}
	return fired
}

// CheckAlerts evaluates the global caps and every project now and returns
// the alerts that fired.
func (d *Desk) CheckAlerts(ctx context.Context) []budget.Alert {
	d.mu.Lock()
	for _, p := range d.projects.List() {
		d.dirty[p.ID] = true
	}
	d.mu.Unlock()
	return d.evaluate(ctx)
}

// Usage returns the usage history seen by this desk, including records
// loaded at startup.
func (d *Desk) Usage() []models.UsageRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.UsageRecord, len(d.history))
	copy(out, d.history)
	return out
}
