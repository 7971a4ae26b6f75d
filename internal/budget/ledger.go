// Package budget records per-call spend and evaluates it against budgets:
// an append-only usage ledger, per-project budgets, threshold alerts,
// burn rate and cost forecasts.
package budget

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// DefaultLedgerBuffer is the number of records queued before new ones are dropped.
const DefaultLedgerBuffer = 256

// UsageFileName is the ledger file name inside the data directory.
const UsageFileName = "usage-history.jsonl"

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	// Path is the JSON lines file to append to.
	Path string
	// Buffer bounds the write queue. Defaults to DefaultLedgerBuffer.
	Buffer int
	// Pricing computes cost for Record.
	Pricing models.PriceTable
	// Projects receives per-project spend. Optional.
	Projects *ProjectStore
	// OnRecord is called after each record is written. Optional.
	OnRecord func(models.UsageRecord)
}

// Ledger is an append-only usage history. Appends are handed to a single
// writer goroutine; when its queue is full the record is dropped and logged
// rather than blocking the caller.
type Ledger struct {
	cfg LedgerConfig
	now func() time.Time

	mu     sync.RWMutex
	closed bool
	ch     chan models.UsageRecord
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// OpenLedger creates the ledger directory and starts the writer.
func OpenLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, errors.New("ledger path is required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultLedgerBuffer
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	l := &Ledger{
		cfg:  cfg,
		now:  time.Now,
		ch:   make(chan models.UsageRecord, cfg.Buffer),
		done: make(chan struct{}),
	}
	go l.writeLoop()
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.cfg.Path
}

// Record appends a usage record, computing its cost from the price table.
func (l *Ledger) Record(agent, model string, promptTokens, completionTokens int64, projectID string) {
	l.RecordUsage(models.UsageRecord{
		Agent:            agent,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          l.cfg.Pricing.Cost(model, promptTokens, completionTokens),
		ProjectID:        projectID,
	})
}

// RecordUsage queues rec for writing. It never blocks and never fails.
func (l *Ledger) RecordUsage(rec models.UsageRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	if rec.CostUSD < 0 {
		rec.CostUSD = 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		log.Printf("[ledger] closed, dropping usage record for %s/%s", rec.Agent, rec.Model)
		return
	}
	select {
	case l.ch <- rec:
	default:
		n := l.dropped.Add(1)
		log.Printf("[ledger] queue full, dropped usage record for %s/%s (%d dropped)", rec.Agent, rec.Model, n)
	}
}

// Dropped returns how many records were dropped.
func (l *Ledger) Dropped() int64 {
	return l.dropped.Load()
}

// Written returns how many records reached the file.
func (l *Ledger) Written() int64 {
	return l.written.Load()
}

// Close stops accepting records and waits for queued ones to be written.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	<-l.done
	if n := l.failed.Load(); n > 0 {
		return fmt.Errorf("ledger: %d record(s) failed to persist", n)
	}
	return nil
}

func (l *Ledger) writeLoop() {
	defer close(l.done)

	f, err := os.OpenFile(l.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[ledger] failed to open %s: %v", l.cfg.Path, err)
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	for rec := range l.ch {
		if err := l.write(f, rec); err != nil {
			l.failed.Add(1)
			log.Printf("[ledger] failed to persist usage record for %s/%s: %v", rec.Agent, rec.Model, err)
			continue
		}
		l.written.Add(1)

		if rec.ProjectID != "" && l.cfg.Projects != nil {
			if err := l.cfg.Projects.AddSpend(rec.ProjectID, rec.CostUSD); err != nil {
				log.Printf("[ledger] failed to update spend for project %s: %v", rec.ProjectID, err)
			}
		}
		if l.cfg.OnRecord != nil {
			l.cfg.OnRecord(rec)
		}
	}
}

func (l *Ledger) write(f *os.File, rec models.UsageRecord) error {
	if f == nil {
		return errors.New("ledger file not open")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Load reads every record written so far.
func (l *Ledger) Load() ([]models.UsageRecord, error) {
	return LoadUsage(l.cfg.Path)
}

// LoadUsage reads a usage history file. Malformed lines and unparsable
// timestamps are logged and skipped. A missing file is empty history.
func LoadUsage(path string) ([]models.UsageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open usage history: %w", err)
	}
	defer f.Close()

	var records []models.UsageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var stamp struct {
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &stamp); err != nil {
			log.Printf("[ledger] %s:%d: skipping malformed line: %v", path, lineNo, err)
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, stamp.Timestamp); err != nil {
			log.Printf("[ledger] %s:%d: skipping record with bad timestamp %q", path, lineNo, stamp.Timestamp)
			continue
		}

		var rec models.UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Printf("[ledger] %s:%d: skipping malformed record: %v", path, lineNo, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read usage history: %w", err)
	}
	return records, nil
}
