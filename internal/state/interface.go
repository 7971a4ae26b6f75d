package state

import (
	"io"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StatsStore is the per-call fact table used for model scoring.
type StatsStore interface {
	Migrator
	io.Closer
	RecordCall(row models.ModelStatsRow) error
	Rows(model string) ([]models.ModelStatsRow, error)
	Scores() ([]ModelScore, error)
}

// Compile-time check that DB implements StatsStore.
var _ StatsStore = (*DB)(nil)
