package retry

import (
	"sync"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Breaker tallies short-response failures per role and globally. Once the
// global tally has reached the threshold, the next short failure trips it.
// Any success resets every tally.
type Breaker struct {
	threshold int

	mu      sync.Mutex
	global  int
	perRole map[models.Role]int
}

// NewBreaker creates a breaker. A threshold of zero or less never trips.
func NewBreaker(threshold int) *Breaker {
	return &Breaker{
		threshold: threshold,
		perRole:   make(map[models.Role]int),
	}
}

// RecordShort counts one short failure for role and reports whether the
// breaker tripped.
func (b *Breaker) RecordShort(role models.Role) (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prior := b.global
	b.global++
	b.perRole[role]++
	return b.threshold > 0 && prior >= b.threshold
}

// RecordSuccess resets the per-role and global tallies.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = 0
	clear(b.perRole)
}

// Counts returns the global tally and the tally for role.
func (b *Breaker) Counts(role models.Role) (global, perRole int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.global, b.perRole[role]
}
