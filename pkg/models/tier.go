package models

import "fmt"

// Tier is the cost/complexity class of a role. Higher tiers use costlier
// models and get smaller retry budgets.
type Tier int

const (
	// TierRoutine is for cheap, high-volume roles (tests, docs).
	TierRoutine Tier = 0
	// TierStandard is for ordinary implementation and review work.
	TierStandard Tier = 1
	// TierComplex is for expensive design work that should fail fast.
	TierComplex Tier = 2
)

// Model identifiers for the default model of each tier.
const (
	ModelHaiku  = "claude-3-5-haiku-20241022"
	ModelSonnet = "claude-sonnet-4-20250514"
	ModelOpus   = "claude-opus-4-5-20251101"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierRoutine, TierStandard, TierComplex:
		return true
	default:
		return false
	}
}

// String returns the tier's display name.
func (t Tier) String() string {
	switch t {
	case TierRoutine:
		return "routine"
	case TierStandard:
		return "standard"
	case TierComplex:
		return "complex"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// DefaultModel returns the model used by a tier when no per-role model is configured.
func (t Tier) DefaultModel() string {
	switch t {
	case TierRoutine:
		return ModelHaiku
	case TierComplex:
		return ModelOpus
	default:
		return ModelSonnet
	}
}
