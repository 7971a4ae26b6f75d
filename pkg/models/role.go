package models

import (
	"fmt"
	"strings"
)

// Role identifies an agent role. The set is closed: every role carries a
// RoleSpec and there is no fallback for unknown names.
type Role string

const (
	RoleRequirements Role = "requirements"
	RoleArchitect    Role = "architect"
	RolePlanner      Role = "planner"
	RoleCoder        Role = "coder"
	RoleFixer        Role = "fixer"
	RoleTester       Role = "tester"
	RoleReviewer     Role = "reviewer"
	RoleDocumenter   Role = "documenter"
)

// Offices group roles that share one worker pool.
const (
	OfficePlanning = "planning"
	OfficeCoding   = "coding"
	OfficeQA       = "qa"
)

// Gate selects the plausibility check applied to a role's output.
type Gate int

const (
	// GateMinLength rejects output below the configured character floor.
	GateMinLength Gate = iota
	// GateSentinel accepts a terse literal sentinel below the floor.
	GateSentinel
	// GateFixMarker requires a structured correction marker regardless of length.
	GateFixMarker
	// GateTaskList requires the output to parse as a task list.
	GateTaskList
)

// String returns the gate name.
func (g Gate) String() string {
	switch g {
	case GateMinLength:
		return "min_length"
	case GateSentinel:
		return "sentinel"
	case GateFixMarker:
		return "fix_marker"
	case GateTaskList:
		return "task_list"
	default:
		return "unknown"
	}
}

// ExecMode selects how a role's prompt reaches the provider.
type ExecMode string

const (
	// ExecStreaming uses a streaming session.
	ExecStreaming ExecMode = "streaming"
	// ExecOneShot spawns a bounded one-shot subprocess.
	ExecOneShot ExecMode = "oneshot"
)

// Valid returns true if the mode is a known value.
func (m ExecMode) Valid() bool {
	return m == ExecStreaming || m == ExecOneShot
}

// RoleSpec is the static behavior attached to a role.
type RoleSpec struct {
	// Tier sizes the retry budget and picks the default model.
	Tier Tier
	// HeavyUse roles get the full configured retry budget.
	HeavyUse bool
	// Gate is the plausibility check for this role.
	Gate Gate
	// Sentinel is the terse literal accepted by GateSentinel.
	Sentinel string
	// Mode is the default execution mode.
	Mode ExecMode
	// Office is the worker pool that runs this role.
	Office string
}

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleRequirements,
	RoleArchitect,
	RolePlanner,
	RoleCoder,
	RoleFixer,
	RoleTester,
	RoleReviewer,
	RoleDocumenter,
}

// Spec returns the role's static behavior. ok is false for unknown roles.
func (r Role) Spec() (spec RoleSpec, ok bool) {
	switch r {
	case RoleRequirements:
		return RoleSpec{Tier: TierStandard, Gate: GateMinLength, Mode: ExecOneShot, Office: OfficePlanning}, true
	case RoleArchitect:
		return RoleSpec{Tier: TierComplex, Gate: GateMinLength, Mode: ExecStreaming, Office: OfficePlanning}, true
	case RolePlanner:
		return RoleSpec{Tier: TierStandard, Gate: GateTaskList, Mode: ExecOneShot, Office: OfficePlanning}, true
	case RoleCoder:
		return RoleSpec{Tier: TierStandard, HeavyUse: true, Gate: GateMinLength, Mode: ExecStreaming, Office: OfficeCoding}, true
	case RoleFixer:
		return RoleSpec{Tier: TierStandard, HeavyUse: true, Gate: GateFixMarker, Mode: ExecStreaming, Office: OfficeCoding}, true
	case RoleTester:
		return RoleSpec{Tier: TierRoutine, Gate: GateMinLength, Mode: ExecOneShot, Office: OfficeQA}, true
	case RoleReviewer:
		return RoleSpec{Tier: TierStandard, Gate: GateSentinel, Sentinel: "APPROVED", Mode: ExecOneShot, Office: OfficeQA}, true
	case RoleDocumenter:
		return RoleSpec{Tier: TierRoutine, Gate: GateMinLength, Mode: ExecOneShot, Office: OfficeCoding}, true
	default:
		return RoleSpec{}, false
	}
}

// MustSpec is Spec for roles known to be valid. It panics on unknown roles.
func (r Role) MustSpec() RoleSpec {
	spec, ok := r.Spec()
	if !ok {
		panic(fmt.Sprintf("models: unknown role %q", string(r)))
	}
	return spec
}

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	_, ok := r.Spec()
	return ok
}

// ParseRole converts a role name to a Role.
func ParseRole(name string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// CanonicalRole returns the role used when an escalation targets a tier
// rather than a specific role.
func CanonicalRole(t Tier) Role {
	switch t {
	case TierRoutine:
		return RoleTester
	case TierComplex:
		return RoleArchitect
	default:
		return RoleCoder
	}
}
