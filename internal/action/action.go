// Package action defines the protocol every installer mutation implements:
// a tagged kind, a plan/execute/revert lifecycle, human-readable
// descriptions, and a kind-keyed registry for receipt round-tripping.
package action

import (
	"context"
	"sync"
)

// State is the per-action lifecycle position. "Reverted" is represented as
// Uninitialized after a successful revert, per the documented lifecycle.
type State int

const (
	Uninitialized State = iota
	Planned
	Completed
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Completed:
		return "completed"
	default:
		return "uninitialized"
	}
}

// Reversibility is a static property each concrete kind reports: whether
// its revert fully undoes the mutation (Lossless), restores from a backup
// on a best-effort basis (BestEffort), or is inherently irreversible and
// therefore a no-op on revert (Noop, e.g. a completed fetch).
type Reversibility int

const (
	Lossless Reversibility = iota
	BestEffort
	Noop
)

func (r Reversibility) String() string {
	switch r {
	case BestEffort:
		return "best-effort"
	case Noop:
		return "noop"
	default:
		return "lossless"
	}
}

// Action is the uniform contract every mutation implements. Concrete types
// embed Base for state tracking and implement the five operations plus
// parameter marshaling for the registry round-trip.
type Action interface {
	// Kind returns the stable textual tag used by the registry and by
	// receipt serialization to identify this variant.
	Kind() string

	// State returns the action's current lifecycle position.
	State() State

	// Synopsis is a short human label, used in error synopsis chains and
	// progress events.
	Synopsis() string

	// PlannedDescriptions is the ordered, human-readable lines describing
	// the mutations try_execute will perform. Only meaningful once
	// State() != Uninitialized.
	PlannedDescriptions() []string

	// ExecutedDescriptions is the symmetric set shown during revert. Only
	// meaningful once State() == Completed.
	ExecutedDescriptions() []string

	// Reversibility reports this kind's static revert guarantee.
	Reversibility() Reversibility

	// Children returns owned child actions in execution order, or nil for
	// primitive (non-composite) actions.
	Children() []Action

	// TryPlan inspects host (read-only) and records the exact, minimized
	// work this action intends to perform. Deterministic given identical
	// host state. Transitions Uninitialized -> Planned.
	TryPlan(ctx context.Context, host Host) error

	// TryExecute performs the recorded mutations. Idempotent: repeating it
	// after success either no-ops or returns an AlreadyDoneError.
	// Transitions Planned -> Completed.
	TryExecute(ctx context.Context, host Host) error

	// TryRevert undoes the recorded mutations. Idempotent. Transitions
	// Completed -> Uninitialized.
	TryRevert(ctx context.Context, host Host) error

	// MarshalParams returns this action's kind-specific parameters (and,
	// for composites, its children) as a JSON-serializable map, used by
	// plan/receipt serialization.
	MarshalParams() map[string]any

	// UnmarshalParams restores kind-specific parameters from a
	// deserialized map, the inverse of MarshalParams. Used by the
	// registry to rehydrate an action from a loaded plan or receipt.
	UnmarshalParams(params map[string]any) error
}

// Base is embedded by every concrete action to provide state tracking and
// description bookkeeping. It is not itself an Action.
type Base struct {
	state       State
	synopsis    string
	plannedDesc []string
	executedDesc []string
}

func (b *Base) State() State                    { return b.state }
func (b *Base) Synopsis() string                { return b.synopsis }
func (b *Base) PlannedDescriptions() []string   { return b.plannedDesc }
func (b *Base) ExecutedDescriptions() []string  { return b.executedDesc }

func (b *Base) setSynopsis(s string) { b.synopsis = s }

func (b *Base) markPlanned(descriptions []string) {
	b.plannedDesc = descriptions
	b.state = Planned
}

func (b *Base) markCompleted(descriptions []string) {
	b.executedDesc = descriptions
	b.state = Completed
}

func (b *Base) markReverted() {
	b.executedDesc = nil
	b.plannedDesc = nil
	b.state = Uninitialized
}

// MarkCuredComplete transitions a Planned action straight to Completed
// without running TryExecute, used by the cure engine for actions
// classified Matches or Adoptable: the planned description already
// accurately records host state, so it doubles as the executed
// description and, later, the revert metadata.
func (b *Base) MarkCuredComplete() {
	if b.state == Completed {
		return
	}
	b.executedDesc = b.plannedDesc
	b.state = Completed
}

// Curable is satisfied by every Base-embedding action via promotion,
// letting the cure engine force a Matches/Adoptable action to Completed.
type Curable interface {
	MarkCuredComplete()
}

// Constructor is a zero-value factory an action kind registers so the
// receipt/plan loader can rehydrate instances by kind tag.
type Constructor func() Action

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a kind's zero-value constructor to the registry. Called
// from each action file's init().
func Register(kind string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ctor
}

// New constructs a zero-value Action for kind, or nil if kind is unknown.
func New(kind string) Action {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[kind]
	if !ok {
		return nil
	}
	return ctor()
}

// KnownKinds returns every registered kind tag, for diagnostics.
func KnownKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
