// Package executor drives a plan's top-level actions through execute and,
// on failure, through best-effort rollback, emitting progress events a TUI
// or logger can render.
package executor

import (
	"context"
	"fmt"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/log"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

// EventKind tags one progress event the executor emits.
type EventKind int

const (
	EventStart EventKind = iota
	EventFinish
	EventRevertStart
	EventRevertFinish
)

// Event is one action start/finish notification, keyed by the action's
// synopsis. No event is required for correctness; consumers only render.
type Event struct {
	Kind     EventKind
	Synopsis string
	Err      error
}

// Observer receives Events as the executor progresses. A nil Observer is
// valid; events are then dropped, and the executor's own Logger output is
// unchanged.
type Observer func(Event)

// Executor runs a plan's top-level actions in order and, on failure,
// reverts whatever completed, collecting (never aborting on) revert errors.
type Executor struct {
	Host     action.Host
	Store    *receipt.Store
	Observer Observer
	Logger   log.Logger
}

// New builds an Executor. logger defaults to log.Default() if nil.
func New(host action.Host, store *receipt.Store, observer Observer, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{Host: host, Store: store, Observer: observer, Logger: logger}
}

func (e *Executor) emit(ev Event) {
	if e.Observer != nil {
		e.Observer(ev)
	}
}

// Execute runs p's top-level actions in order (step 1-2 of the algorithm).
// On any action error it reverts, in reverse order, every top-level action
// whose state reached Completed or Planned-with-side-effects (step 4),
// collecting revert failures rather than aborting, then returns a
// RollbackError wrapping the original cause. On success it writes the
// receipt (step 5).
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) error {
	var completed []action.Action

	for _, a := range p.Actions {
		if ctx.Err() != nil {
			return e.rollback(ctx, completed, action.NewTaggedError(action.TagCancelled, "execute", ctx.Err()))
		}

		if a.State() == action.Uninitialized {
			if err := a.TryPlan(ctx, e.Host); err != nil {
				e.Logger.Error("plan failed", "kind", a.Kind(), "err", err)
				return e.rollback(ctx, completed, err)
			}
		}

		e.emit(Event{Kind: EventStart, Synopsis: a.Synopsis()})
		e.Logger.Info("executing action", "synopsis", a.Synopsis(), "kind", a.Kind())

		err := a.TryExecute(ctx, e.Host)
		if err != nil && action.IsAlreadyDone(err) {
			err = nil
		}
		e.emit(Event{Kind: EventFinish, Synopsis: a.Synopsis(), Err: err})
		if err != nil {
			e.Logger.Error("action failed", "synopsis", a.Synopsis(), "err", err)
			// a itself may have partially executed (a composite's
			// earlier children completed before a later one failed),
			// so it needs reverting too, not just the actions before it.
			return e.rollback(ctx, append(completed, a), err)
		}
		completed = append(completed, a)
	}

	if err := e.Store.Write(p); err != nil {
		return fmt.Errorf("executor: write receipt: %w", err)
	}
	e.Logger.Info("install complete", "actions", len(p.Actions))
	return nil
}

// rollback reverts completed actions in reverse order, collecting every
// revert failure rather than stopping at the first one (best-effort
// rollback), and returns a RollbackError combining cause with the
// collected failures.
func (e *Executor) rollback(ctx context.Context, completed []action.Action, cause error) error {
	var failures []action.RevertFailure
	for i := len(completed) - 1; i >= 0; i-- {
		a := completed[i]
		e.emit(Event{Kind: EventRevertStart, Synopsis: a.Synopsis()})
		err := a.TryRevert(ctx, e.Host)
		e.emit(Event{Kind: EventRevertFinish, Synopsis: a.Synopsis(), Err: err})
		if err != nil {
			e.Logger.Error("revert failed", "synopsis", a.Synopsis(), "err", err)
			failures = append(failures, action.RevertFailure{Synopsis: a.Synopsis(), Err: err})
		}
	}
	return &action.RollbackError{Cause: cause, RevertFailures: failures}
}

// Uninstall loads the receipt, drives TryRevert on each top-level action in
// reverse order, tolerates per-action revert errors (collected, reported,
// continue), and deletes the receipt regardless of whether some actions
// failed to revert: a partially-reverted host with no receipt is still
// closer to clean than one frozen behind a receipt nothing will ever read
// again, and a subsequent install's cure pass can reconcile what's left.
func (e *Executor) Uninstall(ctx context.Context) error {
	p, err := e.Store.Load()
	if err != nil {
		return fmt.Errorf("executor: load receipt: %w", err)
	}

	var failures []action.RevertFailure
	for i := len(p.Actions) - 1; i >= 0; i-- {
		a := p.Actions[i]
		e.emit(Event{Kind: EventRevertStart, Synopsis: a.Synopsis()})
		err := a.TryRevert(ctx, e.Host)
		e.emit(Event{Kind: EventRevertFinish, Synopsis: a.Synopsis(), Err: err})
		if err != nil {
			e.Logger.Error("revert failed during uninstall", "synopsis", a.Synopsis(), "err", err)
			failures = append(failures, action.RevertFailure{Synopsis: a.Synopsis(), Err: err})
		}
	}

	if err := e.Store.Delete(); err != nil {
		return fmt.Errorf("executor: delete receipt: %w", err)
	}
	if len(failures) > 0 {
		return &action.RollbackError{Cause: fmt.Errorf("uninstall: %d action(s) failed to revert", len(failures)), RevertFailures: failures}
	}
	return nil
}
