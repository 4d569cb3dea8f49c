// Package cure reconciles a freshly computed plan against a host that
// already shows traces of a prior install, so "already installed" becomes
// an idempotent re-convergence instead of a blanket failure.
package cure

import (
	"context"
	"fmt"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

// Classification is the outcome of comparing one fresh-plan action against
// the ghost (prior receipt or host-inspection-derived) state.
type Classification int

const (
	// Missing: the live host shows the prerequisite is absent; execute
	// normally.
	Missing Classification = iota
	// Matches: same kind, same parameters; mark Completed without running
	// try_execute.
	Matches
	// Adoptable: same kind, parameters differ in a way the action
	// declares adoptable; record live values as the plan's values and
	// mark Completed.
	Adoptable
	// Conflicting: live host shows a kind-mismatch; fail with
	// CureConflict and do not mutate.
	Conflicting
)

func (c Classification) String() string {
	switch c {
	case Matches:
		return "matches"
	case Adoptable:
		return "adoptable"
	case Conflicting:
		return "conflicting"
	default:
		return "missing"
	}
}

// Verdict pairs one fresh-plan action with its classification and, for
// Conflicting, the reason.
type Verdict struct {
	Action         action.Action
	Classification Classification
	Reason         string
}

// Reconcile loads the prior receipt if present, else synthesizes a ghost
// plan from host inspection, classifies every action in fresh against it,
// and marks Matches/Adoptable actions Completed in place (mutating fresh's
// actions) so the executor only performs real work on Planned actions.
func Reconcile(ctx context.Context, host action.Host, store *receipt.Store, fresh *plan.Plan) ([]Verdict, error) {
	var ghost *plan.Plan
	if store.Exists() {
		loaded, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("cure: load prior receipt: %w", err)
		}
		ghost = loaded
	} else {
		ghost = synthesizeGhost(ctx, host, fresh)
	}

	ghostBySynopsis := make(map[string]action.Action, len(ghost.Actions))
	for _, a := range ghost.Actions {
		ghostBySynopsis[a.Synopsis()] = a
	}

	verdicts := make([]Verdict, 0, len(fresh.Actions))
	for _, a := range fresh.Actions {
		v := classify(ctx, host, a, ghostBySynopsis[a.Synopsis()])
		verdicts = append(verdicts, v)
		if v.Classification == Matches || v.Classification == Adoptable {
			markCompletedWithoutExecute(a)
		}
	}
	return verdicts, nil
}

// classify compares a freshly planned action against its ghost counterpart
// (nil if the ghost has no action of that synopsis, i.e. genuinely new).
func classify(ctx context.Context, host action.Host, fresh, ghostAction action.Action) Verdict {
	switch a := fresh.(type) {
	case *action.CreateGroupAction:
		return classifyGroup(host, a)
	case *action.CreateUserAction:
		return classifyUser(host, a)
	case *action.CreateDirectoryAction:
		return classifyDirectory(host, a)
	default:
		if ghostAction == nil {
			return Verdict{Action: fresh, Classification: Missing}
		}
		if ghostAction.Kind() == fresh.Kind() {
			return Verdict{Action: fresh, Classification: Matches}
		}
		return Verdict{Action: fresh, Classification: Conflicting, Reason: fmt.Sprintf("ghost kind %s != fresh kind %s", ghostAction.Kind(), fresh.Kind())}
	}
}

func classifyGroup(host action.Host, a *action.CreateGroupAction) Verdict {
	existing, err := host.LookupGroup(a.Name)
	if err != nil {
		return Verdict{Action: a, Classification: Missing}
	}
	if existing.GID == a.GID {
		return Verdict{Action: a, Classification: Matches}
	}
	return Verdict{Action: a, Classification: Conflicting,
		Reason: fmt.Sprintf("group %s exists with gid %d, plan expects %d", a.Name, existing.GID, a.GID)}
}

func classifyUser(host action.Host, a *action.CreateUserAction) Verdict {
	existing, err := host.LookupUser(a.Name)
	if err != nil {
		return Verdict{Action: a, Classification: Missing}
	}
	if existing.UID == a.UID && existing.PrimaryGroup == a.PrimaryGroup {
		if existing.HomeDir != a.HomeDir {
			// Home directory override is declared adoptable: record the
			// live value as the plan's value.
			a.HomeDir = existing.HomeDir
			return Verdict{Action: a, Classification: Adoptable,
				Reason: fmt.Sprintf("adopted existing home directory %s", existing.HomeDir)}
		}
		return Verdict{Action: a, Classification: Matches}
	}
	return Verdict{Action: a, Classification: Conflicting,
		Reason: fmt.Sprintf("user %s exists with uid=%d group=%s, plan expects uid=%d group=%s",
			a.Name, existing.UID, existing.PrimaryGroup, a.UID, a.PrimaryGroup)}
}

// synthesizeGhost builds a stand-in plan from host inspection when no prior
// receipt exists: for every top-level action (recursing into composite
// children), if the host shows live evidence of that same kind at that same
// synopsis, the ghost carries that same action so the
// default classify branch can recognize "same kind" without a receipt.
// The three specially handled kinds (group/user/directory) probe the host
// directly in their classify* functions and don't consult the ghost at all;
// this synthesis only backstops kinds without dedicated classification.
func synthesizeGhost(ctx context.Context, host action.Host, fresh *plan.Plan) *plan.Plan {
	ghost := plan.New(fresh.Settings, fresh.Target)
	var walk func(a action.Action)
	walk = func(a action.Action) {
		if hasLiveEvidence(host, a) {
			ghost.Append(a)
		}
		for _, child := range a.Children() {
			walk(child)
		}
	}
	for _, a := range fresh.Actions {
		walk(a)
	}
	return ghost
}

// hasLiveEvidence reports whether the host already shows the mutation a
// would perform, used only for the generic ghost backstop above.
func hasLiveEvidence(host action.Host, a action.Action) bool {
	switch concrete := a.(type) {
	case *action.CreateFileAction:
		_, err := host.Stat(concrete.Path)
		return err == nil
	case *action.CreateSymlinkAction:
		_, err := host.Lstat(concrete.LinkPath)
		return err == nil
	default:
		return false
	}
}

func classifyDirectory(host action.Host, a *action.CreateDirectoryAction) Verdict {
	info, err := host.Stat(a.Path)
	if err != nil {
		return Verdict{Action: a, Classification: Missing}
	}
	if !info.IsDir() {
		return Verdict{Action: a, Classification: Conflicting,
			Reason: fmt.Sprintf("%s exists and is not a directory", a.Path)}
	}
	return Verdict{Action: a, Classification: Matches}
}

// markCompletedWithoutExecute transitions a directly to Completed (the
// Matches/Adoptable path bypasses TryExecute entirely), trusting the
// classification functions above to have already confirmed the host state
// satisfies the action's already-recorded plan.
func markCompletedWithoutExecute(a action.Action) {
	if curable, ok := a.(action.Curable); ok {
		curable.MarkCuredComplete()
	}
}
