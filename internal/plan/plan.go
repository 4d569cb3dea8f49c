// Package plan holds the in-memory and on-disk representation of an
// installation plan: an ordered top-level action sequence plus the
// settings it was built from, serialized as human-readable JSON a user can
// inspect and redact before confirming an install.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/nix-installer/nix-installer/internal/action"
)

// CurrentVersion is the schema version written by this build. Loaders
// refuse plans/receipts newer than this and migrate anything older.
const CurrentVersion = 1

// TargetArchive identifies the embedded archive being installed: its
// resolved version, the OS/arch pair, and the verification material the
// unpack phase consumes.
type TargetArchive struct {
	Version             *semver.Version `json:"version"`
	OS                  string          `json:"os"`
	Arch                string          `json:"arch"`
	URL                 string          `json:"url"`
	DigestHex           string          `json:"digest_hex"`
	SignaturePath       string          `json:"signature_path,omitempty"`
	ArmoredKey          string          `json:"armored_key,omitempty"`
	ExpectedFingerprint string          `json:"expected_fingerprint,omitempty"`
}

// Settings captures every operator-controlled choice a planner consults
// when assembling a Plan, mirroring internal/config's flag/env surface.
type Settings struct {
	Root        string `json:"root"`
	Planner     string `json:"planner"`
	Init        string `json:"init"`
	NoConfirm   bool   `json:"no_confirm"`
	ReceiptPath string `json:"receipt_path"`
	StartDaemon bool   `json:"start_daemon"`
}

// Plan is the top-level, serializable unit of work: an ordered sequence of
// top-level actions (phases) plus the settings and target archive that
// produced them. Ordering-as-array IS the dependency encoding; there is no
// separate edge table.
type Plan struct {
	SchemaVersion int                 `json:"version"`
	Settings      Settings            `json:"settings"`
	Target        TargetArchive       `json:"target"`
	Actions       []action.Action     `json:"-"`
}

// New builds an empty Plan for settings/target, ready to receive top-level
// actions appended by a planner.
func New(settings Settings, target TargetArchive) *Plan {
	return &Plan{SchemaVersion: CurrentVersion, Settings: settings, Target: target}
}

// Append adds one top-level action (typically an *action.Composite phase)
// to the plan's execution sequence.
func (p *Plan) Append(a action.Action) {
	p.Actions = append(p.Actions, a)
}

// Describe concatenates every top-level action's planned descriptions,
// indented by nesting depth, for operator review before confirmation.
func (p *Plan) Describe() string {
	var sb strings.Builder
	for _, a := range p.Actions {
		describeAction(&sb, a, 0)
	}
	return sb.String()
}

func describeAction(sb *strings.Builder, a action.Action, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s\n", indent, a.Synopsis())
	for _, line := range a.PlannedDescriptions() {
		fmt.Fprintf(sb, "%s  - %s\n", indent, line)
	}
	for _, child := range a.Children() {
		describeAction(sb, child, depth+1)
	}
}

// Change describes one difference between two plans, keyed by the kind of
// the differing action and a human-readable summary, consumed by the cure
// engine when explaining a reconciliation.
type Change struct {
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
}

// Diff reports, by synopsis, which top-level actions appear in p but not in
// other and vice versa. It is a shallow, synopsis-keyed comparison: full
// structural diffing of composite trees is the cure engine's job, which
// walks actions directly rather than through this plan-level summary.
func (p *Plan) Diff(other *Plan) []Change {
	mine := actionSynopses(p.Actions)
	theirs := actionSynopses(other.Actions)

	var changes []Change
	for synopsis, kind := range mine {
		if _, ok := theirs[synopsis]; !ok {
			changes = append(changes, Change{Kind: kind, Summary: fmt.Sprintf("added: %s", synopsis)})
		}
	}
	for synopsis, kind := range theirs {
		if _, ok := mine[synopsis]; !ok {
			changes = append(changes, Change{Kind: kind, Summary: fmt.Sprintf("removed: %s", synopsis)})
		}
	}
	return changes
}

func actionSynopses(actions []action.Action) map[string]string {
	out := make(map[string]string, len(actions))
	for _, a := range actions {
		out[a.Synopsis()] = a.Kind()
	}
	return out
}

// serializedPlan is the on-the-wire JSON shape; Actions round-trip through
// the action registry's kind+params encoding so UnmarshalParams can
// rehydrate concrete types.
type serializedPlan struct {
	Version  int                  `json:"version"`
	Settings Settings             `json:"settings"`
	Target   TargetArchive        `json:"target"`
	Actions  []serializedAction   `json:"actions"`
}

type serializedAction struct {
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params"`
}

// MarshalJSON serializes the plan with its schema version as the top field,
// per the plan's on-disk contract.
func (p *Plan) MarshalJSON() ([]byte, error) {
	sp := serializedPlan{Version: p.SchemaVersion, Settings: p.Settings, Target: p.Target}
	for _, a := range p.Actions {
		sp.Actions = append(sp.Actions, serializedAction{Kind: a.Kind(), Params: a.MarshalParams()})
	}
	return json.MarshalIndent(sp, "", "  ")
}

// UnmarshalJSON rehydrates a Plan from its serialized form, refusing any
// schema version newer than CurrentVersion and rejecting unknown action
// kinds. Every failure here means the receipt/plan on disk is not one this
// build can faithfully reconstruct, so each is tagged ReceiptIncompatible
// rather than a bare error -- this is the fatal, --force-overridable case
// §4.E/§7 describe for uninstall.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var sp serializedPlan
	if err := json.Unmarshal(data, &sp); err != nil {
		return action.NewTaggedError(action.TagReceiptIncompatible, "plan", fmt.Errorf("decode: %w", err))
	}
	if sp.Version > CurrentVersion {
		return action.NewTaggedError(action.TagReceiptIncompatible, "plan",
			fmt.Errorf("schema version %d exceeds known maximum %d", sp.Version, CurrentVersion))
	}
	migrated, err := migrate(sp)
	if err != nil {
		return action.NewTaggedError(action.TagReceiptIncompatible, "plan", fmt.Errorf("migrate: %w", err))
	}

	p.SchemaVersion = CurrentVersion
	p.Settings = migrated.Settings
	p.Target = migrated.Target
	p.Actions = nil
	for _, sa := range migrated.Actions {
		a := action.New(sa.Kind)
		if a == nil {
			return action.NewTaggedError(action.TagReceiptIncompatible, "plan", fmt.Errorf("unknown action kind %q", sa.Kind))
		}
		if err := a.UnmarshalParams(sa.Params); err != nil {
			return action.NewTaggedError(action.TagReceiptIncompatible, "plan", fmt.Errorf("unmarshal %s: %w", sa.Kind, err))
		}
		p.Actions = append(p.Actions, a)
	}
	return nil
}

// migrate applies the total, shape-only migration chain from sp's version
// up to CurrentVersion. There is currently only one schema version, so this
// is the identity function; it exists as the named seam future versions
// extend, per the receipt store's migration contract.
func migrate(sp serializedPlan) (serializedPlan, error) {
	if sp.Version == CurrentVersion {
		return sp, nil
	}
	if sp.Version < 1 {
		return sp, fmt.Errorf("unknown schema version %d", sp.Version)
	}
	return sp, nil
}
