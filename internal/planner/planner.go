// Package planner defines the contract every per-platform planner
// implements: turn operator settings into a concrete, ordered Plan.
package planner

import (
	"context"

	"github.com/nix-installer/nix-installer/internal/plan"
)

// Planner builds a Plan from settings, inspecting the host as needed (e.g.
// distro family, available init supervisor) to decide which phases and
// parameters apply. Build itself performs no mutation; only the executor
// does.
type Planner interface {
	Build(ctx context.Context, settings plan.Settings, target plan.TargetArchive) (*plan.Plan, error)
}

// NixBuildUIDBase/NixBuildGID are the conventional base identity numbers the
// reference planners assign the nixbld pool, matching the real installer's
// convention referenced by the testable scenarios.
const (
	NixBuildGroupName = "nixbld"
	NixBuildGID       = 30000
	NixBuildUIDBase   = 30001
	NixBuildUserCount = 32
)
