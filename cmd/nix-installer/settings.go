package main

import (
	"context"
	"fmt"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/config"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/planner"
	"github.com/nix-installer/nix-installer/internal/planner/darwin"
	"github.com/nix-installer/nix-installer/internal/planner/linux"
	"github.com/nix-installer/nix-installer/internal/platform"
	"github.com/nix-installer/nix-installer/internal/resolver"
)

// resolveSettings merges flags, environment, and the static settings file
// into plan.Settings, following internal/config's documented precedence.
func resolveSettings(rootFlag, receiptFlag, plannerFlag, initFlag string, noConfirmFlag, startDaemon bool) (plan.Settings, error) {
	file, err := config.LoadFileSettings(config.ConfigFilePath())
	if err != nil {
		return plan.Settings{}, err
	}
	root := config.GetRoot(rootFlag, file)
	return plan.Settings{
		Root:        root,
		Planner:     config.GetPlanner(plannerFlag, file),
		Init:        config.GetInit(initFlag, file),
		NoConfirm:   config.GetNoConfirm(noConfirmFlag, file),
		ReceiptPath: config.GetReceiptPath(receiptFlag, root, file),
		StartDaemon: startDaemon,
	}, nil
}

// selectPlanner picks the concrete Planner for settings.Planner, falling
// back to the current host's OS when unset.
func selectPlanner(settingsPlanner string) (planner.Planner, error) {
	tag := settingsPlanner
	if tag == "" {
		target, err := platform.DetectTarget()
		if err != nil {
			return nil, fmt.Errorf("detect platform: %w", err)
		}
		tag = target.OS()
	}
	switch tag {
	case "linux":
		return linux.New(), nil
	case "darwin":
		return darwin.New(), nil
	default:
		return nil, fmt.Errorf("no planner available for %q", tag)
	}
}

// resolveTarget asks the resolver for the release matching version against
// repo, for the planner's OS/arch. Empty repo and version flags fall back to
// their environment mirrors, then to config.DefaultRepo and "latest"; a
// pinned version goes through the resolver the same way.
func resolveTarget(ctx context.Context, repo, version, osName, arch string) (plan.TargetArchive, error) {
	repo = config.GetRepo(repo)
	version = config.GetVersion(version)
	token := config.GetGitHubToken()
	r := resolver.New(token)
	exact, isLatest := resolver.ParseVersionConstraint(version)
	if isLatest {
		exact = resolver.Latest
	}
	return r.Resolve(ctx, repo, exact, osName, arch)
}

// buildPlan resolves the target archive then asks the selected planner to
// assemble a full Plan.
func buildPlan(ctx context.Context, settings plan.Settings, repo, version string) (*plan.Plan, error) {
	p, err := selectPlanner(settings.Planner)
	if err != nil {
		return nil, err
	}

	target, err := platform.DetectTarget()
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	archive, err := resolveTarget(ctx, repo, version, target.OS(), target.Arch())
	if err != nil {
		return nil, err
	}

	return p.Build(ctx, settings, archive)
}

// planEverything runs TryPlan on every top-level action of p, the step the
// executor and cure engine both require before they can act on its
// synopses and descriptions.
func planEverything(ctx context.Context, host action.Host, p *plan.Plan) error {
	for _, a := range p.Actions {
		if err := a.TryPlan(ctx, host); err != nil {
			return err
		}
	}
	return nil
}
