package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/cure"
	"github.com/nix-installer/nix-installer/internal/errmsg"
	"github.com/nix-installer/nix-installer/internal/executor"
	"github.com/nix-installer/nix-installer/internal/log"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

var (
	installRoot        string
	installReceiptPath string
	installPlanner     string
	installInit        string
	installNoConfirm   bool
	installVersion     string
	installRepo        string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the target tree, provisioning identities and starting the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := globalCtx

		settings, err := resolveSettings(installRoot, installReceiptPath, installPlanner, installInit, installNoConfirm, true)
		if err != nil {
			return err
		}
		errCtx := &errmsg.Context{ReceiptPath: settings.ReceiptPath, Root: settings.Root}

		p, err := buildPlan(ctx, settings, installRepo, installVersion)
		if err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		host := action.NewRealHost(runFingerprint())
		store := receipt.NewStore(settings.ReceiptPath)

		if err := planEverything(ctx, host, p); err != nil {
			printError(err, errCtx)
			if isConflict(err) {
				exitWithCode(ExitConflict)
			} else {
				exitWithCode(ExitGeneral)
			}
			return nil
		}

		verdicts, err := cure.Reconcile(ctx, host, store, p)
		if err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}
		for _, v := range verdicts {
			if v.Classification == cure.Conflicting {
				printError(fmt.Errorf("%s: %s", v.Action.Synopsis(), v.Reason), errCtx)
				exitWithCode(ExitConflict)
				return nil
			}
		}

		printInfo(p.Describe())
		if !settings.NoConfirm && !confirm("Proceed with install?") {
			printInfo("aborted")
			return nil
		}

		exec := executor.New(host, store, progressObserver(), log.Default())
		if err := exec.Execute(ctx, p); err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		printInfof("installed to %s", settings.Root)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installRoot, "root", "", "target root directory")
	installCmd.Flags().StringVar(&installReceiptPath, "receipt-path", "", "receipt file path")
	installCmd.Flags().StringVar(&installPlanner, "planner", "", "planner to use (linux, darwin)")
	installCmd.Flags().StringVar(&installInit, "init", "", "init supervisor (systemd, sysvinit, launchd, none)")
	installCmd.Flags().BoolVar(&installNoConfirm, "no-confirm", false, "skip the confirmation prompt")
	installCmd.Flags().StringVar(&installVersion, "version", "", "target version (\"latest\" by default)")
	installCmd.Flags().StringVar(&installRepo, "repo", "", "owner/repo the resolver queries for releases")
}

// isConflict reports whether err (or a wrapped TaggedError within it) is
// tagged PlanConflict or CureConflict, the two "nothing was mutated" cases
// that warrant a distinct exit code from a mid-execution failure.
func isConflict(err error) bool {
	var tagged *action.TaggedError
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Tag == action.TagPlanConflict || tagged.Tag == action.TagCureConflict
}
