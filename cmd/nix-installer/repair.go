package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/config"
	"github.com/nix-installer/nix-installer/internal/cure"
	"github.com/nix-installer/nix-installer/internal/errmsg"
	"github.com/nix-installer/nix-installer/internal/executor"
	"github.com/nix-installer/nix-installer/internal/log"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

var (
	repairRoot        string
	repairReceiptPath string
	repairPlanner     string
	repairInit        string
	repairVersion     string
	repairRepo        string
	repairForce       bool
)

// repairCmd reconciles a fresh plan against whatever the host already
// shows (a stale receipt, or no receipt at all but live users/directories
// from an earlier run), executing only what cure classifies Missing.
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile the host against a fresh plan, completing whatever a prior run left unfinished",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := globalCtx
		repairForce = config.GetForce(repairForce)

		settings, err := resolveSettings(repairRoot, repairReceiptPath, repairPlanner, repairInit, true, true)
		if err != nil {
			return err
		}
		errCtx := &errmsg.Context{ReceiptPath: settings.ReceiptPath, Root: settings.Root}

		p, err := buildPlan(ctx, settings, repairRepo, repairVersion)
		if err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		host := action.NewRealHost(runFingerprint())
		store := receipt.NewStore(settings.ReceiptPath)

		if err := planEverything(ctx, host, p); err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		verdicts, err := cure.Reconcile(ctx, host, store, p)
		if err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}
		for _, v := range verdicts {
			printInfof("%-12s %s", v.Classification, v.Action.Synopsis())
			if v.Classification == cure.Conflicting && !repairForce {
				printError(fmt.Errorf("%s: %s", v.Action.Synopsis(), v.Reason), errCtx)
				exitWithCode(ExitConflict)
				return nil
			}
		}

		if !settings.NoConfirm && !confirm("Apply the above reconciliation?") {
			printInfo("aborted")
			return nil
		}

		exec := executor.New(host, store, progressObserver(), log.Default())
		if err := exec.Execute(ctx, p); err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		printInfo("repaired")
		return nil
	},
}

func init() {
	repairCmd.Flags().StringVar(&repairRoot, "root", "", "target root directory")
	repairCmd.Flags().StringVar(&repairReceiptPath, "receipt-path", "", "receipt file path")
	repairCmd.Flags().StringVar(&repairPlanner, "planner", "", "planner to use (linux, darwin)")
	repairCmd.Flags().StringVar(&repairInit, "init", "", "init supervisor (systemd, sysvinit, launchd, none)")
	repairCmd.Flags().StringVar(&repairVersion, "version", "", "target version (\"latest\" by default)")
	repairCmd.Flags().StringVar(&repairRepo, "repo", "", "owner/repo the resolver queries for releases")
	repairCmd.Flags().BoolVar(&repairForce, "force", false, "proceed even when reconciliation reports a conflict")
}
