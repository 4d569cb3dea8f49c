package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/config"
	"github.com/nix-installer/nix-installer/internal/errmsg"
	"github.com/nix-installer/nix-installer/internal/executor"
	"github.com/nix-installer/nix-installer/internal/log"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

var (
	uninstallRoot        string
	uninstallReceiptPath string
	uninstallForce       bool
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Revert every action recorded in the receipt, in reverse order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := globalCtx
		uninstallForce = config.GetForce(uninstallForce)

		settings, err := resolveSettings(uninstallRoot, uninstallReceiptPath, "", "", true, false)
		if err != nil {
			return err
		}
		errCtx := &errmsg.Context{ReceiptPath: settings.ReceiptPath, Root: settings.Root}

		store := receipt.NewStore(settings.ReceiptPath)
		if !store.Exists() {
			printInfof("no receipt at %s, nothing to uninstall", settings.ReceiptPath)
			return nil
		}

		if _, loadErr := store.Load(); loadErr != nil {
			var tagged *action.TaggedError
			if errors.As(loadErr, &tagged) && tagged.Tag == action.TagReceiptIncompatible {
				if !uninstallForce {
					printError(loadErr, errCtx)
					exitWithCode(ExitConflict)
					return nil
				}
				printInfo("receipt is incompatible and cannot be parsed; --force given, removing it without reverting any recorded actions")
				if err := store.Delete(); err != nil {
					printError(err, errCtx)
					exitWithCode(ExitGeneral)
					return nil
				}
				printInfo("uninstalled (receipt removed; no actions could be reverted)")
				return nil
			}
		}

		if !uninstallForce && !confirm("Remove the installed tree and all provisioned identities?") {
			printInfo("aborted")
			return nil
		}

		host := action.NewRealHost(runFingerprint())
		exec := executor.New(host, store, progressObserver(), log.Default())
		if err := exec.Uninstall(ctx); err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		printInfo("uninstalled")
		return nil
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallRoot, "root", "", "target root directory")
	uninstallCmd.Flags().StringVar(&uninstallReceiptPath, "receipt-path", "", "receipt file path")
	uninstallCmd.Flags().BoolVar(&uninstallForce, "force", false, "skip the confirmation prompt")
}
