package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/errmsg"
)

var (
	planRoot    string
	planPlanner string
	planInit    string
	planVersion string
	planRepo    string
	planJSON    bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the plan install would execute, without touching the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := globalCtx

		settings, err := resolveSettings(planRoot, "", planPlanner, planInit, true, true)
		if err != nil {
			return err
		}
		errCtx := &errmsg.Context{ReceiptPath: settings.ReceiptPath, Root: settings.Root}

		p, err := buildPlan(ctx, settings, planRepo, planVersion)
		if err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		host := action.NewRealHost(runFingerprint())
		if err := planEverything(ctx, host, p); err != nil {
			printError(err, errCtx)
			exitWithCode(ExitGeneral)
			return nil
		}

		if planJSON {
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			printInfo(string(out))
			return nil
		}

		printInfo(p.Describe())
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planRoot, "root", "", "target root directory")
	planCmd.Flags().StringVar(&planPlanner, "planner", "", "planner to use (linux, darwin)")
	planCmd.Flags().StringVar(&planInit, "init", "", "init supervisor (systemd, sysvinit, launchd, none)")
	planCmd.Flags().StringVar(&planVersion, "version", "", "target version (\"latest\" by default)")
	planCmd.Flags().StringVar(&planRepo, "repo", "", "owner/repo the resolver queries for releases")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON instead of a human-readable tree")
}
