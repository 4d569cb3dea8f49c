package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/buildinfo"
	"github.com/nix-installer/nix-installer/internal/config"
	"github.com/nix-installer/nix-installer/internal/log"
)

var (
	quietFlag   bool
	verboseCount int
)

// globalCtx is canceled on the first SIGINT/SIGTERM; long-running commands
// pass it down to the executor, which stops and rolls back. A second signal
// logs a HardAbort and exits at once, without waiting for the rollback.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "nix-installer",
	Short: "Install, uninstall, and repair a Nix target tree",
	Long: `nix-installer plans, executes, and reverts an installation of the Nix
package manager: it provisions the build-user pool, lays out the target
tree under --root, unpacks and verifies the release archive, wires up the
init supervisor, and records a receipt so uninstall and repair can
reconcile a host back to a clean state.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "show errors only")
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().String("log-format", "", "log output format: compact, full, pretty, json")

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(repairCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nreceived %s, canceling...\n", sig)
		globalCancel()
		<-sigChan
		abortErr := action.NewTaggedError(action.TagHardAbort, "main",
			fmt.Errorf("second %s received before in-flight actions finished reverting", sig))
		log.Default().Error("forced exit", "err", abortErr)
		fmt.Fprintln(os.Stderr, "forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

func initLogger(cmd *cobra.Command, args []string) {
	level := verbosityToLevel(config.GetVerbosity(quietFlag, verboseCount))
	formatFlag, _ := cmd.Flags().GetString("log-format")
	file, _ := config.LoadFileSettings(config.ConfigFilePath())
	format := log.Format(config.GetLogFormat(formatFlag, file))
	handler := log.NewHandler(format, os.Stderr, level, shouldColorize())
	log.SetDefault(log.New(handler))
}

func verbosityToLevel(v config.VerbosityLevel) slog.Level {
	switch v {
	case config.LevelQuiet:
		return slog.LevelError
	case config.LevelDebug:
		return slog.LevelDebug
	case config.LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}
