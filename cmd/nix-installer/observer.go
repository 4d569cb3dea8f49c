package main

import (
	"fmt"
	"os"

	"github.com/nix-installer/nix-installer/internal/executor"
	"github.com/nix-installer/nix-installer/internal/progress"
)

// progressObserver renders phase start/finish events with a spinner when
// stderr is a terminal, or plain lines otherwise (log files, CI). A nil
// Observer is also valid (executor.New tolerates it); this just makes the
// common interactive case nicer.
func progressObserver() executor.Observer {
	if quietFlag || !progress.ShouldShowProgress() {
		return func(ev executor.Event) {
			if ev.Err != nil && ev.Kind == executor.EventFinish {
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", ev.Synopsis, ev.Err)
			}
		}
	}

	spinner := progress.NewSpinner(os.Stderr)
	return func(ev executor.Event) {
		switch ev.Kind {
		case executor.EventStart:
			spinner.Start(ev.Synopsis)
		case executor.EventFinish:
			if ev.Err != nil {
				spinner.StopWithMessage(fmt.Sprintf("failed: %s", ev.Synopsis))
			} else {
				spinner.StopWithMessage(fmt.Sprintf("done: %s", ev.Synopsis))
			}
		case executor.EventRevertStart:
			spinner.Start(fmt.Sprintf("reverting %s", ev.Synopsis))
		case executor.EventRevertFinish:
			if ev.Err != nil {
				spinner.StopWithMessage(fmt.Sprintf("revert failed: %s", ev.Synopsis))
			} else {
				spinner.StopWithMessage(fmt.Sprintf("reverted: %s", ev.Synopsis))
			}
		}
	}
}
