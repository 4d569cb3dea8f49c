package main

import "os"

// Exit codes enable scripts to distinguish failure modes without parsing
// stderr.
const (
	ExitSuccess  = 0
	ExitGeneral  = 1
	ExitUsage    = 2
	ExitConflict = 3
	ExitCancelled = 4
)

func exitWithCode(code int) {
	os.Exit(code)
}
