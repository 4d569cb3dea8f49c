package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/nix-installer/nix-installer/internal/errmsg"
)

// runFingerprint identifies one install/uninstall invocation for backup-file
// suffixes; it only needs to be unique per run, not globally stable.
func runFingerprint() string {
	return fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
}

// stdinIsTerminal reports whether stdin is a terminal. Replaceable in
// tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// shouldColorize gates colorized log output on stdout being a terminal.
func shouldColorize() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printInfo(a ...interface{}) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

func printInfof(format string, a ...interface{}) {
	if !quietFlag {
		fmt.Printf(format+"\n", a...)
	}
}

// printError renders err through internal/errmsg so the operator sees
// causes and suggestions rather than a bare Go error chain.
func printError(err error, ctx *errmsg.Context) {
	fmt.Fprintln(os.Stderr, errmsg.Format(err, ctx))
}

// confirm prompts the operator with prompt + " [y/N] " and reads a single
// line of input, defaulting to false on anything but y/yes. A non-terminal
// stdin (piped/CI) is treated as a decline, forcing callers to pass
// --no-confirm explicitly rather than silently proceeding.
func confirm(prompt string) bool {
	if !stdinIsTerminal() {
		return false
	}
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
