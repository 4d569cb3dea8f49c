// Package errmsg expands a failed install/uninstall error into a message
// with likely causes and concrete next steps, keyed off the action
// package's taxonomy tag rather than string-matching error text.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/nix-installer/nix-installer/internal/action"
)

// Context carries details that sharpen a handful of suggestions (receipt
// location, target root). Pass nil for generic formatting.
type Context struct {
	ReceiptPath string
	Root        string
}

// Format returns err's message followed by "Possible causes" and
// "Suggestions" sections appropriate to its taxonomy tag, or, for an error
// that never passed through the action package, a best-effort guess from
// the underlying cause's shape (network error, permission error, ...).
func Format(err error, ctx *Context) string {
	if err == nil {
		return ""
	}

	var tagged *action.TaggedError
	if errors.As(err, &tagged) {
		return formatTagged(tagged, ctx)
	}

	var rollback *action.RollbackError
	if errors.As(err, &rollback) {
		return formatRollback(rollback, ctx)
	}

	errMsg := err.Error()

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr, errMsg)
	}
	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg)
	}
	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg, ctx)
	}

	return errMsg
}

func formatTagged(err *action.TaggedError, ctx *Context) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	switch err.Tag {
	case action.TagPlanConflict:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The target already has a conflicting file, user, or group\n")
		sb.WriteString("  - A previous install was only partially removed\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Run the repair/cure command to reconcile against the existing state\n")
		sb.WriteString("  - Inspect the conflicting path or identity reported above and remove it manually if safe\n")

	case action.TagActionFailed:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - Insufficient privileges to perform the step above\n")
		sb.WriteString("  - Disk full or filesystem mounted read-only\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run with sufficient privileges (e.g. via sudo)\n")
		sb.WriteString("  - Check available disk space on the target filesystem\n")
		if ctx != nil && ctx.Root != "" {
			sb.WriteString(fmt.Sprintf("  - Verify %s is writable\n", ctx.Root))
		}

	case action.TagRevertFailed:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - A file or identity created during install was modified afterward\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run uninstall; revert is retried and failures don't block later steps\n")
		sb.WriteString("  - Remove the listed paths or identities by hand if they no longer matter\n")

	case action.TagCureConflict:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The host already has a user, group, or file with the same name but different parameters\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Rename or remove the conflicting entity and re-run\n")
		sb.WriteString("  - Pick a different installation root\n")

	case action.TagReceiptIncompatible:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The receipt was written by a newer installer version\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Upgrade the installer to at least the version that wrote the receipt\n")
		if ctx != nil && ctx.ReceiptPath != "" {
			sb.WriteString(fmt.Sprintf("  - Inspect %s to confirm its top-level version field\n", ctx.ReceiptPath))
		}

	case action.TagCancelled:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - The install was interrupted (Ctrl-C or a terminating signal)\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run the installer; completed steps are skipped or reconciled automatically\n")

	case action.TagHardAbort:
		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - A second interrupt arrived, so the installer exited without finishing rollback\n")
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Review the steps above and clean up manually before retrying\n")

	default:
		sb.WriteString("\nSuggestions:\n")
		sb.WriteString("  - Re-run with verbose logging for more detail\n")
	}

	return sb.String()
}

func formatRollback(err *action.RollbackError, ctx *Context) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n\nThe install failed and was rolled back")
	if len(err.RevertFailures) > 0 {
		sb.WriteString(", though not every step could be undone")
	}
	sb.WriteString(".\n")

	var cause *action.TaggedError
	if errors.As(err.Cause, &cause) {
		sb.WriteString("\n")
		sb.WriteString(formatTagged(cause, ctx))
	}
	return sb.String()
}

func formatNetworkError(err net.Error, errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	if err.Timeout() {
		sb.WriteString("  - If you are behind a slow proxy, retry from a faster network\n")
	}
	return sb.String()
}

func formatGenericNetworkError(errMsg string) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - Service temporarily unavailable\n")
	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	return sb.String()
}

func formatPermissionError(errMsg string, ctx *Context) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")
	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on the target root\n")
	sb.WriteString("\nSuggestions:\n")
	if ctx != nil && ctx.Root != "" {
		sb.WriteString(fmt.Sprintf("  - Check ownership and permissions on %s\n", ctx.Root))
	} else {
		sb.WriteString("  - Check ownership and permissions on the target root\n")
	}
	sb.WriteString("  - Re-run with sufficient privileges\n")
	return sb.String()
}

func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "i/o timeout")
}

func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
