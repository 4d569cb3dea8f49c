package action

import (
	"context"
	"fmt"
	"strings"
)

const (
	sentinelStart = "# Nix"
	sentinelEnd   = "# End Nix"
)

func init() {
	Register("create-or-merge", func() Action { return &CreateOrMergeAction{} })
}

// CreateOrMergeAction idempotently owns a sentinel-delimited block inside a
// file that may also contain foreign (user- or distro-authored) content.
// If the file doesn't exist, it is created with just our block. If it
// exists and already contains our exact block, this is a no-op. If it
// exists with different or no block, the original is backed up and a new
// file is written with the foreign content preserved above our block.
type CreateOrMergeAction struct {
	Base

	Path string
	Body string // the content placed between the sentinel markers

	action       string // "create" | "noop" | "merge"
	backupPath   string
	foreignLines []string
}

func (a *CreateOrMergeAction) Kind() string              { return "create-or-merge" }
func (a *CreateOrMergeAction) Reversibility() Reversibility { return BestEffort }
func (a *CreateOrMergeAction) Children() []Action         { return nil }

func (a *CreateOrMergeAction) ourBlock() string {
	return sentinelStart + "\n" + a.Body + "\n" + sentinelEnd
}

func (a *CreateOrMergeAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("create-or-merge %s", a.Path))
	existing, err := host.ReadFile(a.Path)
	if err != nil {
		a.action = "create"
		a.markPlanned([]string{fmt.Sprintf("create %s with managed block", a.Path)})
		return nil
	}

	foreign, ourCurrentBlock := splitSentinel(string(existing))
	if ourCurrentBlock == a.ourBlock() {
		a.action = "noop"
		a.markPlanned([]string{fmt.Sprintf("%s already has the expected managed block", a.Path)})
		return nil
	}

	a.action = "merge"
	a.foreignLines = foreign
	a.backupPath = fmt.Sprintf("%s.%s.bak", a.Path, host.Fingerprint())
	a.markPlanned([]string{
		fmt.Sprintf("back up %s to %s", a.Path, a.backupPath),
		fmt.Sprintf("rewrite %s preserving foreign content, updating managed block", a.Path),
	})
	return nil
}

func (a *CreateOrMergeAction) TryExecute(ctx context.Context, host Host) error {
	switch a.action {
	case "noop":
		a.markCompleted(nil)
		return nil
	case "create":
		if err := host.WriteFile(a.Path, []byte(a.ourBlock()+"\n"), 0644); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.markCompleted([]string{fmt.Sprintf("wrote %s", a.Path)})
		return nil
	case "merge":
		if err := host.Rename(a.Path, a.backupPath); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		var sb strings.Builder
		for _, line := range a.foreignLines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString(a.ourBlock())
		sb.WriteString("\n")
		if err := host.WriteFile(a.Path, []byte(sb.String()), 0644); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.markCompleted([]string{
			fmt.Sprintf("backed up original to %s", a.backupPath),
			fmt.Sprintf("rewrote %s", a.Path),
		})
		return nil
	default:
		return NewTaggedError(TagActionFailed, a.Synopsis(), fmt.Errorf("create-or-merge: TryExecute called before TryPlan"))
	}
}

func (a *CreateOrMergeAction) TryRevert(ctx context.Context, host Host) error {
	switch a.action {
	case "noop":
		a.markReverted()
		return nil
	case "create":
		if err := host.Remove(a.Path); err != nil {
			if _, statErr := host.Stat(a.Path); statErr != nil {
				a.markReverted()
				return nil
			}
			return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
		}
		a.markReverted()
		return nil
	case "merge":
		if err := host.Remove(a.Path); err != nil {
			return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
		}
		if err := host.Rename(a.backupPath, a.Path); err != nil {
			return NewTaggedError(TagRevertFailed, a.Synopsis(), fmt.Errorf("restore backup %s: %w", a.backupPath, err))
		}
		a.markReverted()
		return nil
	default:
		a.markReverted()
		return nil
	}
}

func (a *CreateOrMergeAction) MarshalParams() map[string]any {
	return map[string]any{
		"path": a.Path, "body": a.Body, "action": a.action,
		"backup_path": a.backupPath, "foreign_lines": a.foreignLines,
	}
}

func (a *CreateOrMergeAction) UnmarshalParams(params map[string]any) error {
	a.Path, _ = params["path"].(string)
	a.Body, _ = params["body"].(string)
	a.action, _ = params["action"].(string)
	a.backupPath, _ = params["backup_path"].(string)
	if raw, ok := params["foreign_lines"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				a.foreignLines = append(a.foreignLines, s)
			}
		}
	}
	return nil
}

// splitSentinel separates content into the lines outside the managed block
// (foreign) and the managed block itself (empty string if absent).
func splitSentinel(content string) (foreign []string, block string) {
	lines := strings.Split(content, "\n")
	var blockLines []string
	inBlock := false
	for _, line := range lines {
		switch {
		case strings.TrimSpace(line) == sentinelStart:
			inBlock = true
			blockLines = append(blockLines, line)
		case strings.TrimSpace(line) == sentinelEnd:
			inBlock = false
			blockLines = append(blockLines, line)
		case inBlock:
			blockLines = append(blockLines, line)
		default:
			if line != "" {
				foreign = append(foreign, line)
			}
		}
	}
	return foreign, strings.Join(blockLines, "\n")
}
