package action

import (
	"context"
	"fmt"
	"io/fs"
)

func init() {
	Register("create-file", func() Action { return &CreateFileAction{} })
	Register("remove-file", func() Action { return &RemoveFileAction{} })
}

// CreateFileAction writes Content to Path. If a foreign file already exists
// there, it is moved aside to a sibling path suffixed with the installer's
// fingerprint (the back-up discipline), and revert restores it.
type CreateFileAction struct {
	Base

	Path    string
	Content []byte
	Mode    fs.FileMode

	backupPath string
	hadBackup  bool
}

func (a *CreateFileAction) Kind() string              { return "create-file" }
func (a *CreateFileAction) Reversibility() Reversibility { return BestEffort }
func (a *CreateFileAction) Children() []Action         { return nil }

func (a *CreateFileAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("create-file %s", a.Path))
	if a.Mode == 0 {
		a.Mode = 0644
	}
	descriptions := []string{fmt.Sprintf("write %s (%d bytes)", a.Path, len(a.Content))}
	if _, err := host.Stat(a.Path); err == nil {
		a.backupPath = fmt.Sprintf("%s.%s.bak", a.Path, host.Fingerprint())
		descriptions = append(descriptions, fmt.Sprintf("back up existing %s to %s", a.Path, a.backupPath))
	}
	a.markPlanned(descriptions)
	return nil
}

func (a *CreateFileAction) TryExecute(ctx context.Context, host Host) error {
	if a.backupPath != "" {
		if err := host.Rename(a.Path, a.backupPath); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), fmt.Errorf("back up %s: %w", a.Path, err))
		}
		a.hadBackup = true
	}
	if err := host.WriteFile(a.Path, a.Content, a.Mode); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	executed := []string{fmt.Sprintf("wrote %s", a.Path)}
	if a.hadBackup {
		executed = append(executed, fmt.Sprintf("backed up original to %s", a.backupPath))
	}
	a.markCompleted(executed)
	return nil
}

func (a *CreateFileAction) TryRevert(ctx context.Context, host Host) error {
	if err := host.Remove(a.Path); err != nil {
		if _, statErr := host.Stat(a.Path); statErr == nil {
			return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
		}
	}
	if a.hadBackup {
		if err := host.Rename(a.backupPath, a.Path); err != nil {
			return NewTaggedError(TagRevertFailed, a.Synopsis(), fmt.Errorf("restore backup %s: %w", a.backupPath, err))
		}
	}
	a.markReverted()
	return nil
}

func (a *CreateFileAction) MarshalParams() map[string]any {
	return map[string]any{
		"path": a.Path, "content": string(a.Content), "mode": uint32(a.Mode),
		"backup_path": a.backupPath, "had_backup": a.hadBackup,
	}
}

func (a *CreateFileAction) UnmarshalParams(params map[string]any) error {
	a.Path, _ = params["path"].(string)
	if c, ok := params["content"].(string); ok {
		a.Content = []byte(c)
	}
	if m, ok := params["mode"].(float64); ok {
		a.Mode = fs.FileMode(uint32(m))
	}
	a.backupPath, _ = params["backup_path"].(string)
	a.hadBackup, _ = params["had_backup"].(bool)
	return nil
}

// RemoveFileAction removes Path, recording its prior content so revert can
// restore it exactly.
type RemoveFileAction struct {
	Base

	Path string

	priorContent []byte
	priorMode    fs.FileMode
	existed      bool
}

func (a *RemoveFileAction) Kind() string              { return "remove-file" }
func (a *RemoveFileAction) Reversibility() Reversibility { return Lossless }
func (a *RemoveFileAction) Children() []Action         { return nil }

func (a *RemoveFileAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("remove-file %s", a.Path))
	info, err := host.Stat(a.Path)
	if err != nil {
		a.existed = false
		a.markPlanned([]string{fmt.Sprintf("%s does not exist, nothing to do", a.Path)})
		return nil
	}
	a.existed = true
	a.priorMode = info.Mode()
	a.markPlanned([]string{fmt.Sprintf("remove %s", a.Path)})
	return nil
}

func (a *RemoveFileAction) TryExecute(ctx context.Context, host Host) error {
	if !a.existed {
		a.markCompleted(nil)
		return nil
	}
	content, err := host.ReadFile(a.Path)
	if err == nil {
		a.priorContent = content
	}
	if err := host.Remove(a.Path); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("removed %s", a.Path)})
	return nil
}

func (a *RemoveFileAction) TryRevert(ctx context.Context, host Host) error {
	if !a.existed {
		a.markReverted()
		return nil
	}
	if err := host.WriteFile(a.Path, a.priorContent, a.priorMode); err != nil {
		return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
	}
	a.markReverted()
	return nil
}

func (a *RemoveFileAction) MarshalParams() map[string]any {
	return map[string]any{
		"path": a.Path, "existed": a.existed,
		"prior_content": string(a.priorContent), "prior_mode": uint32(a.priorMode),
	}
}

func (a *RemoveFileAction) UnmarshalParams(params map[string]any) error {
	a.Path, _ = params["path"].(string)
	a.existed, _ = params["existed"].(bool)
	if c, ok := params["prior_content"].(string); ok {
		a.priorContent = []byte(c)
	}
	if m, ok := params["prior_mode"].(float64); ok {
		a.priorMode = fs.FileMode(uint32(m))
	}
	return nil
}
