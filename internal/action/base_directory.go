package action

import (
	"context"
	"fmt"
	"io/fs"
)

func init() {
	Register("create-directory", func() Action { return &CreateDirectoryAction{} })
}

// CreateDirectoryAction creates a directory (and any missing parents) at
// Path. Revert removes the directory only if it is empty at revert time --
// the spec's canonical example of a Lossless-but-conditional revert.
type CreateDirectoryAction struct {
	Base

	Path string
	Mode fs.FileMode

	existed bool
}

func (a *CreateDirectoryAction) Kind() string              { return "create-directory" }
func (a *CreateDirectoryAction) Reversibility() Reversibility { return Lossless }
func (a *CreateDirectoryAction) Children() []Action         { return nil }

func (a *CreateDirectoryAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("create-directory %s", a.Path))
	info, err := host.Stat(a.Path)
	if err == nil {
		if !info.IsDir() {
			return NewTaggedError(TagPlanConflict, a.Synopsis(), fmt.Errorf("%s exists and is not a directory", a.Path))
		}
		a.existed = true
		a.markPlanned([]string{fmt.Sprintf("%s already exists, nothing to do", a.Path)})
		return nil
	}
	a.existed = false
	if a.Mode == 0 {
		a.Mode = 0755
	}
	a.markPlanned([]string{fmt.Sprintf("create directory %s (mode %o)", a.Path, a.Mode)})
	return nil
}

func (a *CreateDirectoryAction) TryExecute(ctx context.Context, host Host) error {
	if a.existed {
		a.markCompleted([]string{fmt.Sprintf("%s already existed", a.Path)})
		return nil
	}
	if err := host.MkdirAll(a.Path, a.Mode); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("created directory %s", a.Path)})
	return nil
}

func (a *CreateDirectoryAction) TryRevert(ctx context.Context, host Host) error {
	if a.existed {
		a.markReverted()
		return nil
	}
	if err := host.Remove(a.Path); err != nil {
		if _, statErr := host.Stat(a.Path); statErr != nil {
			// Already gone: idempotent revert.
			a.markReverted()
			return nil
		}
		return NewTaggedError(TagRevertFailed, a.Synopsis(), fmt.Errorf("remove %s: %w (directory likely non-empty)", a.Path, err))
	}
	a.markReverted()
	return nil
}

func (a *CreateDirectoryAction) MarshalParams() map[string]any {
	return map[string]any{"path": a.Path, "mode": uint32(a.Mode), "existed": a.existed}
}

func (a *CreateDirectoryAction) UnmarshalParams(params map[string]any) error {
	a.Path, _ = params["path"].(string)
	if m, ok := params["mode"].(float64); ok {
		a.Mode = fs.FileMode(uint32(m))
	}
	a.existed, _ = params["existed"].(bool)
	return nil
}
