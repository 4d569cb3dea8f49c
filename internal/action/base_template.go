package action

import (
	"context"
	"fmt"
	"strings"
)

func init() {
	Register("render-template", func() Action { return &RenderTemplateAction{} })
	Register("create-symlink", func() Action { return &CreateSymlinkAction{} })
}

// RenderTemplateAction string-interpolates Template (a bundled template
// string with "{{key}}" placeholders) against Vars and writes the result to
// Path, following the back-up discipline of CreateFileAction.
type RenderTemplateAction struct {
	Base

	Path     string
	Template string
	Vars     map[string]string

	inner CreateFileAction
}

func (a *RenderTemplateAction) Kind() string              { return "render-template" }
func (a *RenderTemplateAction) Reversibility() Reversibility { return BestEffort }
func (a *RenderTemplateAction) Children() []Action         { return nil }

func (a *RenderTemplateAction) render() []byte {
	out := a.Template
	for k, v := range a.Vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return []byte(out)
}

func (a *RenderTemplateAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("render-template %s", a.Path))
	a.inner = CreateFileAction{Path: a.Path, Content: a.render()}
	if err := a.inner.TryPlan(ctx, host); err != nil {
		return err
	}
	a.markPlanned(a.inner.PlannedDescriptions())
	return nil
}

func (a *RenderTemplateAction) TryExecute(ctx context.Context, host Host) error {
	if err := a.inner.TryExecute(ctx, host); err != nil {
		return err
	}
	a.markCompleted(a.inner.ExecutedDescriptions())
	return nil
}

func (a *RenderTemplateAction) TryRevert(ctx context.Context, host Host) error {
	if err := a.inner.TryRevert(ctx, host); err != nil {
		return err
	}
	a.markReverted()
	return nil
}

func (a *RenderTemplateAction) MarshalParams() map[string]any {
	return map[string]any{
		"path": a.Path, "template": a.Template, "vars": a.Vars,
		"inner": a.inner.MarshalParams(),
	}
}

func (a *RenderTemplateAction) UnmarshalParams(params map[string]any) error {
	a.Path, _ = params["path"].(string)
	a.Template, _ = params["template"].(string)
	if vars, ok := params["vars"].(map[string]any); ok {
		a.Vars = make(map[string]string, len(vars))
		for k, v := range vars {
			if s, ok := v.(string); ok {
				a.Vars[k] = s
			}
		}
	}
	if inner, ok := params["inner"].(map[string]any); ok {
		_ = a.inner.UnmarshalParams(inner)
	}
	return nil
}

// CreateSymlinkAction creates a symlink at LinkPath pointing to Target,
// backing up any pre-existing foreign file at LinkPath.
type CreateSymlinkAction struct {
	Base

	LinkPath string
	Target   string

	backupPath string
	hadBackup  bool
	existedAsLink bool
}

func (a *CreateSymlinkAction) Kind() string              { return "create-symlink" }
func (a *CreateSymlinkAction) Reversibility() Reversibility { return BestEffort }
func (a *CreateSymlinkAction) Children() []Action         { return nil }

func (a *CreateSymlinkAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("create-symlink %s -> %s", a.LinkPath, a.Target))
	if target, err := host.Readlink(a.LinkPath); err == nil {
		if target == a.Target {
			a.existedAsLink = true
			a.markPlanned([]string{fmt.Sprintf("%s already links to %s", a.LinkPath, a.Target)})
			return nil
		}
	}
	descriptions := []string{fmt.Sprintf("link %s -> %s", a.LinkPath, a.Target)}
	if _, err := host.Lstat(a.LinkPath); err == nil {
		a.backupPath = fmt.Sprintf("%s.%s.bak", a.LinkPath, host.Fingerprint())
		descriptions = append(descriptions, fmt.Sprintf("back up existing %s to %s", a.LinkPath, a.backupPath))
	}
	a.markPlanned(descriptions)
	return nil
}

func (a *CreateSymlinkAction) TryExecute(ctx context.Context, host Host) error {
	if a.existedAsLink {
		a.markCompleted([]string{fmt.Sprintf("%s already linked", a.LinkPath)})
		return nil
	}
	if a.backupPath != "" {
		if err := host.Rename(a.LinkPath, a.backupPath); err != nil {
			return NewTaggedError(TagActionFailed, a.Synopsis(), err)
		}
		a.hadBackup = true
	}
	if err := host.Symlink(a.Target, a.LinkPath); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("linked %s -> %s", a.LinkPath, a.Target)})
	return nil
}

func (a *CreateSymlinkAction) TryRevert(ctx context.Context, host Host) error {
	if a.existedAsLink {
		a.markReverted()
		return nil
	}
	if err := host.Remove(a.LinkPath); err != nil {
		if _, statErr := host.Lstat(a.LinkPath); statErr != nil {
			a.markReverted()
			return nil
		}
		return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
	}
	if a.hadBackup {
		if err := host.Rename(a.backupPath, a.LinkPath); err != nil {
			return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
		}
	}
	a.markReverted()
	return nil
}

func (a *CreateSymlinkAction) MarshalParams() map[string]any {
	return map[string]any{
		"link_path": a.LinkPath, "target": a.Target,
		"backup_path": a.backupPath, "had_backup": a.hadBackup, "existed_as_link": a.existedAsLink,
	}
}

func (a *CreateSymlinkAction) UnmarshalParams(params map[string]any) error {
	a.LinkPath, _ = params["link_path"].(string)
	a.Target, _ = params["target"].(string)
	a.backupPath, _ = params["backup_path"].(string)
	a.hadBackup, _ = params["had_backup"].(bool)
	a.existedAsLink, _ = params["existed_as_link"].(bool)
	return nil
}
