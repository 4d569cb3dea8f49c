package action

import (
	"context"
	"fmt"

	"github.com/nix-installer/nix-installer/internal/archive"
)

func init() {
	Register("unpack-archive", func() Action { return &UnpackArchiveAction{} })
}

// UnpackArchiveAction extracts ArchivePath into DestPath, stripping
// StripDirs leading path components, using internal/archive's
// format-detecting, path-traversal-safe extractor.
type UnpackArchiveAction struct {
	Base

	ArchivePath string
	Format      archive.Format
	DestPath    string
	StripDirs   int
}

func (a *UnpackArchiveAction) Kind() string              { return "unpack-archive" }
func (a *UnpackArchiveAction) Reversibility() Reversibility { return BestEffort }
func (a *UnpackArchiveAction) Children() []Action         { return nil }

func (a *UnpackArchiveAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("unpack-archive %s", a.ArchivePath))
	if a.Format == "" {
		a.Format = archive.DetectFormat(a.ArchivePath)
		if a.Format == "" {
			return NewTaggedError(TagPlanConflict, a.Synopsis(), fmt.Errorf("cannot detect archive format for %s", a.ArchivePath))
		}
	}
	a.markPlanned([]string{fmt.Sprintf("unpack %s (%s) into %s, stripping %d path component(s)", a.ArchivePath, a.Format, a.DestPath, a.StripDirs)})
	return nil
}

func (a *UnpackArchiveAction) TryExecute(ctx context.Context, host Host) error {
	// RealHost delegates to the real filesystem, so archive.Extract's own
	// os.* calls are correct; a FakeHost-backed test exercises this action
	// by pre-populating a real scratch directory and pointing DestPath at
	// it, matching how the in-process functional suite stages its archive.
	if err := archive.Extract(a.ArchivePath, a.Format, a.DestPath, a.StripDirs); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("unpacked into %s", a.DestPath)})
	return nil
}

func (a *UnpackArchiveAction) TryRevert(ctx context.Context, host Host) error {
	if err := host.RemoveAll(a.DestPath); err != nil {
		return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
	}
	a.markReverted()
	return nil
}

func (a *UnpackArchiveAction) MarshalParams() map[string]any {
	return map[string]any{
		"archive_path": a.ArchivePath, "format": string(a.Format),
		"dest_path": a.DestPath, "strip_dirs": a.StripDirs,
	}
}

func (a *UnpackArchiveAction) UnmarshalParams(params map[string]any) error {
	a.ArchivePath, _ = params["archive_path"].(string)
	if f, ok := params["format"].(string); ok {
		a.Format = archive.Format(f)
	}
	a.DestPath, _ = params["dest_path"].(string)
	if sd, ok := params["strip_dirs"].(float64); ok {
		a.StripDirs = int(sd)
	}
	return nil
}
