package action

import (
	"context"
	"fmt"
)

func init() {
	Register("fetch-and-move", func() Action { return &FetchAndMoveAction{} })
}

// FetchAndMoveAction downloads URL to a tempfile next to Dest and
// atomically renames it into place. Fetches are irreversible by nature --
// revert simply removes the fetched file, and Reversibility reports Noop
// since nothing that existed before the fetch is "restored".
type FetchAndMoveAction struct {
	Base

	URL  string
	Dest string
}

func (a *FetchAndMoveAction) Kind() string              { return "fetch-and-move" }
func (a *FetchAndMoveAction) Reversibility() Reversibility { return Noop }
func (a *FetchAndMoveAction) Children() []Action         { return nil }

func (a *FetchAndMoveAction) TryPlan(ctx context.Context, host Host) error {
	a.setSynopsis(fmt.Sprintf("fetch-and-move %s", a.Dest))
	if _, err := host.Stat(a.Dest); err == nil {
		a.markPlanned([]string{fmt.Sprintf("%s already present, skip fetch", a.Dest)})
		return nil
	}
	a.markPlanned([]string{fmt.Sprintf("fetch %s -> %s", a.URL, a.Dest)})
	return nil
}

func (a *FetchAndMoveAction) TryExecute(ctx context.Context, host Host) error {
	if _, err := host.Stat(a.Dest); err == nil {
		a.markCompleted([]string{fmt.Sprintf("%s already present", a.Dest)})
		return nil
	}
	if err := host.Download(ctx, a.URL, a.Dest); err != nil {
		return NewTaggedError(TagActionFailed, a.Synopsis(), err)
	}
	a.markCompleted([]string{fmt.Sprintf("fetched %s", a.Dest)})
	return nil
}

func (a *FetchAndMoveAction) TryRevert(ctx context.Context, host Host) error {
	if err := host.Remove(a.Dest); err != nil {
		if _, statErr := host.Stat(a.Dest); statErr != nil {
			a.markReverted()
			return nil
		}
		return NewTaggedError(TagRevertFailed, a.Synopsis(), err)
	}
	a.markReverted()
	return nil
}

func (a *FetchAndMoveAction) MarshalParams() map[string]any {
	return map[string]any{"url": a.URL, "dest": a.Dest}
}

func (a *FetchAndMoveAction) UnmarshalParams(params map[string]any) error {
	a.URL, _ = params["url"].(string)
	a.Dest, _ = params["dest"].(string)
	return nil
}
