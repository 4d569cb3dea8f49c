package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeSequentialPlanExecuteRevert(t *testing.T) {
	host := NewFakeHost()
	c := NewComposite("test-sequential", "sequential test", false,
		&CreateDirectoryAction{Path: "/nix"},
		&CreateDirectoryAction{Path: "/nix/store"},
	)

	ctx := context.Background()
	require.NoError(t, c.TryPlan(ctx, host))
	assert.Equal(t, Planned, c.State())
	assert.Len(t, c.PlannedDescriptions(), 2)

	require.NoError(t, c.TryExecute(ctx, host))
	assert.Equal(t, Completed, c.State())

	info, err := host.Stat("/nix/store")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, c.TryRevert(ctx, host))
	assert.Equal(t, Uninitialized, c.State())
	_, err = host.Stat("/nix/store")
	assert.Error(t, err)
}

func TestCompositeParallelExecutesAllChildren(t *testing.T) {
	host := NewFakeHost()
	c := NewComposite("test-parallel", "parallel test", true,
		&CreateDirectoryAction{Path: "/a"},
		&CreateDirectoryAction{Path: "/b"},
		&CreateDirectoryAction{Path: "/c"},
	)

	ctx := context.Background()
	require.NoError(t, c.TryPlan(ctx, host))
	require.NoError(t, c.TryExecute(ctx, host))

	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := host.Stat(p)
		assert.NoError(t, err, "expected %s to exist", p)
	}
}

func TestCompositeAbortsOnFirstChildPlanConflict(t *testing.T) {
	host := NewFakeHost()
	require.NoError(t, host.WriteFile("/blocked", []byte("x"), 0644))

	c := NewComposite("test-conflict", "conflict test", false,
		&CreateDirectoryAction{Path: "/ok"},
		&CreateDirectoryAction{Path: "/blocked"},
	)

	err := c.TryPlan(context.Background(), host)
	require.Error(t, err)
	var tagged *TaggedError
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, TagPlanConflict, tagged.Tag)
}

func TestCompositeRevertCollectsFailuresAndContinues(t *testing.T) {
	host := NewFakeHost()
	c := NewComposite("test-revert-collect", "revert collect test", false,
		&CreateDirectoryAction{Path: "/x"},
		&CreateDirectoryAction{Path: "/x/y"},
	)

	ctx := context.Background()
	require.NoError(t, c.TryPlan(ctx, host))
	require.NoError(t, c.TryExecute(ctx, host))

	// Create a file inside /x so its revert (rmdir-if-empty) fails, while
	// /x/y's own revert still succeeds independently.
	require.NoError(t, host.WriteFile("/x/stray", []byte("keep"), 0644))

	err := c.TryRevert(ctx, host)
	require.Error(t, err)
	var rollback *RollbackError
	require.ErrorAs(t, err, &rollback)
	assert.NotEmpty(t, rollback.RevertFailures)
}

func TestCompositeReversibilityIsWorstOfChildren(t *testing.T) {
	allLossless := NewComposite("k", "s", false, &CreateDirectoryAction{Path: "/a"})
	assert.Equal(t, Lossless, allLossless.Reversibility())

	withBestEffort := NewComposite("k", "s", false,
		&CreateDirectoryAction{Path: "/a"},
		&CreateFileAction{Path: "/a/f"},
	)
	assert.Equal(t, BestEffort, withBestEffort.Reversibility())
}

func TestCompositeMarshalUnmarshalRoundTrip(t *testing.T) {
	host := NewFakeHost()
	c := NewComposite("test-roundtrip", "roundtrip test", false,
		&CreateDirectoryAction{Path: "/r1"},
		&CreateFileAction{Path: "/r1/f", Content: []byte("hi")},
	)
	require.NoError(t, c.TryPlan(context.Background(), host))

	params := c.MarshalParams()

	restored := &Composite{kind: "test-roundtrip"}
	require.NoError(t, restored.UnmarshalParams(params))
	require.Len(t, restored.Children(), 2)
	assert.Equal(t, "create-directory", restored.Children()[0].Kind())
	assert.Equal(t, "create-file", restored.Children()[1].Kind())
}
