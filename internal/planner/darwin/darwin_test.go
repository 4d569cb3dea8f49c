package darwin

import (
	"context"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/plan"
)

func testTarget(t *testing.T) plan.TargetArchive {
	t.Helper()
	v, err := semver.NewVersion("2.21.0")
	require.NoError(t, err)
	return plan.TargetArchive{Version: v, OS: "darwin", Arch: "arm64", DigestHex: "deadbeef"}
}

func TestBuildProducesEightPhases(t *testing.T) {
	p := New()
	settings := plan.Settings{Root: "/nix", StartDaemon: true}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)
	assert.Len(t, result.Actions, 8)
}

func TestBuildDedicatedVolumePrependsMountAction(t *testing.T) {
	p := &Planner{DedicatedVolume: true, VolumeDevice: "/dev/disk3s6"}
	settings := plan.Settings{Root: "/nix"}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)

	treePhase := result.Actions[2]
	require.NotEmpty(t, treePhase.Children())
	merge, ok := treePhase.Children()[0].(*action.CreateOrMergeAction)
	require.True(t, ok)
	assert.Equal(t, "/etc/synthetic.conf", merge.Path)
}

func TestBuildWithoutDedicatedVolumeOmitsMountAction(t *testing.T) {
	p := New()
	settings := plan.Settings{Root: "/nix"}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)

	treePhase := result.Actions[2]
	for _, child := range treePhase.Children() {
		if merge, ok := child.(*action.CreateOrMergeAction); ok {
			assert.NotContains(t, merge.Path, "synthetic.conf")
		}
	}
}
