package linux

import (
	"context"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/plan"
)

func testTarget(t *testing.T) plan.TargetArchive {
	t.Helper()
	v, err := semver.NewVersion("2.21.0")
	require.NoError(t, err)
	return plan.TargetArchive{Version: v, OS: "linux", Arch: "amd64", DigestHex: "deadbeef"}
}

func TestBuildSystemdProducesEightPhases(t *testing.T) {
	p := &Planner{DetectSupervisor: func() string { return SupervisorSystemd }}
	settings := plan.Settings{Root: "/nix", Init: SupervisorSystemd, StartDaemon: true}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)
	assert.Len(t, result.Actions, 8)
	assert.Equal(t, KindOf(result.Actions[6]), "phase-configure-init-supervisor")
}

func TestBuildProvisionsThirtyTwoUsers(t *testing.T) {
	p := &Planner{DetectSupervisor: func() string { return SupervisorSystemd }}
	settings := plan.Settings{Root: "/nix", Init: SupervisorSystemd}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)

	identities := result.Actions[1]
	require.NoError(t, err)
	// group + users-composite + membership-composite
	require.Len(t, identities.Children(), 3)
	assert.Len(t, identities.Children()[1].Children(), 32)
}

func TestBuildInitNoneSkipsUnitFiles(t *testing.T) {
	p := &Planner{DetectSupervisor: func() string { return SupervisorSystemd }}
	settings := plan.Settings{Root: "/nix", Init: SupervisorNone}

	result, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)

	initPhase := result.Actions[6]
	require.Len(t, initPhase.Children(), 1)
}

func TestBuildDetectsSupervisorWhenInitUnset(t *testing.T) {
	called := false
	p := &Planner{DetectSupervisor: func() string { called = true; return SupervisorSysvinit }}
	settings := plan.Settings{Root: "/nix"}

	_, err := p.Build(context.Background(), settings, testTarget(t))
	require.NoError(t, err)
	assert.True(t, called)
}

// KindOf is a tiny local helper since action.Action doesn't expose Kind()
// through an exported package-level function; it just calls the method.
func KindOf(a interface{ Kind() string }) string {
	return a.Kind()
}
