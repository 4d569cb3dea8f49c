package plan

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/action"
)

func testTarget(t *testing.T) TargetArchive {
	t.Helper()
	v, err := semver.NewVersion("2.24.1")
	require.NoError(t, err)
	return TargetArchive{Version: v, OS: "linux", Arch: "x86_64", URL: "https://example.test/target.tar.xz", DigestHex: "abc123"}
}

func TestPlanDescribeIndentsByDepth(t *testing.T) {
	host := action.NewFakeHost()
	p := New(Settings{Root: "/nix"}, testTarget(t))
	composite := action.NewComposite("phase-test", "test phase", false, &action.CreateDirectoryAction{Path: "/nix"})
	require.NoError(t, composite.TryPlan(context.Background(), host))
	p.Append(composite)

	desc := p.Describe()
	assert.Contains(t, desc, "test phase")
	assert.Contains(t, desc, "/nix")
}

func TestPlanDiffReportsAddedAndRemoved(t *testing.T) {
	host := action.NewFakeHost()
	a1 := &action.CreateDirectoryAction{Path: "/nix"}
	require.NoError(t, a1.TryPlan(context.Background(), host))
	a2 := &action.CreateDirectoryAction{Path: "/nix/store"}
	require.NoError(t, a2.TryPlan(context.Background(), host))

	p1 := New(Settings{Root: "/nix"}, testTarget(t))
	p1.Append(a1)
	p2 := New(Settings{Root: "/nix"}, testTarget(t))
	p2.Append(a1)
	p2.Append(a2)

	changes := p2.Diff(p1)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0].Summary, "added")
}

func TestPlanJSONRoundTrip(t *testing.T) {
	host := action.NewFakeHost()
	a1 := &action.CreateDirectoryAction{Path: "/nix"}
	require.NoError(t, a1.TryPlan(context.Background(), host))

	p := New(Settings{Root: "/nix", Planner: "linux"}, testTarget(t))
	p.Append(a1)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":1`)

	var restored Plan
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Len(t, restored.Actions, 1)
	assert.Equal(t, "create-directory", restored.Actions[0].Kind())
	assert.Equal(t, "linux", restored.Settings.Planner)
}

func TestPlanRejectsSchemaVersionAboveMaximum(t *testing.T) {
	data := []byte(`{"version": 999, "settings": {}, "target": {}, "actions": []}`)
	var restored Plan
	err := json.Unmarshal(data, &restored)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds known maximum")
}
