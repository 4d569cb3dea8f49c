package cure

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

func freshPlan(actions ...action.Action) *plan.Plan {
	p := plan.New(plan.Settings{Root: "/nix"}, plan.TargetArchive{})
	for _, a := range actions {
		p.Append(a)
	}
	return p
}

func TestReconcileMarksExistingGroupAsMatches(t *testing.T) {
	host := action.NewFakeHost()
	require.NoError(t, host.CreateGroup(action.GroupSpec{Name: "nixbld", GID: 30000}))

	groupAction := &action.CreateGroupAction{Name: "nixbld", GID: 30000}
	require.NoError(t, groupAction.TryPlan(context.Background(), host))

	store := receipt.NewStore(filepath.Join(t.TempDir(), "receipt.json"))
	verdicts, err := Reconcile(context.Background(), host, store, freshPlan(groupAction))
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.Equal(t, Matches, verdicts[0].Classification)
	assert.Equal(t, action.Completed, groupAction.State())
}

func TestReconcileMarksMissingGroupAsMissing(t *testing.T) {
	host := action.NewFakeHost()
	groupAction := &action.CreateGroupAction{Name: "nixbld", GID: 30000}
	require.NoError(t, groupAction.TryPlan(context.Background(), host))

	store := receipt.NewStore(filepath.Join(t.TempDir(), "receipt.json"))
	verdicts, err := Reconcile(context.Background(), host, store, freshPlan(groupAction))
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.Equal(t, Missing, verdicts[0].Classification)
	assert.Equal(t, action.Planned, groupAction.State())
}

func TestReconcileFlagsConflictingGroup(t *testing.T) {
	host := action.NewFakeHost()
	require.NoError(t, host.CreateGroup(action.GroupSpec{Name: "nixbld", GID: 999}))

	groupAction := &action.CreateGroupAction{Name: "nixbld", GID: 30000}

	store := receipt.NewStore(filepath.Join(t.TempDir(), "receipt.json"))
	verdicts, err := Reconcile(context.Background(), host, store, freshPlan(groupAction))
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.Equal(t, Conflicting, verdicts[0].Classification)
	assert.NotEmpty(t, verdicts[0].Reason)
}

func TestReconcileAdoptsUserWithDifferentHomeDir(t *testing.T) {
	host := action.NewFakeHost()
	require.NoError(t, host.CreateUser(action.UserSpec{Name: "nixbld1", UID: 30001, PrimaryGroup: "nixbld", HomeDir: "/var/empty"}))

	userAction := &action.CreateUserAction{Name: "nixbld1", UID: 30001, PrimaryGroup: "nixbld", HomeDir: "/home/nixbld1"}

	store := receipt.NewStore(filepath.Join(t.TempDir(), "receipt.json"))
	verdicts, err := Reconcile(context.Background(), host, store, freshPlan(userAction))
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.Equal(t, Adoptable, verdicts[0].Classification)
	assert.Equal(t, "/var/empty", userAction.HomeDir)
	assert.Equal(t, action.Completed, userAction.State())
}

func TestReconcileFlagsDirectoryConflict(t *testing.T) {
	host := action.NewFakeHost()
	require.NoError(t, host.WriteFile("/nix", []byte("not a directory"), 0644))

	dirAction := &action.CreateDirectoryAction{Path: "/nix"}

	store := receipt.NewStore(filepath.Join(t.TempDir(), "receipt.json"))
	verdicts, err := Reconcile(context.Background(), host, store, freshPlan(dirAction))
	require.NoError(t, err)

	require.Len(t, verdicts, 1)
	assert.Equal(t, Conflicting, verdicts[0].Classification)
}
