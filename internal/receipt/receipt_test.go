package receipt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/plan"
)

func testPlan(t *testing.T) *plan.Plan {
	t.Helper()
	host := action.NewFakeHost()
	a := &action.CreateDirectoryAction{Path: "/nix"}
	require.NoError(t, a.TryPlan(context.Background(), host))
	p := plan.New(plan.Settings{Root: "/nix"}, plan.TargetArchive{})
	v, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	p.Target.Version = v
	p.Append(a)
	return p
}

func TestStoreWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "receipt.json"))

	p := testPlan(t)
	require.NoError(t, s.Write(p))
	assert.True(t, s.Exists())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Actions, 1)
	assert.Equal(t, "create-directory", loaded.Actions[0].Kind())
}

func TestStoreWriteLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "receipt.json"))
	require.NoError(t, s.Write(testPlan(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "receipt.json", entries[0].Name())
}

func TestStoreWriteFailsCleanlyWhenRenameFails(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "receipt.json"))
	s.rename = func(oldpath, newpath string) error {
		return os.ErrPermission
	}

	err := s.Write(testPlan(t))
	require.Error(t, err)
	assert.False(t, s.Exists())

	// The tempfile itself must not survive a failed rename: no partial
	// receipt observable under the final name, and no litter left behind.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "receipt.json"))
	require.NoError(t, s.Delete())

	require.NoError(t, s.Write(testPlan(t)))
	require.NoError(t, s.Delete())
	assert.False(t, s.Exists())
	require.NoError(t, s.Delete())
}

func TestStoreLoadMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "receipt.json"))
	_, err := s.Load()
	assert.Error(t, err)
}
