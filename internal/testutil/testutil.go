// Package testutil provides shared helpers for action/plan/executor tests:
// a scratch root and a FakeHost pre-populated the way a bare target looks
// before any install has touched it.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nix-installer/nix-installer/internal/action"
)

// TempRoot creates a temporary installation root and returns it alongside a
// cleanup function.
func TempRoot(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "nix-installer-test-*")
	if err != nil {
		t.Fatalf("failed to create temp root: %v", err)
	}
	return dir, func() { os.RemoveAll(dir) }
}

// NewFakeHost returns a FakeHost with no prior state, standing in for a
// bare target that has never seen an install.
func NewFakeHost() *action.FakeHost {
	return action.NewFakeHost()
}

// NewFakeHostWithGroup returns a FakeHost that already has the named group,
// standing in for a host that survived a prior partial install.
func NewFakeHostWithGroup(t *testing.T, name string, gid int) *action.FakeHost {
	t.Helper()
	host := action.NewFakeHost()
	if err := host.CreateGroup(action.GroupSpec{Name: name, GID: gid}); err != nil {
		t.Fatalf("failed to seed group %s: %v", name, err)
	}
	return host
}

// FileExists reports whether path exists on the real filesystem.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AssertFileExists fails the test if path does not exist.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if !FileExists(path) {
		t.Errorf("file does not exist: %s", path)
	}
}

// AssertFileNotExists fails the test if path exists.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if FileExists(path) {
		t.Errorf("file should not exist: %s", path)
	}
}

// JoinRoot is a small convenience for building expected paths under a test
// root without repeating filepath.Join everywhere.
func JoinRoot(root string, elem ...string) string {
	return filepath.Join(append([]string{root}, elem...)...)
}
