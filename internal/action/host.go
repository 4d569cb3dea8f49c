package action

import (
	"context"
	"io/fs"
)

// UserSpec is the exact, fully-resolved identity an action plans to create.
// Actions record the numbers they used (not "next free at execute time") so
// revert removes exactly that identity.
type UserSpec struct {
	Name         string
	UID          int
	PrimaryGroup string
	HomeDir      string
	Shell        string
	System       bool
}

// GroupSpec is the exact identity a CreateGroupAction plans to create.
type GroupSpec struct {
	Name   string
	GID    int
	System bool
}

// UserInfo is what the host reports about an existing user.
type UserInfo struct {
	Name         string
	UID          int
	PrimaryGroup string
	HomeDir      string
	Shell        string
}

// GroupInfo is what the host reports about an existing group.
type GroupInfo struct {
	Name string
	GID  int
}

// Host abstracts every filesystem, identity, service-supervisor, and
// network operation an Action performs, so the same action code runs
// against the real operating system or against a FakeHost in tests and in
// cure's ghost-plan synthesis.
type Host interface {
	// Filesystem
	Stat(path string) (fs.FileInfo, error)
	Lstat(path string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm fs.FileMode) error
	Symlink(oldname, newname string) error
	Readlink(path string) (string, error)
	Chmod(path string, mode fs.FileMode) error
	Chown(path string, uid, gid int) error

	// Identity
	LookupUser(name string) (*UserInfo, error)
	LookupGroup(name string) (*GroupInfo, error)
	CreateUser(spec UserSpec) error
	RemoveUser(name string) error
	CreateGroup(spec GroupSpec) error
	RemoveGroup(name string) error
	AddUserToGroup(user, group string) error

	// Init supervisor
	WriteUnitFile(path, content string) error
	ServiceEnable(ctx context.Context, name string) error
	ServiceDisable(ctx context.Context, name string) error
	ServiceStart(ctx context.Context, name string) error
	ServiceStop(ctx context.Context, name string) error
	ServiceIsEnabled(ctx context.Context, name string) (bool, error)
	ServiceIsActive(ctx context.Context, name string) (bool, error)

	// Network / external tools
	Download(ctx context.Context, url, destPath string) error
	RunCommand(ctx context.Context, name string, args ...string) ([]byte, error)

	// Fingerprint identifies this installer run for backup-file suffixes
	// (spec's "back-up discipline").
	Fingerprint() string
}
