package action

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeHost is an in-memory Host used by action/plan/executor/cure tests and
// by the functional test suite, so no test run ever touches real users,
// groups, or systemd units.
type FakeHost struct {
	mu sync.Mutex

	files    map[string][]byte
	dirs     map[string]bool
	symlinks map[string]string
	modes    map[string]fs.FileMode

	users  map[string]UserInfo
	groups map[string]GroupInfo
	groupMembers map[string]map[string]bool

	enabledServices map[string]bool
	activeServices  map[string]bool
	unitFiles       map[string]string

	downloads map[string][]byte // url -> content, seeded by tests
	commands  []FakeCommand      // recorded RunCommand invocations

	fingerprint string

	serviceStartErr error // injected by tests to force a phase-8 failure
}

// FakeCommand records one RunCommand invocation for assertions.
type FakeCommand struct {
	Name string
	Args []string
}

func NewFakeHost() *FakeHost {
	return &FakeHost{
		files:           make(map[string][]byte),
		dirs:            map[string]bool{"/": true},
		symlinks:        make(map[string]string),
		modes:           make(map[string]fs.FileMode),
		users:           make(map[string]UserInfo),
		groups:          make(map[string]GroupInfo),
		groupMembers:    make(map[string]map[string]bool),
		enabledServices: make(map[string]bool),
		activeServices:  make(map[string]bool),
		unitFiles:       make(map[string]string),
		downloads:       make(map[string][]byte),
		fingerprint:     "test-fingerprint",
	}
}

// SetServiceStartErr makes every subsequent ServiceStart call fail with err,
// simulating a daemon that refuses to come up so rollback paths can be
// exercised without a real init supervisor.
func (h *FakeHost) SetServiceStartErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.serviceStartErr = err
}

// SeedDownload registers content to be returned by Download for url,
// simulating a fetched archive without touching the network.
func (h *FakeHost) SeedDownload(url string, content []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downloads[url] = content
}

func (h *FakeHost) Fingerprint() string { return h.fingerprint }

type fakeFileInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	isDir bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return fi.isDir }
func (fi fakeFileInfo) Sys() any           { return nil }

func (h *FakeHost) Stat(path string) (fs.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	if target, ok := h.symlinks[path]; ok {
		h.mu.Unlock()
		info, err := h.Stat(target)
		h.mu.Lock()
		return info, err
	}
	if h.dirs[path] {
		return fakeFileInfo{name: filepath.Base(path), isDir: true, mode: fs.ModeDir | 0755}, nil
	}
	if data, ok := h.files[path]; ok {
		return fakeFileInfo{name: filepath.Base(path), size: int64(len(data)), mode: h.modes[path]}, nil
	}
	return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
}

func (h *FakeHost) Lstat(path string) (fs.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	if _, ok := h.symlinks[path]; ok {
		return fakeFileInfo{name: filepath.Base(path), mode: fs.ModeSymlink}, nil
	}
	if h.dirs[path] {
		return fakeFileInfo{name: filepath.Base(path), isDir: true, mode: fs.ModeDir | 0755}, nil
	}
	if data, ok := h.files[path]; ok {
		return fakeFileInfo{name: filepath.Base(path), size: int64(len(data)), mode: h.modes[path]}, nil
	}
	return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
}

func (h *FakeHost) MkdirAll(path string, perm fs.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	for p := path; p != "/" && p != "."; p = filepath.Dir(p) {
		h.dirs[p] = true
	}
	h.dirs["/"] = true
	return nil
}

func (h *FakeHost) Remove(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	if _, ok := h.files[path]; ok {
		delete(h.files, path)
		return nil
	}
	if _, ok := h.symlinks[path]; ok {
		delete(h.symlinks, path)
		return nil
	}
	if h.dirs[path] {
		for p := range h.files {
			if strings.HasPrefix(p, path+"/") {
				return fmt.Errorf("directory not empty: %s", path)
			}
		}
		for p := range h.dirs {
			if p != path && strings.HasPrefix(p, path+"/") {
				return fmt.Errorf("directory not empty: %s", path)
			}
		}
		delete(h.dirs, path)
		return nil
	}
	return fmt.Errorf("%s: %w", path, fs.ErrNotExist)
}

func (h *FakeHost) RemoveAll(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	for p := range h.files {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(h.files, p)
		}
	}
	for p := range h.symlinks {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(h.symlinks, p)
		}
	}
	for p := range h.dirs {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(h.dirs, p)
		}
	}
	return nil
}

func (h *FakeHost) Rename(oldpath, newpath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	if data, ok := h.files[oldpath]; ok {
		h.files[newpath] = data
		h.modes[newpath] = h.modes[oldpath]
		delete(h.files, oldpath)
		delete(h.modes, oldpath)
		return nil
	}
	if h.dirs[oldpath] {
		h.dirs[newpath] = true
		delete(h.dirs, oldpath)
		return nil
	}
	return fmt.Errorf("%s: %w", oldpath, fs.ErrNotExist)
}

func (h *FakeHost) ReadFile(path string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	if target, ok := h.symlinks[path]; ok {
		h.mu.Unlock()
		data, err := h.ReadFile(target)
		h.mu.Lock()
		return data, err
	}
	data, ok := h.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return append([]byte{}, data...), nil
}

func (h *FakeHost) WriteFile(path string, data []byte, perm fs.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = filepath.Clean(path)
	h.files[path] = append([]byte{}, data...)
	h.modes[path] = perm
	return nil
}

func (h *FakeHost) Symlink(oldname, newname string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.symlinks[filepath.Clean(newname)] = oldname
	return nil
}

func (h *FakeHost) Readlink(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target, ok := h.symlinks[filepath.Clean(path)]
	if !ok {
		return "", fmt.Errorf("%s: not a symlink", path)
	}
	return target, nil
}

func (h *FakeHost) Chmod(path string, mode fs.FileMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modes[filepath.Clean(path)] = mode
	return nil
}

func (h *FakeHost) Chown(path string, uid, gid int) error { return nil }

func (h *FakeHost) LookupUser(name string) (*UserInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.users[name]
	if !ok {
		return nil, fmt.Errorf("user: unknown user %s", name)
	}
	return &u, nil
}

func (h *FakeHost) LookupGroup(name string) (*GroupInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[name]
	if !ok {
		return nil, fmt.Errorf("group: unknown group %s", name)
	}
	return &g, nil
}

func (h *FakeHost) CreateGroup(spec GroupSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.groups[spec.Name]; exists {
		return fmt.Errorf("group %s already exists", spec.Name)
	}
	h.groups[spec.Name] = GroupInfo{Name: spec.Name, GID: spec.GID}
	h.groupMembers[spec.Name] = make(map[string]bool)
	return nil
}

func (h *FakeHost) RemoveGroup(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groups[name]; !ok {
		return fmt.Errorf("group %s does not exist", name)
	}
	delete(h.groups, name)
	delete(h.groupMembers, name)
	return nil
}

func (h *FakeHost) CreateUser(spec UserSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.users[spec.Name]; exists {
		return fmt.Errorf("user %s already exists", spec.Name)
	}
	h.users[spec.Name] = UserInfo{
		Name: spec.Name, UID: spec.UID, PrimaryGroup: spec.PrimaryGroup,
		HomeDir: spec.HomeDir, Shell: spec.Shell,
	}
	return nil
}

func (h *FakeHost) RemoveUser(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[name]; !ok {
		return fmt.Errorf("user %s does not exist", name)
	}
	delete(h.users, name)
	return nil
}

func (h *FakeHost) AddUserToGroup(user, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groupMembers[group]
	if !ok {
		return fmt.Errorf("group %s does not exist", group)
	}
	members[user] = true
	return nil
}

// IsMember reports whether user was added to group, for test assertions.
func (h *FakeHost) IsMember(group, user string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupMembers[group] != nil && h.groupMembers[group][user]
}

func (h *FakeHost) WriteUnitFile(path, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unitFiles[path] = content
	return h.WriteFileLocked(path, []byte(content))
}

// WriteFileLocked is an internal helper; callers must already hold h.mu or
// not care about the lock (used only from WriteUnitFile above).
func (h *FakeHost) WriteFileLocked(path string, data []byte) error {
	h.files[filepath.Clean(path)] = data
	return nil
}

func (h *FakeHost) ServiceEnable(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabledServices[name] = true
	return nil
}

func (h *FakeHost) ServiceDisable(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.enabledServices, name)
	return nil
}

func (h *FakeHost) ServiceStart(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.serviceStartErr != nil {
		return h.serviceStartErr
	}
	h.activeServices[name] = true
	return nil
}

func (h *FakeHost) ServiceStop(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.activeServices, name)
	return nil
}

func (h *FakeHost) ServiceIsEnabled(ctx context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabledServices[name], nil
}

func (h *FakeHost) ServiceIsActive(ctx context.Context, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeServices[name], nil
}

func (h *FakeHost) Download(ctx context.Context, url, destPath string) error {
	h.mu.Lock()
	content, ok := h.downloads[url]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("download %s: no seeded content for this URL in test host", url)
	}
	return h.WriteFile(destPath, content, 0644)
}

func (h *FakeHost) RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	h.mu.Lock()
	h.commands = append(h.commands, FakeCommand{Name: name, Args: append([]string{}, args...)})
	h.mu.Unlock()
	return []byte(""), nil
}

// Commands returns every RunCommand invocation recorded so far, for test
// assertions.
func (h *FakeHost) Commands() []FakeCommand {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]FakeCommand{}, h.commands...)
}

// ListDirsUnder returns every known directory path under prefix, sorted.
func (h *FakeHost) ListDirsUnder(prefix string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for p := range h.dirs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
