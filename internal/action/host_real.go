package action

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strconv"
	"time"
)

// RealHost drives the actual operating system: real files, real useradd/
// dscl invocations, real systemctl/launchctl calls.
type RealHost struct {
	fingerprint string
	httpClient  *http.Client
}

// NewRealHost builds a RealHost. fingerprint is embedded in backup-file
// suffixes (spec's back-up discipline) and should be stable across a single
// install/uninstall run.
func NewRealHost(fingerprint string) *RealHost {
	return &RealHost{fingerprint: fingerprint, httpClient: &http.Client{Timeout: 10 * time.Minute}}
}

func (h *RealHost) Fingerprint() string { return h.fingerprint }

func (h *RealHost) Stat(path string) (fs.FileInfo, error)  { return os.Stat(path) }
func (h *RealHost) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }
func (h *RealHost) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (h *RealHost) Remove(path string) error                     { return os.Remove(path) }
func (h *RealHost) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (h *RealHost) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (h *RealHost) ReadFile(path string) ([]byte, error)         { return os.ReadFile(path) }

func (h *RealHost) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (h *RealHost) Symlink(oldname, newname string) error { return os.Symlink(oldname, newname) }
func (h *RealHost) Readlink(path string) (string, error)  { return os.Readlink(path) }
func (h *RealHost) Chmod(path string, mode fs.FileMode) error { return os.Chmod(path, mode) }
func (h *RealHost) Chown(path string, uid, gid int) error     { return os.Chown(path, uid, gid) }

func (h *RealHost) LookupUser(name string) (*UserInfo, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, _ := strconv.Atoi(u.Uid)
	group, err := user.LookupGroupId(u.Gid)
	groupName := u.Gid
	if err == nil {
		groupName = group.Name
	}
	return &UserInfo{Name: u.Username, UID: uid, PrimaryGroup: groupName, HomeDir: u.HomeDir}, nil
}

func (h *RealHost) LookupGroup(name string) (*GroupInfo, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return nil, err
	}
	gid, _ := strconv.Atoi(g.Gid)
	return &GroupInfo{Name: g.Name, GID: gid}, nil
}

func (h *RealHost) CreateGroup(spec GroupSpec) error {
	switch runtime.GOOS {
	case "darwin":
		_, err := h.RunCommand(context.Background(), "dscl", ".", "-create", "/Groups/"+spec.Name, "PrimaryGroupID", strconv.Itoa(spec.GID))
		return err
	default:
		args := []string{"-g", strconv.Itoa(spec.GID)}
		if spec.System {
			args = append(args, "-r")
		}
		args = append(args, spec.Name)
		_, err := h.RunCommand(context.Background(), "groupadd", args...)
		return err
	}
}

func (h *RealHost) RemoveGroup(name string) error {
	switch runtime.GOOS {
	case "darwin":
		_, err := h.RunCommand(context.Background(), "dscl", ".", "-delete", "/Groups/"+name)
		return err
	default:
		_, err := h.RunCommand(context.Background(), "groupdel", name)
		return err
	}
}

func (h *RealHost) CreateUser(spec UserSpec) error {
	switch runtime.GOOS {
	case "darwin":
		path := "/Users/" + spec.Name
		cmds := [][]string{
			{"dscl", ".", "-create", path},
			{"dscl", ".", "-create", path, "UniqueID", strconv.Itoa(spec.UID)},
			{"dscl", ".", "-create", path, "PrimaryGroupID", spec.PrimaryGroup},
			{"dscl", ".", "-create", path, "UserShell", spec.Shell},
			{"dscl", ".", "-create", path, "NFSHomeDirectory", spec.HomeDir},
		}
		for _, c := range cmds {
			if _, err := h.RunCommand(context.Background(), c[0], c[1:]...); err != nil {
				return err
			}
		}
		return nil
	default:
		args := []string{
			"-u", strconv.Itoa(spec.UID),
			"-g", spec.PrimaryGroup,
			"-d", spec.HomeDir,
			"-s", spec.Shell,
			"-M", // no home directory creation; the target tree owns its own layout
		}
		if spec.System {
			args = append(args, "-r")
		}
		args = append(args, spec.Name)
		_, err := h.RunCommand(context.Background(), "useradd", args...)
		return err
	}
}

func (h *RealHost) RemoveUser(name string) error {
	switch runtime.GOOS {
	case "darwin":
		_, err := h.RunCommand(context.Background(), "dscl", ".", "-delete", "/Users/"+name)
		return err
	default:
		_, err := h.RunCommand(context.Background(), "userdel", name)
		return err
	}
}

func (h *RealHost) AddUserToGroup(user, group string) error {
	switch runtime.GOOS {
	case "darwin":
		_, err := h.RunCommand(context.Background(), "dscl", ".", "-append", "/Groups/"+group, "GroupMembership", user)
		return err
	default:
		_, err := h.RunCommand(context.Background(), "usermod", "-aG", group, user)
		return err
	}
}

func (h *RealHost) WriteUnitFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func (h *RealHost) ServiceEnable(ctx context.Context, name string) error {
	if runtime.GOOS == "darwin" {
		_, err := h.RunCommand(ctx, "launchctl", "load", "-w", name)
		return err
	}
	_, err := h.RunCommand(ctx, "systemctl", "enable", name)
	return err
}

func (h *RealHost) ServiceDisable(ctx context.Context, name string) error {
	if runtime.GOOS == "darwin" {
		_, err := h.RunCommand(ctx, "launchctl", "unload", "-w", name)
		return err
	}
	_, err := h.RunCommand(ctx, "systemctl", "disable", name)
	return err
}

func (h *RealHost) ServiceStart(ctx context.Context, name string) error {
	if runtime.GOOS == "darwin" {
		_, err := h.RunCommand(ctx, "launchctl", "start", name)
		return err
	}
	_, err := h.RunCommand(ctx, "systemctl", "start", name)
	return err
}

func (h *RealHost) ServiceStop(ctx context.Context, name string) error {
	if runtime.GOOS == "darwin" {
		_, err := h.RunCommand(ctx, "launchctl", "stop", name)
		return err
	}
	_, err := h.RunCommand(ctx, "systemctl", "stop", name)
	return err
}

func (h *RealHost) ServiceIsEnabled(ctx context.Context, name string) (bool, error) {
	if runtime.GOOS == "darwin" {
		out, _ := h.RunCommand(ctx, "launchctl", "list", name)
		return len(out) > 0, nil
	}
	out, err := h.RunCommand(ctx, "systemctl", "is-enabled", name)
	if err != nil {
		return false, nil
	}
	return string(out) != "", nil
}

func (h *RealHost) ServiceIsActive(ctx context.Context, name string) (bool, error) {
	if runtime.GOOS == "darwin" {
		out, _ := h.RunCommand(ctx, "launchctl", "list", name)
		return len(out) > 0, nil
	}
	out, err := h.RunCommand(ctx, "systemctl", "is-active", name)
	if err != nil {
		return false, nil
	}
	return string(out) != "", nil
}

func (h *RealHost) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	tmp := destPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}

func (h *RealHost) RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w: %s", name, args, err, string(out))
	}
	return out, nil
}
