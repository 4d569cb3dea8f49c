package action

import (
	"fmt"
	"path/filepath"

	"github.com/nix-installer/nix-installer/internal/archive"
)

// Phase kind tags. Planners build one Composite per phase via the
// constructors below; kind tags are registered so a serialized plan can
// still be rehydrated generically, even though planners normally hold the
// live tree in memory rather than round-tripping it through New().
const (
	KindEnsureWorkingDirectory  = "phase-ensure-working-directory"
	KindProvisionIdentities     = "phase-provision-identities"
	KindCreateTargetTree        = "phase-create-target-tree"
	KindUnpackEmbeddedArchive   = "phase-unpack-embedded-archive"
	KindPlaceTargetConfiguration = "phase-place-target-configuration"
	KindConfigureShellProfiles  = "phase-configure-shell-profiles"
	KindConfigureInitSupervisor = "phase-configure-init-supervisor"
	KindStartDaemonPhase        = "phase-start-daemon"
)

func init() {
	for _, kind := range []string{
		KindEnsureWorkingDirectory, KindProvisionIdentities, KindCreateTargetTree,
		KindUnpackEmbeddedArchive, KindPlaceTargetConfiguration, KindConfigureShellProfiles,
		KindConfigureInitSupervisor, KindStartDaemonPhase,
		"phase-provision-identities-users", "phase-provision-identities-membership",
	} {
		k := kind
		Register(k, func() Action { return &Composite{kind: k} })
	}
}

// NewEnsureWorkingDirectoryPhase builds phase 1: create a scratch directory
// under which fetches and unpacks stage before being moved into the target
// tree.
func NewEnsureWorkingDirectoryPhase(scratchDir string) *Composite {
	c := NewComposite(KindEnsureWorkingDirectory,
		fmt.Sprintf("ensure working directory %s", scratchDir), false,
		&CreateDirectoryAction{Path: scratchDir, Mode: 0755},
	)
	return c
}

// NewProvisionIdentitiesPhase builds phase 2: one group, then its member
// users, then secondary-group membership. Users are parallel-safe (each is
// independent) but must follow group creation, so the group is planned as
// a leading sequential step and the users as a parallel sub-step.
func NewProvisionIdentitiesPhase(group GroupSpec, users []UserSpec, extraGroups map[string][]string) *Composite {
	var userActions []Action
	for _, u := range users {
		userActions = append(userActions, &CreateUserAction{
			Name: u.Name, UID: u.UID, PrimaryGroup: u.PrimaryGroup,
			HomeDir: u.HomeDir, Shell: u.Shell, System: u.System,
		})
	}
	usersStep := NewComposite("phase-provision-identities-users", "create users", true, userActions...)

	var membershipActions []Action
	for user, groups := range extraGroups {
		for _, g := range groups {
			membershipActions = append(membershipActions, &AddUserToGroupAction{User: user, Group: g})
		}
	}
	membershipStep := NewComposite("phase-provision-identities-membership", "add secondary group memberships", true, membershipActions...)

	return NewComposite(KindProvisionIdentities,
		fmt.Sprintf("provision identities (group %s, %d user(s))", group.Name, len(users)), false,
		&CreateGroupAction{Name: group.Name, GID: group.GID, System: group.System},
		usersStep,
		membershipStep,
	)
}

// NewCreateTargetTreePhase builds phase 3: the root directory and every
// subdirectory beneath it (store, var, state, profile dirs, and on macOS a
// dedicated-volume mount point the darwin planner supplies as just another
// subdirectory entry).
func NewCreateTargetTreePhase(root string, subdirs []string) *Composite {
	dirActions := []Action{&CreateDirectoryAction{Path: root, Mode: 0755}}
	for _, sub := range subdirs {
		dirActions = append(dirActions, &CreateDirectoryAction{Path: filepath.Join(root, sub), Mode: 0755})
	}
	return NewComposite(KindCreateTargetTree,
		fmt.Sprintf("create target tree at %s (%d subdirectories)", root, len(subdirs)), false,
		dirActions...,
	)
}

// ArchiveSource describes the embedded target archive unpack parameters.
type ArchiveSource struct {
	Path                string
	URL                 string // non-empty when Path must be fetched first; empty when truly pre-placed (embedded build, test fixture)
	Format              archive.Format
	DigestHex           string
	SignaturePath       string // empty when the target publishes no detached signature
	ArmoredKey          string
	ExpectedFingerprint string
	DestPath            string
	StripDirs           int
}

// NewUnpackEmbeddedArchivePhase builds phase 4: fetch the archive to Path if
// a URL is given and it isn't already there, verify digest (always), verify
// signature (only when the source supplies one), then unpack -- in that
// order, since unpack must not run against unverified bytes.
func NewUnpackEmbeddedArchivePhase(src ArchiveSource) *Composite {
	var children []Action
	if src.URL != "" {
		children = append(children, &FetchAndMoveAction{URL: src.URL, Dest: src.Path})
	}
	children = append(children,
		&VerifyDigestAction{Path: src.Path, ExpectedHex: src.DigestHex},
	)
	if src.SignaturePath != "" {
		children = append(children, &VerifySignatureAction{
			Path: src.Path, SignaturePath: src.SignaturePath,
			ArmoredKey: src.ArmoredKey, ExpectedFingerprint: src.ExpectedFingerprint,
		})
	}
	children = append(children, &UnpackArchiveAction{
		ArchivePath: src.Path, Format: src.Format, DestPath: src.DestPath, StripDirs: src.StripDirs,
	})
	return NewComposite(KindUnpackEmbeddedArchive,
		fmt.Sprintf("unpack embedded archive into %s", src.DestPath), false, children...)
}

// ConfigFile is one target configuration file placed by phase 5, merge-aware
// so operator-authored content in an existing file survives.
type ConfigFile struct {
	Path string
	Body string
}

// NewPlaceTargetConfigurationPhase builds phase 5: nix.conf, channel list,
// and any other target configuration files, each merge-aware.
func NewPlaceTargetConfigurationPhase(files []ConfigFile) *Composite {
	var children []Action
	for _, f := range files {
		children = append(children, &CreateOrMergeAction{Path: f.Path, Body: f.Body})
	}
	return NewComposite(KindPlaceTargetConfiguration,
		fmt.Sprintf("place target configuration (%d file(s))", len(files)), true, children...)
}

// ShellSnippet is one shell-profile drop-in file phase 6 places, e.g. under
// /etc/bashrc.d, /etc/zshrc.d, or fish.d.
type ShellSnippet struct {
	Path string
	Body string
}

// NewConfigureShellProfilesPhase builds phase 6: one merge-aware snippet per
// supported shell, independent of one another.
func NewConfigureShellProfilesPhase(snippets []ShellSnippet) *Composite {
	var children []Action
	for _, s := range snippets {
		children = append(children, &CreateOrMergeAction{Path: s.Path, Body: s.Body})
	}
	return NewComposite(KindConfigureShellProfiles,
		fmt.Sprintf("configure shell profiles (%d snippet(s))", len(snippets)), true, children...)
}

// SocketUnit is the optional socket-activation unit phase 7 configures
// alongside the service unit.
type SocketUnit struct {
	UnitPath    string
	UnitContent string
}

// NewConfigureInitSupervisorPhase builds phase 7: the service unit, and
// optionally its socket-activation sibling.
func NewConfigureInitSupervisorPhase(supervisor, serviceUnitPath, serviceUnitContent string, socket *SocketUnit) *Composite {
	children := []Action{
		&ConfigureInitServiceAction{Supervisor: supervisor, UnitPath: serviceUnitPath, UnitContent: serviceUnitContent},
	}
	if socket != nil {
		children = append(children, &ConfigureInitServiceAction{
			Supervisor: supervisor, UnitPath: socket.UnitPath, UnitContent: socket.UnitContent,
		})
	}
	return NewComposite(KindConfigureInitSupervisor, "configure init supervisor", false, children...)
}

// NewStartDaemonPhase builds phase 8: enable the service at boot when
// enable is set and start it now when start is set. The planners pass
// false for both under the "none" supervisor.
func NewStartDaemonPhase(serviceName string, enable, start bool) *Composite {
	return NewComposite(KindStartDaemonPhase,
		fmt.Sprintf("start daemon %s", serviceName), false,
		&StartDaemonAction{ServiceName: serviceName, Enable: enable, Start: start},
	)
}
