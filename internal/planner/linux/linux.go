// Package linux builds installation plans for systemd, sysvinit, and
// --init none (container/WSL2) targets, detecting systemd by the presence
// of /run/systemd/system when no init supervisor is given.
package linux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/archive"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/planner"
)

// Supervisor tags this planner recognizes for Settings.Init.
const (
	SupervisorSystemd  = "systemd"
	SupervisorSysvinit = "sysvinit"
	SupervisorNone     = "none"
)

var targetSubdirs = []string{"store", "var", "var/nix", "profiles", "profiles/default"}

// Planner assembles a Plan for a Linux host from the nine §4.B phases
// (receipt write is executor-driven, so only the first eight are
// represented as top-level actions here).
type Planner struct {
	// DetectSupervisor reports the available init supervisor for the
	// current host. Overridable in tests; defaults to a systemd-present
	// check (a stat of /run/systemd/system) in production.
	DetectSupervisor func() string
}

// New returns a Planner with production detection wired in.
func New() *Planner {
	return &Planner{DetectSupervisor: detectSupervisor}
}

func detectSupervisor() string {
	// A bare stat of /run/systemd/system is the conventional systemd
	// presence check; anything else falls back to sysvinit.
	if _, err := os.Stat("/run/systemd/system"); err == nil {
		return SupervisorSystemd
	}
	return SupervisorSysvinit
}

func (p *Planner) Build(ctx context.Context, settings plan.Settings, target plan.TargetArchive) (*plan.Plan, error) {
	init := settings.Init
	if init == "" {
		if p.DetectSupervisor != nil {
			init = p.DetectSupervisor()
		} else {
			init = SupervisorSystemd
		}
	}

	pl := plan.New(settings, target)
	scratch := filepath.Join(settings.Root, ".install-scratch")

	pl.Append(action.NewEnsureWorkingDirectoryPhase(scratch))

	users := make([]action.UserSpec, 0, planner.NixBuildUserCount)
	extraGroups := make(map[string][]string, planner.NixBuildUserCount)
	for i := 0; i < planner.NixBuildUserCount; i++ {
		name := fmt.Sprintf("nixbld%d", i+1)
		users = append(users, action.UserSpec{
			Name:         name,
			UID:          planner.NixBuildUIDBase + i,
			PrimaryGroup: planner.NixBuildGroupName,
			HomeDir:      "/var/empty",
			Shell:        "/sbin/nologin",
			System:       true,
		})
		extraGroups[name] = []string{planner.NixBuildGroupName}
	}
	pl.Append(action.NewProvisionIdentitiesPhase(
		action.GroupSpec{Name: planner.NixBuildGroupName, GID: planner.NixBuildGID, System: true},
		users, extraGroups,
	))

	pl.Append(action.NewCreateTargetTreePhase(settings.Root, targetSubdirs))

	versionTag := "unknown"
	if target.Version != nil {
		versionTag = target.Version.String()
	}
	archivePath := filepath.Join(scratch, fmt.Sprintf("target-%s.%s", versionTag, archive.TarZst))
	pl.Append(action.NewUnpackEmbeddedArchivePhase(action.ArchiveSource{
		Path:                archivePath,
		URL:                 target.URL,
		Format:              archive.TarZst,
		DigestHex:           target.DigestHex,
		SignaturePath:       target.SignaturePath,
		ArmoredKey:          target.ArmoredKey,
		ExpectedFingerprint: target.ExpectedFingerprint,
		DestPath:            filepath.Join(settings.Root, "store"),
		StripDirs:           1,
	}))

	pl.Append(action.NewPlaceTargetConfigurationPhase([]action.ConfigFile{
		{Path: filepath.Join(settings.Root, "var/nix/nix.conf"), Body: defaultNixConf(settings.Root)},
	}))

	pl.Append(action.NewConfigureShellProfilesPhase([]action.ShellSnippet{
		{Path: "/etc/profile.d/nix-installer.sh", Body: shellSnippet(settings.Root, "sh")},
		{Path: "/etc/fish/conf.d/nix-installer.fish", Body: shellSnippet(settings.Root, "fish")},
	}))

	switch init {
	case SupervisorNone:
		pl.Append(action.NewConfigureInitSupervisorPhase(SupervisorNone, "", "", nil))
		pl.Append(action.NewStartDaemonPhase("nix-daemon", false, false))
	case SupervisorSysvinit:
		pl.Append(action.NewConfigureInitSupervisorPhase(SupervisorSysvinit,
			"/etc/init.d/nix-daemon", sysvinitUnit(settings.Root), nil))
		pl.Append(action.NewStartDaemonPhase("nix-daemon", settings.StartDaemon, settings.StartDaemon))
	default:
		pl.Append(action.NewConfigureInitSupervisorPhase(SupervisorSystemd,
			"/etc/systemd/system/nix-daemon.service", systemdUnit(settings.Root),
			&action.SocketUnit{
				UnitPath:    "/etc/systemd/system/nix-daemon.socket",
				UnitContent: systemdSocketUnit(),
			}))
		pl.Append(action.NewStartDaemonPhase("nix-daemon", settings.StartDaemon, settings.StartDaemon))
	}

	return pl, nil
}

func defaultNixConf(root string) string {
	return fmt.Sprintf("build-users-group = %s\nstore = %s/store\n", planner.NixBuildGroupName, root)
}

func shellSnippet(root, shell string) string {
	if shell == "fish" {
		return fmt.Sprintf("if test -e %s/profiles/default/etc/profile.d/nix-daemon.fish\n  source %s/profiles/default/etc/profile.d/nix-daemon.fish\nend\n", root, root)
	}
	return fmt.Sprintf(". %s/profiles/default/etc/profile.d/nix-daemon.sh\n", root)
}

func systemdUnit(root string) string {
	return fmt.Sprintf(`[Unit]
Description=Nix Daemon
Requires=nix-daemon.socket

[Service]
ExecStart=%s/store/bin/nix-daemon
LimitNOFILE=1048576

[Install]
WantedBy=multi-user.target
`, root)
}

func systemdSocketUnit() string {
	return `[Unit]
Description=Nix Daemon Socket

[Socket]
ListenStream=/var/run/nix-daemon.socket

[Install]
WantedBy=sockets.target
`
}

func sysvinitUnit(root string) string {
	return fmt.Sprintf("#!/bin/sh\n# nix-daemon init script\nexec %s/store/bin/nix-daemon\n", root)
}
