// Package darwin builds installation plans for launchd targets, including
// the macOS-only "dedicated volume" variant of phase 3 (create target
// tree) used when the target root sits on its own APFS volume rather than
// directly under /.
package darwin

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/archive"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/planner"
)

var targetSubdirs = []string{"store", "var", "var/nix", "profiles", "profiles/default"}

// Planner assembles a Plan for a macOS host. Unlike linux.Planner it has no
// init-supervisor choice to detect: launchd is the only option.
type Planner struct {
	// DedicatedVolume, when true, prefixes phase 3 with the volume-mount
	// actions before creating the target tree subdirectories, mirroring
	// the real installer's "Synthesized" APFS volume approach.
	DedicatedVolume bool
	VolumeDevice    string // e.g. "/dev/disk3s6", required when DedicatedVolume is true
}

func New() *Planner { return &Planner{} }

func (p *Planner) Build(ctx context.Context, settings plan.Settings, target plan.TargetArchive) (*plan.Plan, error) {
	pl := plan.New(settings, target)
	scratch := filepath.Join(settings.Root, ".install-scratch")

	pl.Append(action.NewEnsureWorkingDirectoryPhase(scratch))

	users := make([]action.UserSpec, 0, planner.NixBuildUserCount)
	extraGroups := make(map[string][]string, planner.NixBuildUserCount)
	for i := 0; i < planner.NixBuildUserCount; i++ {
		name := fmt.Sprintf("_nixbld%d", i+1)
		users = append(users, action.UserSpec{
			Name:         name,
			UID:          planner.NixBuildUIDBase + i,
			PrimaryGroup: planner.NixBuildGroupName,
			HomeDir:      "/var/empty",
			Shell:        "/usr/bin/false",
			System:       true,
		})
		extraGroups[name] = []string{planner.NixBuildGroupName}
	}
	pl.Append(action.NewProvisionIdentitiesPhase(
		action.GroupSpec{Name: planner.NixBuildGroupName, GID: planner.NixBuildGID, System: true},
		users, extraGroups,
	))

	pl.Append(p.createTargetTreePhase(settings.Root))

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
		{Path: "/etc/zshrc.d/nix-installer.sh", Body: shellSnippet(settings.Root)},
		{Path: "/etc/bashrc.d/nix-installer.sh", Body: shellSnippet(settings.Root)},
	}))

	pl.Append(action.NewConfigureInitSupervisorPhase("launchd",
		"/Library/LaunchDaemons/org.nixos.nix-daemon.plist", launchdPlist(settings.Root), nil))
	pl.Append(action.NewStartDaemonPhase("org.nixos.nix-daemon", settings.StartDaemon, settings.StartDaemon))

	return pl, nil
}

// createTargetTreePhase prepends the dedicated-volume mount actions (when
// configured) ahead of the ordinary directory-creation children, folding
// both into the same phase-3 composite so revert undoes them together.
func (p *Planner) createTargetTreePhase(root string) *action.Composite {
	base := action.NewCreateTargetTreePhase(root, targetSubdirs)
	if !p.DedicatedVolume {
		return base
	}
	mount := &action.CreateOrMergeAction{
		Path: "/etc/synthetic.conf",
		Body: filepath.Base(root) + "\n",
	}
	children := append([]action.Action{mount}, base.Children()...)
	return action.NewComposite(base.Kind(), fmt.Sprintf("create target tree at %s on dedicated volume %s", root, p.VolumeDevice), false, children...)
}

func defaultNixConf(root string) string {
	return fmt.Sprintf("build-users-group = %s\nstore = %s/store\n", planner.NixBuildGroupName, root)
}

func shellSnippet(root string) string {
	return fmt.Sprintf(". %s/profiles/default/etc/profile.d/nix-daemon.sh\n", root)
}

func launchdPlist(root string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>org.nixos.nix-daemon</string>
  <key>ProgramArguments</key>
  <array>
    <string>%s/store/bin/nix-daemon</string>
  </array>
  <key>RunAtLoad</key>
  <true/>
  <key>KeepAlive</key>
  <true/>
</dict>
</plist>
`, root)
}
