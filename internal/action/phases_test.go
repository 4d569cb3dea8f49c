package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureWorkingDirectoryPhase(t *testing.T) {
	host := NewFakeHost()
	phase := NewEnsureWorkingDirectoryPhase("/tmp/nix-installer-scratch")

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	info, err := host.Stat("/tmp/nix-installer-scratch")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestProvisionIdentitiesPhaseCreatesGroupThenUsersThenMembership(t *testing.T) {
	host := NewFakeHost()
	phase := NewProvisionIdentitiesPhase(
		GroupSpec{Name: "nixbld", GID: 30000, System: true},
		[]UserSpec{
			{Name: "nixbld1", UID: 30001, PrimaryGroup: "nixbld", System: true},
			{Name: "nixbld2", UID: 30002, PrimaryGroup: "nixbld", System: true},
		},
		map[string][]string{"nixbld1": {"wheel"}},
	)

	ctx := context.Background()
	require.NoError(t, host.CreateGroup(GroupSpec{Name: "wheel", GID: 10}))
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	group, err := host.LookupGroup("nixbld")
	require.NoError(t, err)
	assert.Equal(t, 30000, group.GID)

	u1, err := host.LookupUser("nixbld1")
	require.NoError(t, err)
	assert.Equal(t, 30001, u1.UID)

	assert.True(t, host.IsMember("wheel", "nixbld1"))
}

func TestCreateTargetTreePhaseCreatesRootAndSubdirs(t *testing.T) {
	host := NewFakeHost()
	phase := NewCreateTargetTreePhase("/nix", []string{"store", "var/nix", "profile"})

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	for _, p := range []string{"/nix", "/nix/store", "/nix/var/nix", "/nix/profile"} {
		info, err := host.Stat(p)
		require.NoError(t, err, p)
		assert.True(t, info.IsDir())
	}
}

func TestUnpackEmbeddedArchivePhaseOrdersVerifyBeforeUnpack(t *testing.T) {
	phase := NewUnpackEmbeddedArchivePhase(ArchiveSource{
		Path:      "/tmp/target.tar.gz",
		DigestHex: "deadbeef",
		DestPath:  "/nix/store",
	})
	children := phase.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "verify-digest", children[0].Kind())
	assert.Equal(t, "unpack-archive", children[1].Kind())
}

func TestUnpackEmbeddedArchivePhaseIncludesSignatureWhenProvided(t *testing.T) {
	phase := NewUnpackEmbeddedArchivePhase(ArchiveSource{
		Path:          "/tmp/target.tar.gz",
		DigestHex:     "deadbeef",
		SignaturePath: "/tmp/target.tar.gz.sig",
		ArmoredKey:    "armored",
		DestPath:      "/nix/store",
	})
	children := phase.Children()
	require.Len(t, children, 3)
	assert.Equal(t, "verify-digest", children[0].Kind())
	assert.Equal(t, "verify-signature", children[1].Kind())
	assert.Equal(t, "unpack-archive", children[2].Kind())
}

func TestPlaceTargetConfigurationPhaseIsParallelSafe(t *testing.T) {
	host := NewFakeHost()
	phase := NewPlaceTargetConfigurationPhase([]ConfigFile{
		{Path: "/etc/nix/nix.conf", Body: "experimental-features = nix-command"},
		{Path: "/etc/nix/nix.custom.conf", Body: "extra-substituters ="},
	})

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	for _, p := range []string{"/etc/nix/nix.conf", "/etc/nix/nix.custom.conf"} {
		_, err := host.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestConfigureInitSupervisorPhaseWithSocket(t *testing.T) {
	host := NewFakeHost()
	phase := NewConfigureInitSupervisorPhase("systemd", "/etc/systemd/system/nix-daemon.service", "[Unit]\n",
		&SocketUnit{UnitPath: "/etc/systemd/system/nix-daemon.socket", UnitContent: "[Socket]\n"})

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	require.Len(t, phase.Children(), 2)
	_, err := host.Stat("/etc/systemd/system/nix-daemon.socket")
	assert.NoError(t, err)
}

func TestConfigureInitSupervisorPhaseSkipsWhenNoSupervisor(t *testing.T) {
	host := NewFakeHost()
	phase := NewConfigureInitSupervisorPhase("none", "/etc/systemd/system/nix-daemon.service", "[Unit]\n", nil)

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	_, err := host.Stat("/etc/systemd/system/nix-daemon.service")
	assert.Error(t, err)
}

func TestStartDaemonPhaseEnablesAndStarts(t *testing.T) {
	host := NewFakeHost()
	phase := NewStartDaemonPhase("nix-daemon", true, true)

	ctx := context.Background()
	require.NoError(t, phase.TryPlan(ctx, host))
	require.NoError(t, phase.TryExecute(ctx, host))

	enabled, err := host.ServiceIsEnabled(ctx, "nix-daemon")
	require.NoError(t, err)
	assert.True(t, enabled)

	active, err := host.ServiceIsActive(ctx, "nix-daemon")
	require.NoError(t, err)
	assert.True(t, active)
}
