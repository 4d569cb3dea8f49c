package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRootPrecedence(t *testing.T) {
	t.Setenv(EnvRoot, "/env/nix")
	require.Equal(t, "/flag/nix", GetRoot("/flag/nix", FileSettings{}))
	require.Equal(t, "/env/nix", GetRoot("", FileSettings{}))
	require.Equal(t, "/env/nix", GetRoot("", FileSettings{Root: "/file/nix"}))

	t.Setenv(EnvRoot, "")
	require.Equal(t, "/file/nix", GetRoot("", FileSettings{Root: "/file/nix"}))
	require.Equal(t, DefaultRoot, GetRoot("", FileSettings{}))
}

func TestGetReceiptPathDefaultsUnderRoot(t *testing.T) {
	t.Setenv(EnvReceiptPath, "")
	got := GetReceiptPath("", "/custom", FileSettings{})
	require.Equal(t, filepath.Join("/custom", DefaultReceiptSuffix), got)
}

func TestGetLogFormatClampsInvalidValue(t *testing.T) {
	got := GetLogFormat("nonsense", FileSettings{})
	require.Equal(t, DefaultLogFormat, got)

	got = GetLogFormat("json", FileSettings{})
	require.Equal(t, "json", got)
}

func TestGetNoConfirmPrecedence(t *testing.T) {
	t.Setenv(EnvNoConfirm, "")
	require.True(t, GetNoConfirm(true, FileSettings{}))
	require.False(t, GetNoConfirm(false, FileSettings{}))
	require.True(t, GetNoConfirm(false, FileSettings{NoConfirm: true}))

	t.Setenv(EnvNoConfirm, "true")
	require.True(t, GetNoConfirm(false, FileSettings{}))
}

func TestGetVersionDefaultsToLatest(t *testing.T) {
	t.Setenv(EnvVersion, "")
	require.Equal(t, DefaultVersion, GetVersion(""))
	require.Equal(t, "2.18.1", GetVersion("2.18.1"))
}

func TestGetVerbosityFlagsOverrideEnv(t *testing.T) {
	t.Setenv(EnvDebug, "true")
	require.Equal(t, LevelQuiet, GetVerbosity(true, 0))
	require.Equal(t, LevelDebug, GetVerbosity(false, 2))
	require.Equal(t, LevelDebug, GetVerbosity(false, 0))
}

func TestLoadFileSettingsMissingFileIsNotError(t *testing.T) {
	fs, err := LoadFileSettings(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, FileSettings{}, fs)
}

func TestGetRepoPrecedence(t *testing.T) {
	t.Setenv(EnvRepo, "")
	require.Equal(t, DefaultRepo, GetRepo(""))

	t.Setenv(EnvRepo, "owner/env-repo")
	require.Equal(t, "owner/env-repo", GetRepo(""))
	require.Equal(t, "owner/flag-repo", GetRepo("owner/flag-repo"))
}
