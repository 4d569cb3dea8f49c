// Package config resolves the installer's settings from flags, environment
// variables, and an optional static settings file, in that order of
// precedence (flags win, then env, then file, then built-in defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	EnvPlanner     = "NIX_INSTALLER_PLANNER"
	EnvInit        = "NIX_INSTALLER_INIT"
	EnvNoConfirm   = "NIX_INSTALLER_NO_CONFIRM"
	EnvRoot        = "NIX_INSTALLER_ROOT"
	EnvReceiptPath = "NIX_INSTALLER_RECEIPT_PATH"
	EnvLogFormat   = "NIX_INSTALLER_LOG_FORMAT"
	EnvVerbose     = "NIX_INSTALLER_VERBOSE"
	EnvDebug       = "NIX_INSTALLER_DEBUG"
	EnvQuiet       = "NIX_INSTALLER_QUIET"
	EnvVersion     = "NIX_INSTALLER_VERSION"
	EnvForce       = "NIX_INSTALLER_FORCE"
	EnvConfigFile  = "NIX_INSTALLER_CONFIG_FILE"
	EnvGitHubToken = "NIX_INSTALLER_GITHUB_TOKEN"
	EnvRepo        = "NIX_INSTALLER_REPO"

	DefaultRoot          = "/nix"
	DefaultLogFormat     = "compact"
	DefaultVersion       = "latest"
	DefaultConfigFile    = "/etc/nix-installer.toml"
	DefaultReceiptSuffix = "receipt.json"
	DefaultRepo          = "NixOS/nix"
)

// FileSettings is the shape of the optional TOML settings file. Any field
// left zero-valued defers to the environment/flag/default chain.
type FileSettings struct {
	Planner     string `toml:"planner"`
	Init        string `toml:"init"`
	Root        string `toml:"root"`
	LogFormat   string `toml:"log_format"`
	NoConfirm   bool   `toml:"no_confirm"`
	ReceiptPath string `toml:"receipt_path"`
}

// LoadFileSettings reads the TOML settings file at path. A missing file is
// not an error: it returns a zero-valued FileSettings.
func LoadFileSettings(path string) (FileSettings, error) {
	var fs FileSettings
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fs, nil
	}
	if _, err := toml.DecodeFile(path, &fs); err != nil {
		return fs, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return fs, nil
}

// ConfigFilePath returns the settings file path: NIX_INSTALLER_CONFIG_FILE
// if set, else DefaultConfigFile.
func ConfigFilePath() string {
	if v := os.Getenv(EnvConfigFile); v != "" {
		return v
	}
	return DefaultConfigFile
}

// GetRoot resolves the target root directory: flag > env > file > default.
func GetRoot(flag string, file FileSettings) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvRoot); v != "" {
		return v
	}
	if file.Root != "" {
		return file.Root
	}
	return DefaultRoot
}

// GetReceiptPath resolves the receipt path, defaulting to <root>/receipt.json.
func GetReceiptPath(flag, root string, file FileSettings) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvReceiptPath); v != "" {
		return v
	}
	if file.ReceiptPath != "" {
		return file.ReceiptPath
	}
	return filepath.Join(root, DefaultReceiptSuffix)
}

// GetPlanner resolves the planner tag: flag > env > file > "" (autodetect).
func GetPlanner(flag string, file FileSettings) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvPlanner); v != "" {
		return v
	}
	return file.Planner
}

// GetInit resolves the init supervisor tag: flag > env > file > "" (autodetect).
func GetInit(flag string, file FileSettings) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvInit); v != "" {
		return v
	}
	return file.Init
}

// GetLogFormat resolves the log format, clamping unrecognized values to the
// default with a warning rather than failing.
func GetLogFormat(flag string, file FileSettings) string {
	candidate := flag
	source := "flag"
	if candidate == "" {
		if v := os.Getenv(EnvLogFormat); v != "" {
			candidate, source = v, "env "+EnvLogFormat
		}
	}
	if candidate == "" && file.LogFormat != "" {
		candidate, source = file.LogFormat, "settings file"
	}
	if candidate == "" {
		return DefaultLogFormat
	}
	switch candidate {
	case "compact", "full", "pretty", "json":
		return candidate
	default:
		fmt.Fprintf(os.Stderr, "Warning: invalid log format %q from %s, using default %q\n", candidate, source, DefaultLogFormat)
		return DefaultLogFormat
	}
}

// GetNoConfirm resolves --no-confirm: flag > env > file > false.
func GetNoConfirm(flag bool, file FileSettings) bool {
	if flag {
		return true
	}
	if v := os.Getenv(EnvNoConfirm); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, ignoring\n", EnvNoConfirm, v)
	}
	return file.NoConfirm
}

// GetForce resolves --force: flag > env > false.
func GetForce(flag bool) bool {
	if flag {
		return true
	}
	if v := os.Getenv(EnvForce); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, ignoring\n", EnvForce, v)
	}
	return false
}

// GetVersion resolves the target version string: flag > env > "latest".
func GetVersion(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvVersion); v != "" {
		return v
	}
	return DefaultVersion
}

// GetGitHubToken returns the token used to raise the resolver's GitHub API
// rate limit, or "" if unset.
func GetGitHubToken() string {
	return strings.TrimSpace(os.Getenv(EnvGitHubToken))
}

// GetRepo resolves the owner/repo the resolver queries for target
// releases: flag > env > default.
func GetRepo(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvRepo); v != "" {
		return v
	}
	return DefaultRepo
}

// VerbosityLevel mirrors slog's level granularity without importing slog
// here, so config stays a low-level, dependency-light package.
type VerbosityLevel int

const (
	LevelWarn VerbosityLevel = iota
	LevelInfo
	LevelDebug
	LevelQuiet
)

// GetVerbosity resolves verbosity: flags (-v/-vv/--quiet) take precedence
// over NIX_INSTALLER_DEBUG/_VERBOSE/_QUIET.
func GetVerbosity(quiet bool, verboseCount int) VerbosityLevel {
	if quiet {
		return LevelQuiet
	}
	if verboseCount >= 2 {
		return LevelDebug
	}
	if verboseCount == 1 {
		return LevelInfo
	}
	if envBool(EnvQuiet) {
		return LevelQuiet
	}
	if envBool(EnvDebug) {
		return LevelDebug
	}
	if envBool(EnvVerbose) {
		return LevelInfo
	}
	return LevelWarn
}

func envBool(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, ignoring\n", name, v)
		return false
	}
	return b
}
