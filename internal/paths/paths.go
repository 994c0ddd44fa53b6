// Package paths resolves where possum keeps its configuration and its
// database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "possum"

// CWD-relative default directory names.
const (
	DefaultConfigDirName = ".possum"
	DefaultDataDirName   = ".possum-db"
)

// Environment variable overrides.
const (
	EnvConfigDir = "POSSUM_CONFIG_DIR"
	EnvDataDir   = "POSSUM_DATA_DIR"
)

// File and directory names inside the config directory.
const (
	ConfigFileName = "config.yaml"
	KindsDirName   = "kinds"
)

// platformDir holds the platform lookups so tests can replace them.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// userDir returns the per-user directory for AppName. On Linux it honors
// xdgEnv and otherwise falls back to ~/<linuxFallback...>; elsewhere it uses
// os.UserConfigDir.
func userDir(xdgEnv string, linuxFallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, linuxFallback...)
	return filepath.Join(append(parts, AppName)...), nil
}

// DefaultConfigDir returns the per-user configuration directory:
// $XDG_CONFIG_HOME/possum or ~/.config/possum on Linux, the
// os.UserConfigDir equivalent elsewhere.
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory:
// $XDG_DATA_HOME/possum or ~/.local/share/possum on Linux, the
// os.UserConfigDir equivalent elsewhere.
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir applies flag > POSSUM_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config.yaml > POSSUM_DATA_DIR >
// $(CWD)/.possum-db. The in-memory marker ":memory:" passes through
// unchanged from any source.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	for _, v := range []string{flag, configYAMLValue, os.Getenv(EnvDataDir)} {
		if v == "" {
			continue
		}
		if v == ":memory:" {
			return v, nil
		}
		return filepath.Abs(v)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the config.yaml path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// KindsDir returns the directory of kind descriptor files inside configDir.
func KindsDir(configDir string) string {
	return filepath.Join(configDir, KindsDirName)
}
