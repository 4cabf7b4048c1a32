package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// appName names the per-user directories on every platform.
const appName = "dropbox-client"

const (
	configFileName = "config.toml"
	tokenFileName  = "token.json"
)

// userDir describes one XDG base directory and its fallback below $HOME.
type userDir struct {
	xdgEnv   string
	fallback []string
}

var (
	configDir = userDir{xdgEnv: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataDir   = userDir{xdgEnv: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// resolve returns the application directory under home for goos. macOS
// keeps config and data together in Application Support; XDG variables are
// honored on Linux only.
func (d userDir) resolve(goos, home string) string {
	switch goos {
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	case platformLinux:
		if xdg := os.Getenv(d.xdgEnv); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	return filepath.Join(append(append([]string{home}, d.fallback...), appName)...)
}

func (d userDir) path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return d.resolve(runtime.GOOS, home)
}

// DefaultConfigDir returns the directory holding config.toml.
func DefaultConfigDir() string { return configDir.path() }

// DefaultDataDir returns the directory holding the token file.
func DefaultDataDir() string { return dataDir.path() }

// DefaultConfigPath is used when neither DROPBOX_CLIENT_CONFIG nor --config
// is set.
func DefaultConfigPath() string {
	return joinIfSet(DefaultConfigDir(), configFileName)
}

// DefaultTokenPath returns where the OAuth token and account metadata live.
func DefaultTokenPath() string {
	return joinIfSet(DefaultDataDir(), tokenFileName)
}

func joinIfSet(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
