package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testHome = "/home/testuser"

func TestDefaultDirs_ContainAppName(t *testing.T) {
	assert.Contains(t, DefaultConfigDir(), appName)
	assert.Contains(t, DefaultDataDir(), appName)
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), configFileName))
}

func TestUserDirResolve(t *testing.T) {
	tests := []struct {
		name string
		dir  userDir
		goos string
		xdg  string
		want string
	}{
		{"linux config xdg", configDir, platformLinux, "/custom/config", "/custom/config/" + appName},
		{"linux config fallback", configDir, platformLinux, "", testHome + "/.config/" + appName},
		{"linux data xdg", dataDir, platformLinux, "/custom/data", "/custom/data/" + appName},
		{"linux data fallback", dataDir, platformLinux, "", testHome + "/.local/share/" + appName},
		{"darwin ignores xdg", dataDir, platformDarwin, "/custom/data", testHome + "/Library/Application Support/" + appName},
		{"other os ignores xdg", configDir, "freebsd", "/custom/config", testHome + "/.config/" + appName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.dir.xdgEnv, tt.xdg)

			assert.Equal(t, filepath.FromSlash(tt.want), tt.dir.resolve(tt.goos, testHome))
		})
	}
}

func TestDefaultTokenPath_InDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	path := DefaultTokenPath()
	assert.Equal(t, filepath.Join(DefaultDataDir(), tokenFileName), path)

	if runtime.GOOS == platformLinux {
		assert.Equal(t, filepath.Join("/custom/data", appName, tokenFileName), path)
	}
}

func TestJoinIfSet(t *testing.T) {
	assert.Empty(t, joinIfSet("", "x"))
	assert.Equal(t, filepath.Join("a", "x"), joinIfSet("a", "x"))
}
