package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/config"
	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

// testCLIContext returns a CLIContext whose clients talk to srv with a
// static token. Output buffers are returned for assertions.
func testCLIContext(t *testing.T, srv *httptest.Server) (*CLIContext, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	cfg := &config.Resolved{
		Config:          *config.DefaultConfig(),
		ConfigPath:      filepath.Join(t.TempDir(), "config.toml"),
		TokenPath:       filepath.Join(t.TempDir(), "token.json"),
		AccessToken:     "test-token",
		ChunkBytes:      4 << 20,
		MaxSingleBytes:  8 << 20,
		ConnectTimeout:  5 * time.Second,
		DataTimeout:     10 * time.Second,
		LongpollTimeout: 30 * time.Second,
	}

	var stdout, stderr bytes.Buffer

	cc := &CLIContext{
		Cfg:    cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout: &stdout,
		Stderr: &stderr,
		Stdin:  strings.NewReader(""),
	}

	if srv != nil {
		cc.Endpoints = dropbox.SingleHost(srv.URL)
	}

	return cc, &stdout, &stderr
}

// apiServer serves the given API paths ("/2/files/list_folder") and fails
// the test on any other call.
func apiServer(t *testing.T, table map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"), r.URL.Path)

		h, ok := table[r.URL.Path]
		if !ok {
			t.Errorf("unexpected call to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)

			return
		}

		h(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func jsonReply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestFlagLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		flags CLIFlags
		want  string
	}{
		{"none", CLIFlags{}, ""},
		{"verbose", CLIFlags{Verbose: true}, "debug"},
		{"quiet", CLIFlags{Quiet: true}, "error"},
		{"quiet wins", CLIFlags{Verbose: true, Quiet: true}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flagLogLevel(tt.flags))
		})
	}
}

func TestBuildLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := buildLogger(config.LoggingConfig{LogLevel: tt.level, LogFormat: "text"}, io.Discard)

			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.muted))
		})
	}
}

func TestBuildLogger_Formats(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
	}{
		{"json", true},
		{"text", false},
		// A buffer is not a terminal.
		{"auto", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer

			logger := buildLogger(config.LoggingConfig{LogLevel: "info", LogFormat: tt.format}, &buf)
			logger.Info("hello", "k", "v")

			var decoded map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &decoded) == nil

			assert.Equal(t, tt.wantJSON, isJSON, buf.String())
			assert.Contains(t, buf.String(), "hello")
		})
	}
}

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"login", "logout", "whoami", "ls", "stat", "mkdir", "rm", "get", "get-zip",
		"put", "search", "watch", "thumbnail", "preview", "save-url", "copy-ref", "paste-ref",
	} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestLoadCLIContext_UsesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"warn\"\nlog_format = \"json\"\n"), 0o600))

	t.Setenv(config.EnvAccessToken, "env-token")

	cmd := newRootCmd()
	flagConfigPath = path
	flagVerbose = false
	flagQuiet = false

	cc, err := loadCLIContext(cmd)
	require.NoError(t, err)

	assert.Equal(t, path, cc.Cfg.ConfigPath)
	assert.Equal(t, "warn", cc.Cfg.Logging.LogLevel)
	assert.Equal(t, "env-token", cc.Cfg.AccessToken)
	assert.Equal(t, dropbox.DefaultEndpoints(), cc.Endpoints)
}

func TestLoadCLIContext_QuietOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"debug\"\n"), 0o600))

	cmd := newRootCmd()
	flagConfigPath = path
	flagQuiet = true

	t.Cleanup(func() { flagQuiet = false })

	cc, err := loadCLIContext(cmd)
	require.NoError(t, err)
	assert.Equal(t, "error", cc.Cfg.Logging.LogLevel)
}

func TestLoadCLIContext_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[network]\nconect_timeout = \"10s\"\n"), 0o600))

	cmd := newRootCmd()
	flagConfigPath = path

	_, err := loadCLIContext(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestCLIContextFrom(t *testing.T) {
	cc, _, _ := testCLIContext(t, nil)
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, cliContextFrom(ctx))
	assert.Panics(t, func() { cliContextFrom(context.Background()) })
}

func TestTokenSource_NotLoggedIn(t *testing.T) {
	cc, _, _ := testCLIContext(t, nil)
	cc.Cfg.AccessToken = ""

	_, err := cc.tokenSource(context.Background())
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestTokenSource_EnvTokenWins(t *testing.T) {
	cc, _, _ := testCLIContext(t, nil)

	ts, err := cc.tokenSource(context.Background())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)
}

func TestNewClient_InvalidBandwidth(t *testing.T) {
	cc, _, _ := testCLIContext(t, nil)
	cc.Cfg.Transfers.BandwidthLimit = "fast"

	_, err := cc.newClient(context.Background())
	require.Error(t, err)
}

func TestStatusf_Quiet(t *testing.T) {
	cc, _, stderr := testCLIContext(t, nil)

	cc.Statusf("shown %d\n", 1)
	cc.Flags.Quiet = true
	cc.Statusf("hidden\n")

	assert.Equal(t, "shown 1\n", stderr.String())
}

// runCmd executes the root command with args. Used for argument checks
// that fail before any API call.
func runCmd(t *testing.T, args ...string) error {
	t.Helper()

	t.Setenv(config.EnvConfig, filepath.Join(t.TempDir(), "missing.toml"))

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	return execute(context.Background(), cmd)
}

func TestRootCmd_ArgValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"stat needs path", []string{"stat"}},
		{"put needs local", []string{"put"}},
		{"copy-ref extra arg", []string{"copy-ref", "/a", "/b"}},
		{"save-url needs two", []string{"save-url", "https://example.com/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runCmd(t, tt.args...))
		})
	}
}
