package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/bandwidth"
	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/config"
	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext bundles everything a command needs. It is built once in the
// root pre-run and handed to commands through the cobra context, so command
// bodies never read globals.
type CLIContext struct {
	Flags     CLIFlags
	Cfg       *config.Resolved
	Logger    *slog.Logger
	Endpoints dropbox.Endpoints
	Stdout    io.Writer
	Stderr    io.Writer
	Stdin     io.Reader
}

type cliContextKey struct{}

// errNotLoggedIn is shown when no token file and no DROPBOX_ACCESS_TOKEN exist.
var errNotLoggedIn = errors.New("not logged in: run 'dropbox-client login' first")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dropbox-client",
		Short:   "Dropbox command line client",
		Long:    "Browse, transfer and watch files in a Dropbox account from the terminal.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd)
			if err != nil {
				return err
			}

			ctx := shutdownContext(cmd.Context(), cc.Logger)
			cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newGetZipCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newThumbnailCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newSaveURLCmd())
	cmd.AddCommand(newCopyRefCmd())
	cmd.AddCommand(newPasteRefCmd())

	return cmd
}

// loadCLIContext resolves configuration from the override chain and builds
// the logger.
func loadCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if level := flagLogLevel(flags); level != "" {
		cli.LogLevel = &level
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	stderr := cmd.ErrOrStderr()

	return &CLIContext{
		Flags:     flags,
		Cfg:       cfg,
		Logger:    buildLogger(cfg.Logging, stderr),
		Endpoints: dropbox.DefaultEndpoints(),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    stderr,
		Stdin:     cmd.InOrStdin(),
	}, nil
}

// cliContextFrom returns the CLIContext stored by the root pre-run.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context missing: command ran without the root pre-run")
	}

	return cc
}

// flagLogLevel maps --verbose and --quiet to a log level; "" leaves the
// config file's level in place. --quiet wins when both are given.
func flagLogLevel(f CLIFlags) string {
	switch {
	case f.Quiet:
		return "error"
	case f.Verbose:
		return "debug"
	default:
		return ""
	}
}

// buildLogger creates the process logger. "auto" picks a text handler for
// terminals and JSON otherwise.
func buildLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	switch lc.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useJSON := lc.LogFormat == "json"
	if lc.LogFormat == "auto" {
		useJSON = !isTerminal(w)
	}

	if useJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// httpClient builds an HTTP client from the network settings. headerTimeout
// bounds the wait for response headers; bodies are bounded by the context.
func (cc *CLIContext) httpClient(headerTimeout time.Duration) *http.Client {
	return dropbox.NewHTTPClient(dropbox.TransportOptions{
		InsecureSkipVerify:    cc.Cfg.Network.InsecureSkipVerify,
		ConnectTimeout:        cc.Cfg.ConnectTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ForceHTTP11:           cc.Cfg.Network.ForceHTTP11,
	})
}

func (cc *CLIContext) appInfo() dropbox.AppInfo {
	return dropbox.AppInfo{Key: cc.Cfg.App.AppKey, Secret: cc.Cfg.App.AppSecret}
}

// authOptions routes OAuth calls through the configured network settings.
func (cc *CLIContext) authOptions() dropbox.AuthOptions {
	return dropbox.AuthOptions{
		Endpoints:        cc.Endpoints,
		HTTPClient:       cc.httpClient(cc.Cfg.DataTimeout),
		ClientIdentifier: cc.Cfg.App.ClientIdentifier,
		Logger:           cc.Logger,
	}
}

// tokenSource prefers DROPBOX_ACCESS_TOKEN over the saved token file.
func (cc *CLIContext) tokenSource(ctx context.Context) (dropbox.TokenSource, error) {
	if cc.Cfg.AccessToken != "" {
		cc.Logger.Debug("using access token from environment")
		return dropbox.StaticToken(cc.Cfg.AccessToken), nil
	}

	ts, err := dropbox.TokenSourceFromPath(ctx, cc.Cfg.TokenPath, cc.appInfo(), cc.authOptions())
	if errors.Is(err, dropbox.ErrNotLoggedIn) {
		return nil, errNotLoggedIn
	}

	return ts, err
}

// newClient builds an API client for ordinary calls.
func (cc *CLIContext) newClient(ctx context.Context) (*dropbox.Client, error) {
	return cc.newClientWithTimeout(ctx, cc.Cfg.DataTimeout)
}

// newClientWithTimeout builds an API client whose requests may wait up to
// headerTimeout for a response. Longpoll needs more than the data timeout.
func (cc *CLIContext) newClientWithTimeout(ctx context.Context, headerTimeout time.Duration) (*dropbox.Client, error) {
	ts, err := cc.tokenSource(ctx)
	if err != nil {
		return nil, err
	}

	client := dropbox.NewClient(cc.Endpoints, cc.httpClient(headerTimeout), ts, cc.Logger, cc.Cfg.App.ClientIdentifier)
	client.SetUploadLimits(cc.Cfg.ChunkBytes, cc.Cfg.MaxSingleBytes)

	limiter, err := bandwidth.New(cc.Cfg.Transfers.BandwidthLimit, cc.Logger)
	if err != nil {
		return nil, err
	}

	if limiter != nil {
		client.SetThrottle(limiter)
	}

	return client, nil
}
