package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/tokenfile"
)

// callbackShutdownTimeout is how long to wait for the callback server to drain.
const callbackShutdownTimeout = 5 * time.Second

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize this client with your Dropbox account",
		Long: `Authorize this client with Dropbox using the OAuth2 authorization code flow.

By default a local server on the configured redirect_uri receives the
callback. With --manual, open the printed URL, approve, and paste the full
URL your browser was redirected to.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manual, _ := cmd.Flags().GetBool("manual")
			force, _ := cmd.Flags().GetBool("force-reapprove")

			return runLogin(cmd.Context(), cliContextFrom(cmd.Context()), manual, force)
		},
	}

	cmd.Flags().Bool("manual", false, "paste the redirect URL instead of running a callback server")
	cmd.Flags().Bool("force-reapprove", false, "ask Dropbox to show the approval page again")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := cliContextFrom(cmd.Context())
			if err := dropbox.Logout(cc.Cfg.TokenPath, cc.Logger); err != nil {
				return err
			}

			cc.Statusf("Logged out.\n")

			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd.Context(), cliContextFrom(cmd.Context()))
		},
	}
}

func runLogin(ctx context.Context, cc *CLIContext, manual, forceReapprove bool) error {
	if cc.Cfg.App.AppKey == "" || cc.Cfg.App.AppSecret == "" {
		return errors.New("app_key and app_secret must be set in [app] or via DROPBOX_APP_KEY/DROPBOX_APP_SECRET")
	}

	wa := dropbox.NewWebAuth(cc.appInfo(), cc.Cfg.App.RedirectURI, &dropbox.MemoryTokenStore{}, cc.authOptions())

	authURL, err := wa.Start("", forceReapprove)
	if err != nil {
		return err
	}

	var params url.Values
	if manual {
		params, err = readRedirect(cc, authURL)
	} else {
		params, err = awaitCallback(ctx, cc, authURL)
	}

	if err != nil {
		return err
	}

	res, err := wa.Finish(ctx, params)
	if err != nil {
		return err
	}

	if err := dropbox.SaveToken(cc.Cfg.TokenPath, res); err != nil {
		return err
	}

	cc.Logger.Info("login successful", slog.String("uid", res.UID))
	cc.Statusf("Login successful (uid %s).\n", res.UID)

	return nil
}

// readRedirect prints authURL and reads the pasted redirect URL from stdin.
func readRedirect(cc *CLIContext, authURL string) (url.Values, error) {
	// The prompt is always shown, even with --quiet.
	fmt.Fprintf(cc.Stderr, "1. Open: %s\n2. Click \"Allow\".\n3. Paste the URL you were redirected to: ", authURL)

	line, err := bufio.NewReader(cc.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading redirect URL: %w", err)
	}

	u, err := url.Parse(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	return u.Query(), nil
}

// awaitCallback serves the redirect URI locally until Dropbox redirects the
// browser back, and returns the callback's query parameters.
func awaitCallback(ctx context.Context, cc *CLIContext, authURL string) (url.Values, error) {
	redirect, err := url.Parse(cc.Cfg.App.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect_uri: %w", err)
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("binding callback listener on %s: %w", redirect.Host, err)
	}

	cc.Logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	fmt.Fprintf(cc.Stderr, "Open this URL in your browser:\n%s\n", authURL)

	return serveCallback(ctx, cc, listener, callbackPath(redirect))
}

func callbackPath(redirect *url.URL) string {
	if redirect.Path == "" {
		return "/"
	}

	return redirect.Path
}

// serveCallback runs the callback server and the wait under one errgroup.
// The first request to path ends both.
func serveCallback(ctx context.Context, cc *CLIContext, listener net.Listener, path string) (url.Values, error) {
	resultCh := make(chan url.Values, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if e := q.Get("error"); e != "" {
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>%s</p></body></html>", html.EscapeString(e))
		} else {
			fmt.Fprint(w, "<html><body><h1>Authorization received</h1>"+
				"<p>You can close this window and return to the terminal.</p></body></html>")
		}

		select {
		case resultCh <- q:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: callbackShutdownTimeout}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}

		return nil
	})

	var params url.Values

	g.Go(func() error {
		defer shutdownCallbackServer(srv, cc)

		select {
		case params = <-resultCh:
			return nil
		case <-gctx.Done():
			return fmt.Errorf("login canceled: %w", gctx.Err())
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return params, nil
}

func shutdownCallbackServer(srv *http.Server, cc *CLIContext) {
	ctx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		cc.Logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

func runWhoami(ctx context.Context, cc *CLIContext) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	acct, err := client.GetCurrentAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}

	// Cache the identity next to the token; env tokens have no file.
	if cc.Cfg.AccessToken == "" {
		if err := tokenfile.UpdateMeta(cc.Cfg.TokenPath, func(m *tokenfile.Meta) {
			m.AccountID = acct.AccountID
			m.DisplayName = acct.DisplayName
			m.Email = acct.Email
		}); err != nil {
			cc.Logger.Warn("caching account metadata failed", slog.String("error", err.Error()))
		}
	}

	if cc.Flags.JSON {
		return writeJSON(cc.Stdout, whoamiOutput{
			AccountID:   acct.AccountID,
			DisplayName: acct.DisplayName,
			Email:       acct.Email,
			Country:     acct.Country,
			AccountType: acct.AccountType,
		})
	}

	fmt.Fprintf(cc.Stdout, "User:    %s (%s)\n", acct.DisplayName, acct.Email)
	fmt.Fprintf(cc.Stdout, "Account: %s\n", acct.AccountID)

	if acct.AccountType != "" {
		fmt.Fprintf(cc.Stdout, "Type:    %s\n", acct.AccountType)
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
