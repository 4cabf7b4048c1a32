package dropbox

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/tokenfile"
)

// csrfTokenBytes is the number of random bytes behind each CSRF token.
const csrfTokenBytes = 16

// oauthAccessDenied is the callback error code sent when the user clicks "Deny".
const oauthAccessDenied = "access_denied"

// stateSeparator splits the CSRF token from the caller's state.
const stateSeparator = "|"

// Extra fields of the token response.
const (
	extraUID       = "uid"
	extraAccountID = "account_id"
)

// ErrNotLoggedIn is returned when no saved token exists.
var ErrNotLoggedIn = errors.New("dropbox: not logged in")

// TokenStore holds the CSRF token of one pending authorization attempt.
// Get returns "" when nothing is stored.
type TokenStore interface {
	Set(token string) error
	Get() (string, error)
	Clear() error
}

// MemoryTokenStore is a TokenStore for a single process.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token

	return nil
}

func (s *MemoryTokenStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.token, nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""

	return nil
}

// AppInfo identifies the registered application.
type AppInfo struct {
	Key    string
	Secret string
}

// AuthResult is the outcome of a completed authorization.
type AuthResult struct {
	AccessToken string
	UID         string
	AccountID   string
	// URLState is the caller state passed to Start, "" when none was given.
	URLState string
	Token    *oauth2.Token
}

// WebAuth runs the OAuth2 authorization code flow with a CSRF token kept
// in an external store. One WebAuth may serve many attempts, but each
// store holds one attempt at a time.
type WebAuth struct {
	cfg        *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger
}

// AuthOptions configures NewWebAuth and TokenSourceFromPath. Zero fields
// take defaults.
type AuthOptions struct {
	Endpoints        Endpoints
	HTTPClient       *http.Client
	ClientIdentifier string
	Logger           *slog.Logger
}

// withDefaults fills zero fields and stamps the User-Agent on the client.
func (o AuthOptions) withDefaults() AuthOptions {
	if o.Endpoints == (Endpoints{}) {
		o.Endpoints = DefaultEndpoints()
	}

	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	ua := userAgentProduct
	if o.ClientIdentifier != "" {
		ua = o.ClientIdentifier + " " + userAgentProduct
	}

	o.HTTPClient = withUserAgent(o.HTTPClient, ua)

	return o
}

// NewWebAuth creates a flow for app redirecting to redirectURI.
func NewWebAuth(app AppInfo, redirectURI string, store TokenStore, opts AuthOptions) *WebAuth {
	opts = opts.withDefaults()

	return &WebAuth{
		cfg:        oauthConfig(app, redirectURI, opts.Endpoints),
		store:      store,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
}

func oauthConfig(app AppInfo, redirectURI string, endpoints Endpoints) *oauth2.Config {
	base := endpoints.base(EndpointAuthorization)

	return &oauth2.Config{
		ClientID:     app.Key,
		ClientSecret: app.Secret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "oauth2/authorize",
			TokenURL:  base + "oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Start begins an attempt. It stores a fresh CSRF token and returns the URL
// to send the user to. urlState, when non-empty, comes back from Finish.
func (w *WebAuth) Start(urlState string, forceReapprove bool) (string, error) {
	csrf, err := generateCSRFToken()
	if err != nil {
		return "", fmt.Errorf("dropbox: generating CSRF token: %w", err)
	}

	state := csrf
	if urlState != "" {
		state += stateSeparator + urlState
	}

	if err := w.store.Set(csrf); err != nil {
		return "", fmt.Errorf("dropbox: storing CSRF token: %w", err)
	}

	var opts []oauth2.AuthCodeOption
	if forceReapprove {
		opts = append(opts, oauth2.SetAuthURLParam("force_reapprove", "true"))
	}

	w.logger.Info("authorization started", slog.Bool("force_reapprove", forceReapprove))

	return w.cfg.AuthCodeURL(state, opts...), nil
}

// Finish validates the callback query and exchanges the code for a token.
// Every failure is final; start a new attempt with Start.
func (w *WebAuth) Finish(ctx context.Context, params url.Values) (*AuthResult, error) {
	urlState, code, err := w.checkCallback(params)
	if err != nil {
		return nil, err
	}

	w.logger.Info("authorization callback validated, exchanging code")

	tok, err := w.cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, w.httpClient), code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	res, err := authResult(tok)
	if err != nil {
		return nil, err
	}

	res.URLState = urlState

	w.logger.Info("authorization complete", slog.String("uid", res.UID))

	return res, nil
}

// checkCallback applies the callback checks in order: query shape, stored
// token, CSRF match, store cleared, provider error. It returns the caller
// state and the authorization code.
func (w *WebAuth) checkCallback(params url.Values) (string, string, error) {
	if !params.Has("state") {
		return "", "", fmt.Errorf("%w: missing query parameter 'state'", ErrProtocol)
	}

	state := params.Get("state")
	hasCode, hasError := params.Has("code"), params.Has("error")

	switch {
	case hasCode && hasError:
		return "", "", fmt.Errorf("%w: query parameters 'code' and 'error' are both set", ErrProtocol)
	case !hasCode && !hasError:
		return "", "", fmt.Errorf("%w: neither query parameter 'code' nor 'error' is set", ErrProtocol)
	}

	stored, err := w.store.Get()
	if err != nil {
		return "", "", fmt.Errorf("dropbox: reading CSRF token: %w", err)
	}

	if stored == "" {
		return "", "", fmt.Errorf("%w: no pending authorization", ErrCSRF)
	}

	given, urlState, _ := strings.Cut(state, stateSeparator)

	if subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return "", "", fmt.Errorf("%w: token does not match", ErrCSRF)
	}

	if err := w.store.Clear(); err != nil {
		return "", "", fmt.Errorf("dropbox: clearing CSRF token: %w", err)
	}

	if hasError {
		return "", "", &AuthError{Code: params.Get("error"), Description: params.Get("error_description")}
	}

	return urlState, params.Get("code"), nil
}

// authResult checks the token response fields the API guarantees.
func authResult(tok *oauth2.Token) (*AuthResult, error) {
	if !strings.EqualFold(tok.TokenType, "bearer") {
		return nil, fmt.Errorf("%w: unknown token_type %q, expecting \"Bearer\"", ErrProtocol, tok.TokenType)
	}

	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing \"access_token\" field", ErrProtocol)
	}

	uid, ok := tok.Extra(extraUID).(string)
	if !ok || uid == "" {
		return nil, fmt.Errorf("%w: missing \"uid\" string field", ErrProtocol)
	}

	accountID, _ := tok.Extra(extraAccountID).(string)

	return &AuthResult{
		AccessToken: tok.AccessToken,
		UID:         uid,
		AccountID:   accountID,
		Token:       tok,
	}, nil
}

// classifyExchangeError maps token endpoint failures onto the taxonomy.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return newAPIError(
			retrieveErr.Response.StatusCode,
			retrieveErr.Response.Header.Get(headerRequestID),
			retrieveErr.Body,
		)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransportError{Method: http.MethodPost, URL: urlErr.URL, Err: urlErr.Err}
	}

	// The library rejects replies without access_token before we see them.
	return fmt.Errorf("%w: token exchange: %w", ErrProtocol, err)
}

// generateCSRFToken returns 16 random bytes, base64 encoded URL-safe.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

// SaveToken persists a completed authorization to tokenPath.
func SaveToken(tokenPath string, res *AuthResult) error {
	tok := res.Token
	if tok == nil {
		tok = &oauth2.Token{AccessToken: res.AccessToken, TokenType: "bearer"}
	}

	tf := &tokenfile.File{
		Token: tok,
		Meta:  tokenfile.Meta{UID: res.UID, AccountID: res.AccountID},
	}

	if err := tokenfile.Save(tokenPath, tf); err != nil {
		return fmt.Errorf("dropbox: saving token: %w", err)
	}

	return nil
}

// TokenSourceFromPath loads the token saved at tokenPath. Tokens carrying
// a refresh token are refreshed through app's credentials when they expire,
// using opts.HTTPClient. Returns ErrNotLoggedIn if no token file exists.
//
// ctx is bound to the refreshing source and must outlive it.
func TokenSourceFromPath(ctx context.Context, tokenPath string, app AppInfo, opts AuthOptions) (TokenSource, error) {
	opts = opts.withDefaults()

	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	tok := tf.Token

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	opts.Logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Bool("expired", expired),
	)

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	src := oauthConfig(app, "", opts.Endpoints).TokenSource(refreshCtx, tok)

	return &tokenBridge{src: src, logger: opts.Logger}, nil
}

// Logout removes the token file. A missing file is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))

		return nil
	}

	if err != nil {
		return &FileError{Op: "remove", Path: tokenPath, Err: err}
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// tokenBridge adapts oauth2.TokenSource to TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("dropbox: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}
