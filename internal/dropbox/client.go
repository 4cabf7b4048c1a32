package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf16"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

const userAgentProduct = "dropbox-client-go/" + Version

// Header names used by the API.
const (
	headerAPIArg    = "Dropbox-API-Arg"
	headerAPIResult = "Dropbox-API-Result"
	headerRequestID = "X-Dropbox-Request-Id"
)

// Endpoint identifies one of the API's base-URL groups. The family decides
// where parameters travel: JSON body, Dropbox-API-Arg header, or query string.
type Endpoint int

const (
	EndpointCommand Endpoint = iota
	EndpointContentUpload
	EndpointContentDownload
	EndpointAuthorization
	EndpointNotify
)

func (e Endpoint) String() string {
	switch e {
	case EndpointCommand:
		return "command"
	case EndpointContentUpload:
		return "content-upload"
	case EndpointContentDownload:
		return "content-download"
	case EndpointAuthorization:
		return "authorization"
	case EndpointNotify:
		return "notify"
	default:
		return "endpoint(" + strconv.Itoa(int(e)) + ")"
	}
}

// Endpoints holds the base URL of each family. Every URL ends in "/".
type Endpoints struct {
	Command       string
	Content       string
	Authorization string
	Notify        string
}

// DefaultEndpoints returns the production base URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Command:       "https://api.dropboxapi.com/2/",
		Content:       "https://content.dropboxapi.com/2/",
		Authorization: "https://www.dropbox.com/",
		Notify:        "https://notify.dropboxapi.com/2/",
	}
}

// SingleHost points every family at one server, as tests do with httptest.
func SingleHost(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")

	return Endpoints{
		Command:       base + "/2/",
		Content:       base + "/2/",
		Authorization: base + "/",
		Notify:        base + "/2/",
	}
}

func (e Endpoints) base(family Endpoint) string {
	switch family {
	case EndpointContentUpload, EndpointContentDownload:
		return e.Content
	case EndpointAuthorization:
		return e.Authorization
	case EndpointNotify:
		return e.Notify
	default:
		return e.Command
	}
}

// TokenSource provides bearer tokens. Defined at the consumer per
// "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for a fixed access token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("dropbox: empty access token")
	}

	return string(t), nil
}

// Throttle limits transfer streams. *bandwidth.Limiter satisfies it.
type Throttle interface {
	WrapReader(ctx context.Context, r io.Reader) io.Reader
	WrapWriter(ctx context.Context, w io.Writer) io.Writer
}

// Header is one extra request header. It replaces any header already set
// whose name starts with Key, ignoring case.
type Header struct {
	Key   string
	Value string
}

// Request describes one call. It must not be modified after Dispatch.
type Request struct {
	Endpoint Endpoint
	Path     string
	// Params is JSON-encoded into the body (command, notify), into the
	// Dropbox-API-Arg header (content families), or into the query string
	// (authorization family or Query).
	Params  map[string]any
	Method  string // defaults to POST
	Headers []Header
	// Body is the raw payload for content-upload calls.
	Body []byte
	// Query forces query-string encoding of Params.
	Query bool
	// DecodeJSON parses a content-family response body as JSON.
	DecodeJSON bool
	// NoAuth omits the Authorization header (longpoll rejects it).
	NoAuth bool
}

// Response is a successful (HTTP 200) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the raw response body: file bytes for downloads, JSON text
	// otherwise.
	Body []byte
	// Value is the normalized JSON tree: the body for JSON responses, the
	// Dropbox-API-Result header for downloads. Nil when neither applies.
	Value any
}

// Decode converts the normalized value into a typed shape.
func (r *Response) Decode(out any) error {
	return decodeValue(r.Value, out)
}

// Client dispatches requests to the Dropbox API. A Client is safe for
// sequential use; the log-suppression counter is safe under concurrency
// but its meaning ("the next N failures") is only well-defined for one caller.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	throttle   Throttle

	chunkSize       int64
	maxSingleUpload int64

	// suppressed is the number of upcoming failed calls whose error log is
	// demoted to debug.
	suppressed atomic.Int64

	// failuresLogged counts logFailure calls, suppressed or not.
	failuresLogged atomic.Int64

	// pollInterval paces SaveURLAndWait. Tests shorten it.
	pollInterval time.Duration
	sleepFunc    func(ctx context.Context, d time.Duration) error
}

// NewClient creates a dispatcher. clientIdentifier names the calling
// application in the User-Agent header.
func NewClient(
	endpoints Endpoints, httpClient *http.Client, token TokenSource, logger *slog.Logger, clientIdentifier string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	ua := userAgentProduct
	if clientIdentifier != "" {
		ua = clientIdentifier + " " + userAgentProduct
	}

	return &Client{
		endpoints:       endpoints,
		httpClient:      httpClient,
		token:           token,
		logger:          logger,
		userAgent:       ua,
		chunkSize:       DefaultChunkSize,
		maxSingleUpload: DefaultMaxSingleUpload,
		pollInterval:    defaultPollInterval,
		sleepFunc:       timeSleep,
	}
}

// SetThrottle installs a bandwidth limiter for content-family bodies.
func (c *Client) SetThrottle(t Throttle) {
	c.throttle = t
}

// SetUploadLimits overrides the session chunk size and the size above
// which Upload switches to an upload session. Non-positive values keep
// the current setting.
func (c *Client) SetUploadLimits(chunkSize, maxSingleUpload int64) {
	if chunkSize > 0 {
		c.chunkSize = chunkSize
	}

	if maxSingleUpload > 0 {
		c.maxSingleUpload = maxSingleUpload
	}
}

// UserAgent returns the header value sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// SuppressErrorLogs demotes the error log of the next n failed calls to
// debug. The returned errors are unchanged.
func (c *Client) SuppressErrorLogs(n int) {
	if n > 0 {
		c.suppressed.Add(int64(n))
	}
}

// takeSuppression consumes one unit of the counter if any is left.
func (c *Client) takeSuppression() bool {
	for {
		n := c.suppressed.Load()
		if n <= 0 {
			return false
		}

		if c.suppressed.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// quietly runs fn with one failure's worth of log suppression. If fn logs
// no failed call the unit is handed back so it cannot swallow a later one.
func (c *Client) quietly(fn func() error) error {
	logged := c.failuresLogged.Load()

	c.SuppressErrorLogs(1)

	err := fn()
	if c.failuresLogged.Load() == logged {
		c.takeSuppression()
	}

	return err
}

// Dispatch sends one request and classifies the reply. Status 200 yields a
// Response; every other status yields an *APIError; no reply at all yields
// a *TransportError. Dispatch never retries.
func (c *Client) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := c.buildRequest(ctx, method, req)
	if err != nil {
		c.logFailure(req, method, err)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		tErr := &TransportError{Method: method, URL: redactURL(httpReq.URL), Err: err}
		c.logFailure(req, method, tErr)

		return nil, tErr
	}
	defer resp.Body.Close()

	body, err := c.readBody(ctx, req, resp.Body)
	if err != nil {
		tErr := &TransportError{Method: method, URL: redactURL(httpReq.URL), Err: fmt.Errorf("reading body: %w", err)}
		c.logFailure(req, method, tErr)

		return nil, tErr
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := newAPIError(resp.StatusCode, resp.Header.Get(headerRequestID), body)
		c.logFailure(req, method, apiErr)

		return nil, apiErr
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("endpoint", req.Endpoint.String()),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
	)

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}

	out.Value, err = c.responseValue(req, resp.Header, body)
	if err != nil {
		c.logFailure(req, method, err)
		return nil, err
	}

	return out, nil
}

// buildRequest assembles URL, headers and body for one call.
func (c *Client) buildRequest(ctx context.Context, method string, req *Request) (*http.Request, error) {
	target := c.endpoints.base(req.Endpoint) + strings.TrimPrefix(req.Path, "/")

	useQuery := req.Query || req.Endpoint == EndpointAuthorization
	if useQuery {
		if q := encodeQuery(req.Params); q != "" {
			target += "?" + q
		}
	}

	header := make(http.Header)

	if c.token != nil && !req.NoAuth {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("dropbox: obtaining token: %w", err)
		}

		header.Set("Authorization", "Bearer "+tok)
	}

	header.Set("User-Agent", c.userAgent)

	var body io.Reader

	switch {
	case useQuery:
		// Parameters already in the URL.
	case req.Endpoint == EndpointContentUpload || req.Endpoint == EndpointContentDownload:
		if req.Params != nil {
			arg, err := headerJSON(req.Params)
			if err != nil {
				return nil, fmt.Errorf("dropbox: encoding %s argument: %w", req.Path, err)
			}

			header.Set(headerAPIArg, arg)
		}

		if req.Endpoint == EndpointContentUpload {
			header.Set("Content-Type", "application/octet-stream")

			body = http.NoBody
			if len(req.Body) > 0 {
				body = bytes.NewReader(req.Body)
			}
		}
	case method != http.MethodGet:
		data, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("dropbox: encoding %s parameters: %w", req.Path, err)
		}

		header.Set("Content-Type", "application/json")
		body = bytes.NewReader(data)
	}

	for _, h := range req.Headers {
		setExtraHeader(header, h)
	}

	if len(req.Body) > 0 && c.throttle != nil && req.Endpoint == EndpointContentUpload {
		body = c.throttle.WrapReader(ctx, body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: creating request: %w", err)
	}

	httpReq.Header = header

	if req.Endpoint == EndpointContentUpload {
		// Throttled readers hide the length from net/http.
		httpReq.ContentLength = int64(len(req.Body))
	}

	return httpReq, nil
}

// setExtraHeader drops every header whose name starts with h.Key, ignoring
// case, then sets h.
func setExtraHeader(header http.Header, h Header) {
	if h.Key == "" {
		return
	}

	prefix := strings.ToLower(h.Key)

	for name := range header {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			delete(header, name)
		}
	}

	header.Set(h.Key, h.Value)
}

// readBody reads the whole response, throttled for downloads.
func (c *Client) readBody(ctx context.Context, req *Request, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer

	var w io.Writer = &buf
	if c.throttle != nil && req.Endpoint == EndpointContentDownload {
		w = c.throttle.WrapWriter(ctx, &buf)
	}

	if _, err := io.Copy(w, r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// responseValue decodes the JSON part of a successful reply.
func (c *Client) responseValue(req *Request, header http.Header, body []byte) (any, error) {
	switch req.Endpoint {
	case EndpointContentDownload:
		if req.DecodeJSON {
			return decodeJSON(body)
		}

		if res := header.Get(headerAPIResult); res != "" {
			return decodeJSON([]byte(res))
		}

		return nil, nil
	case EndpointContentUpload:
		if req.DecodeJSON {
			return decodeJSON(body)
		}

		return nil, nil
	default:
		return decodeJSON(body)
	}
}

// logFailure logs a failed call at error level unless suppressed.
func (c *Client) logFailure(req *Request, method string, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("endpoint", req.Endpoint.String()),
		slog.String("path", req.Path),
		slog.String("error", err.Error()),
	}

	c.failuresLogged.Add(1)

	if c.takeSuppression() {
		c.logger.Debug("request failed (log suppressed)", attrs...)
		return
	}

	c.logger.Error("request failed", attrs...)
}

// encodeQuery renders params as a sorted query string. Nil values are
// omitted; strings are sent verbatim; other values use their JSON form.
func encodeQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}

	vals := url.Values{}

	for k, v := range params {
		switch tv := v.(type) {
		case nil:
			continue
		case string:
			vals.Set(k, tv)
		case fmt.Stringer:
			vals.Set(k, tv.String())
		default:
			data, err := json.Marshal(tv)
			if err != nil {
				vals.Set(k, fmt.Sprint(tv))
				continue
			}

			vals.Set(k, string(data))
		}
	}

	return vals.Encode()
}

// headerJSON encodes v for an HTTP header: no HTML escaping, and every
// non-ASCII rune written as a \u escape so the header stays 7-bit clean.
func headerJSON(v any) (string, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return "", err
	}

	raw := strings.TrimSuffix(buf.String(), "\n")

	var sb strings.Builder
	sb.Grow(len(raw))

	for _, r := range raw {
		if r < 0x80 {
			sb.WriteRune(r)
			continue
		}

		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, hi, lo)

			continue
		}

		fmt.Fprintf(&sb, `\u%04x`, r)
	}

	return sb.String(), nil
}

// redactURL drops the query string, which may carry OAuth state.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	clean := *u
	clean.RawQuery = ""

	return clean.String()
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
