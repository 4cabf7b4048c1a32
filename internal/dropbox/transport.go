package dropbox

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// TransportOptions configures the HTTP client built by NewHTTPClient.
type TransportOptions struct {
	// InsecureSkipVerify disables TLS certificate verification. Only for
	// debugging against intercepting proxies.
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	// ResponseHeaderTimeout bounds the wait for response headers after the
	// request is written. Longpoll calls need this to exceed their wait.
	ResponseHeaderTimeout time.Duration
	// Timeout bounds a whole request including reading the body. Zero means
	// no limit.
	Timeout     time.Duration
	ForceHTTP11 bool
}

// NewHTTPClient returns an *http.Client for the dispatcher. Each call
// gets its own transport so TLS settings never leak into http.DefaultClient.
func NewHTTPClient(opts TransportOptions) *http.Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = &http.Transport{}
	}

	tr := base.Clone()

	if opts.ConnectTimeout > 0 {
		tr.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext
		tr.TLSHandshakeTimeout = opts.ConnectTimeout
	}

	if opts.ResponseHeaderTimeout > 0 {
		tr.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
	}

	if opts.InsecureSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in debugging switch
	}

	if opts.ForceHTTP11 {
		// A non-nil empty map disables the HTTP/2 upgrade.
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		tr.ForceAttemptHTTP2 = false
	}

	return &http.Client{
		Transport: tr,
		Timeout:   opts.Timeout,
	}
}

// userAgentTransport stamps User-Agent on requests built outside the
// dispatcher, such as the OAuth2 token exchange.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)

	return t.base.RoundTrip(clone)
}

// withUserAgent wraps hc so every request carries ua.
func withUserAgent(hc *http.Client, ua string) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	wrapped := *hc
	wrapped.Transport = &userAgentTransport{base: base, userAgent: ua}

	return &wrapped
}
