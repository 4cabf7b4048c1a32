package dropbox

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transportOf(t *testing.T, hc *http.Client) *http.Transport {
	t.Helper()

	tr, ok := hc.Transport.(*http.Transport)
	require.True(t, ok, "transport is %T", hc.Transport)

	return tr
}

func TestNewHTTPClient_AppliesOptions(t *testing.T) {
	hc := NewHTTPClient(TransportOptions{
		ConnectTimeout:        3 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
		Timeout:               time.Hour,
		InsecureSkipVerify:    true,
		ForceHTTP11:           true,
	})

	tr := transportOf(t, hc)

	assert.Equal(t, time.Hour, hc.Timeout)
	assert.Equal(t, 3*time.Second, tr.TLSHandshakeTimeout)
	assert.Equal(t, 2*time.Minute, tr.ResponseHeaderTimeout)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.NotNil(t, tr.TLSNextProto)
	assert.Empty(t, tr.TLSNextProto)
	assert.False(t, tr.ForceAttemptHTTP2)
}

func TestNewHTTPClient_ZeroOptionsKeepDefaults(t *testing.T) {
	hc := NewHTTPClient(TransportOptions{})
	tr := transportOf(t, hc)

	assert.Zero(t, hc.Timeout)
	assert.Zero(t, tr.ResponseHeaderTimeout)
	assert.NotSame(t, http.DefaultTransport, tr)

	if tr.TLSClientConfig != nil {
		assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	}
}

func TestWithUserAgent(t *testing.T) {
	var got string

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	base := NewHTTPClient(TransportOptions{})
	hc := withUserAgent(base, "dropbox-client/test")

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "overridden")

	resp, err := hc.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "dropbox-client/test", got)
	// The caller's request and client are left untouched.
	assert.Equal(t, "overridden", req.Header.Get("User-Agent"))
	assert.NotSame(t, base, hc)
	assert.IsType(t, &http.Transport{}, base.Transport)
}
