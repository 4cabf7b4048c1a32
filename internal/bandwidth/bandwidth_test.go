package bandwidth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNew_Unlimited(t *testing.T) {
	for _, limit := range []string{"0", ""} {
		l, err := New(limit, testLogger(t))
		require.NoError(t, err)
		assert.Nil(t, l, "%q means unlimited", limit)
	}
}

func TestNew_Static(t *testing.T) {
	l, err := New("1MB/s", testLogger(t))
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 2_000_000, l.limiter.Burst())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("garbage", testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bandwidth:")
}

func TestNilLimiter_PassesThrough(t *testing.T) {
	var l *Limiter

	r := strings.NewReader("abc")
	assert.Same(t, r, l.WrapReader(context.Background(), r))

	var buf bytes.Buffer
	assert.Same(t, &buf, l.WrapWriter(context.Background(), &buf))
}

func TestLimitedReader_Throttles(t *testing.T) {
	// 1 KB/s with a 2 KB burst: reading 4 KB must wait about 2 s.
	l, err := New("1KB/s", testLogger(t))
	require.NoError(t, err)

	data := bytes.Repeat([]byte("x"), 4000)

	start := time.Now()
	got, err := io.ReadAll(l.WrapReader(context.Background(), bytes.NewReader(data)))
	require.NoError(t, err)

	assert.Equal(t, data, got)
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
}

func TestLimitedWriter_CancelledContext(t *testing.T) {
	l, err := New("1KB/s", testLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer

	// The first write drains the burst, the second must wait and sees the cancel.
	w := l.WrapWriter(ctx, &buf)

	_, err = w.Write(bytes.Repeat([]byte("y"), 2000))
	if err == nil {
		_, err = w.Write([]byte("z"))
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitN_SplitsAboveBurst(t *testing.T) {
	l, err := New("1MB/s", testLogger(t))
	require.NoError(t, err)

	// 3 MB exceeds the 2 MB burst; WaitN alone would reject it.
	require.NoError(t, waitN(context.Background(), l.limiter, 3_000_000))
}
