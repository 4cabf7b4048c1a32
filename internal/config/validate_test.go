package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty client identifier", func(c *Config) { c.App.ClientIdentifier = "" }, "client_identifier"},
		{"relative redirect", func(c *Config) { c.App.RedirectURI = "/callback" }, "redirect_uri"},
		{"chunk too small", func(c *Config) { c.Transfers.ChunkSize = "512KiB" }, "chunk_size"},
		{"chunk too large", func(c *Config) { c.Transfers.ChunkSize = "151MiB" }, "chunk_size"},
		{"chunk unparseable", func(c *Config) { c.Transfers.ChunkSize = "big" }, "chunk_size"},
		{"single upload zero", func(c *Config) { c.Transfers.MaxSingleUpload = "0" }, "max_single_upload"},
		{"single upload too large", func(c *Config) { c.Transfers.MaxSingleUpload = "1GB" }, "max_single_upload"},
		{"bad bandwidth", func(c *Config) { c.Transfers.BandwidthLimit = "fast" }, "bandwidth_limit"},
		{"connect timeout short", func(c *Config) { c.Network.ConnectTimeout = "100ms" }, "connect_timeout"},
		{"data timeout unparseable", func(c *Config) { c.Network.DataTimeout = "soon" }, "data_timeout"},
		{"log level", func(c *Config) { c.Logging.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *Config) { c.Logging.LogFormat = "xml" }, "log_format"},
		{"longpoll short", func(c *Config) { c.API.LongpollTimeout = "10s" }, "longpoll_timeout"},
		{"longpoll long", func(c *Config) { c.API.LongpollTimeout = "9m" }, "longpoll_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk min", func(c *Config) { c.Transfers.ChunkSize = "1MiB" }},
		{"chunk max", func(c *Config) { c.Transfers.ChunkSize = "150MiB" }},
		{"single upload one byte", func(c *Config) { c.Transfers.MaxSingleUpload = "1" }},
		{"longpoll min", func(c *Config) { c.API.LongpollTimeout = "30s" }},
		{"longpoll max", func(c *Config) { c.API.LongpollTimeout = "8m" }},
		{"empty redirect", func(c *Config) { c.App.RedirectURI = "" }},
		{"bandwidth rate", func(c *Config) { c.Transfers.BandwidthLimit = "2MiB/s" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.NoError(t, Validate(cfg))
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfers.ChunkSize = "1KB"
	cfg.Logging.LogFormat = "yaml"
	cfg.Network.DataTimeout = "1s"

	err := Validate(cfg)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "chunk_size")
	assert.Contains(t, msg, "log_format")
	assert.Contains(t, msg, "data_timeout")
}
