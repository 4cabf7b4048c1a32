// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for dropbox-client. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	App       AppConfig       `toml:"app"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	API       APIConfig       `toml:"api"`
}

// AppConfig identifies the registered Dropbox app. The secret is only needed
// for the authorization code exchange and token refresh.
type AppConfig struct {
	AppKey           string `toml:"app_key"`
	AppSecret        string `toml:"app_secret"`
	ClientIdentifier string `toml:"client_identifier"`
	RedirectURI      string `toml:"redirect_uri"`
}

// TransfersConfig controls upload chunking and bandwidth.
type TransfersConfig struct {
	ChunkSize       string `toml:"chunk_size"`
	MaxSingleUpload string `toml:"max_single_upload"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
}

// NetworkConfig controls HTTP client behavior. force_http_11 is useful behind
// proxies that mishandle HTTP/2.
type NetworkConfig struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	DataTimeout        string `toml:"data_timeout"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	ForceHTTP11        bool   `toml:"force_http_11"`
}

// LoggingConfig controls log output level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// APIConfig holds remote API tunables.
type APIConfig struct {
	LongpollTimeout string `toml:"longpoll_timeout"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	LogLevel   *string // --verbose / --quiet
}

// Resolved is the fully layered configuration, with sizes and durations
// parsed, ready to build clients from.
type Resolved struct {
	Config

	ConfigPath      string
	TokenPath       string
	AccessToken     string // DROPBOX_ACCESS_TOKEN, bypasses the token file
	ChunkBytes      int64
	MaxSingleBytes  int64
	ConnectTimeout  time.Duration
	DataTimeout     time.Duration
	LongpollTimeout time.Duration
}
