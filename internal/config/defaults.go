package config

// Default values for configuration options. They are the first layer of the
// override chain and work without any config file.
const (
	defaultClientIdentifier = "dropbox-client"
	defaultRedirectURI      = "http://localhost:53682/"
	defaultChunkSize        = "50MB"
	defaultMaxSingleUpload  = "150MB"
	defaultBandwidthLimit   = "0"
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLongpollTimeout  = "30s"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		App:       defaultAppConfig(),
		Transfers: defaultTransfersConfig(),
		Network:   defaultNetworkConfig(),
		Logging:   defaultLoggingConfig(),
		API:       defaultAPIConfig(),
	}
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		ClientIdentifier: defaultClientIdentifier,
		RedirectURI:      defaultRedirectURI,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		ChunkSize:       defaultChunkSize,
		MaxSingleUpload: defaultMaxSingleUpload,
		BandwidthLimit:  defaultBandwidthLimit,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultAPIConfig() APIConfig {
	return APIConfig{LongpollTimeout: defaultLongpollTimeout}
}
