package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.AppKey != "" {
		cfg.App.AppKey = env.AppKey
	}

	if env.AppSecret != "" {
		cfg.App.AppSecret = env.AppSecret
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	// Overrides bypass the file-level Validate call, so check again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath, env.AccessToken)
}

// resolve parses the validated string fields into their typed forms.
func resolve(cfg *Config, cfgPath, accessToken string) (*Resolved, error) {
	r := &Resolved{
		Config:      *cfg,
		ConfigPath:  cfgPath,
		TokenPath:   DefaultTokenPath(),
		AccessToken: accessToken,
	}

	var err error

	if r.ChunkBytes, err = ParseSize(cfg.Transfers.ChunkSize); err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	if r.MaxSingleBytes, err = ParseSize(cfg.Transfers.MaxSingleUpload); err != nil {
		return nil, fmt.Errorf("max_single_upload: %w", err)
	}

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"connect_timeout", cfg.Network.ConnectTimeout, &r.ConnectTimeout},
		{"data_timeout", cfg.Network.DataTimeout, &r.DataTimeout},
		{"longpoll_timeout", cfg.API.LongpollTimeout, &r.LongpollTimeout},
	}

	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.value); err != nil {
			return nil, fmt.Errorf("%s: %w", d.field, err)
		}
	}

	return r, nil
}
