package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants. Uploads are capped at 150 MiB per request.
const (
	minChunkBytes      = 1 << 20
	maxChunkBytes      = 150 << 20
	minSingleUpload    = 1
	maxSingleUpload    = maxChunkBytes
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
	minLongpollTimeout = 30 * time.Second
	maxLongpollTimeout = 480 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateApp(&cfg.App)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateAPI(&cfg.API)...)

	return errors.Join(errs...)
}

func validateApp(a *AppConfig) []error {
	var errs []error

	if a.ClientIdentifier == "" {
		errs = append(errs, errors.New("client_identifier: must not be empty"))
	}

	if a.RedirectURI != "" {
		u, err := url.Parse(a.RedirectURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("redirect_uri: must be an absolute URL, got %q", a.RedirectURI))
		}
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	errs = append(errs, validateSizeRange("chunk_size", t.ChunkSize, minChunkBytes, maxChunkBytes)...)
	errs = append(errs, validateSizeRange("max_single_upload", t.MaxSingleUpload, minSingleUpload, maxSingleUpload)...)

	if _, err := ParseRate(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	return errs
}

func validateSizeRange(field, value string, lo, hi int64) []error {
	n, err := ParseSize(value)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if n < lo || n > hi {
		return []error{fmt.Errorf("%s: must be between %d and %d bytes, got %s", field, lo, hi, value)}
	}

	return nil
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateAPI(a *APIConfig) []error {
	if err := validateDuration("longpoll_timeout", a.LongpollTimeout, minLongpollTimeout); err != nil {
		return []error{err}
	}

	d, _ := time.ParseDuration(a.LongpollTimeout)
	if d > maxLongpollTimeout {
		return []error{fmt.Errorf("longpoll_timeout: must be <= %s, got %s", maxLongpollTimeout, d)}
	}

	return nil
}
