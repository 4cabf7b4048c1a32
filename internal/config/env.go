package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "DROPBOX_CLIENT_CONFIG"
	EnvAppKey      = "DROPBOX_APP_KEY"
	EnvAppSecret   = "DROPBOX_APP_SECRET"
	EnvAccessToken = "DROPBOX_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // DROPBOX_CLIENT_CONFIG: override config file path
	AppKey      string // DROPBOX_APP_KEY
	AppSecret   string // DROPBOX_APP_SECRET
	AccessToken string // DROPBOX_ACCESS_TOKEN: use this token instead of the token file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		AppKey:      os.Getenv(EnvAppKey),
		AppSecret:   os.Getenv(EnvAppSecret),
		AccessToken: os.Getenv(EnvAccessToken),
	}
}
