package config

import (
	"fmt"
	"path/filepath"
)

// Config is everything a run needs. It is built once by Load and not
// modified afterwards.
type Config struct {
	Credentials
	Settings Settings
}

// Features are the optional capabilities switched on by configuration.
type Features struct {
	Stack  bool // docker_path set: patch .env and restart the compose stack
	Notify bool // discord_webhook_url set
}

// Features derives the capability set from the loaded values.
func (c *Config) Features() Features {
	if c == nil {
		return Features{}
	}
	return Features{
		Stack:  c.DockerPath != "",
		Notify: c.WebhookURL != "",
	}
}

// StackEnvPath returns the compose .env file that carries the forwarded port.
func (c *Config) StackEnvPath() string {
	name := c.Settings.Stack.EnvFile
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DockerPath, name)
}

// Options tells Load where to look.
type Options struct {
	EnvFile      string
	SettingsFile string
}

// Load reads settings and credentials and validates them. The returned
// Config is non-nil even when err is non-nil so that whatever could be read
// (the webhook in particular) is still usable for reporting the failure.
func Load(opts Options) (*Config, error) {
	cfg := &Config{Settings: DefaultSettings()}

	var settingsErr error
	if opts.SettingsFile != "" {
		s, err := LoadSettings(opts.SettingsFile)
		if err != nil {
			settingsErr = fmt.Errorf("%w: %v", ErrConfiguration, err)
		} else {
			cfg.Settings = s
		}
	}

	creds, err := loadCredentials(opts.EnvFile)
	cfg.Credentials = creds
	if err != nil {
		return cfg, err
	}
	if settingsErr != nil {
		return cfg, settingsErr
	}
	if err := creds.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
