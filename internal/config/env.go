package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration marks any configuration problem that must stop a run
// before a browser or network action happens.
var ErrConfiguration = errors.New("configuration error")

// MissingError lists the required keys that were absent or empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "Missing required environment variables: " + strings.Join(e.Keys, ", ")
}

func (e *MissingError) Unwrap() error { return ErrConfiguration }

// Credentials are read from the environment or a .env file.
type Credentials struct {
	WSUsername  string `mapstructure:"ws_username" validate:"required"`
	WSPassword  string `mapstructure:"ws_password" validate:"required"`
	QBTUsername string `mapstructure:"qbt_username" validate:"required"`
	QBTPassword string `mapstructure:"qbt_password" validate:"required"`
	QBTHost     string `mapstructure:"qbt_host" validate:"required"`
	QBTPort     string `mapstructure:"qbt_port" validate:"required"`

	WebhookURL string `mapstructure:"discord_webhook_url"`
	DockerPath string `mapstructure:"docker_path"`
}

// credentialKeys is the order keys are reported in when missing.
var credentialKeys = []string{
	"ws_username", "ws_password",
	"qbt_username", "qbt_password", "qbt_host", "qbt_port",
	"discord_webhook_url", "docker_path",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	return v
}

// loadCredentials reads envFile (if present) and overlays the process
// environment. Both the lowercase and uppercase spelling of each key work.
func loadCredentials(envFile string) (Credentials, error) {
	var c Credentials

	v := viper.New()
	for _, key := range credentialKeys {
		if err := v.BindEnv(key, key, strings.ToUpper(key)); err != nil {
			return c, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return c, fmt.Errorf("%w: reading %s: %v", ErrConfiguration, envFile, err)
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("%w: decoding environment: %v", ErrConfiguration, err)
	}
	c.trim()
	return c, nil
}

func (c *Credentials) trim() {
	for _, p := range []*string{
		&c.WSUsername, &c.WSPassword, &c.QBTUsername, &c.QBTPassword,
		&c.QBTHost, &c.QBTPort, &c.WebhookURL, &c.DockerPath,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// Validate reports every missing required key at once.
func (c Credentials) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	missing := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		missing[fe.Field()] = true
	}
	var keys []string
	for _, key := range credentialKeys {
		if missing[key] {
			keys = append(keys, key)
		}
	}
	return &MissingError{Keys: keys}
}
