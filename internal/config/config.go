package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Dir          = ".wsport"
	ConfigFile   = "config.yaml"
	StateFile    = "last_run.json"
	DefaultEnv   = ".env"
	SettingsVers = "1"
)

// Settings holds the non-secret knobs of a run. Everything has a default, so
// the settings file is optional.
type Settings struct {
	Version     string      `yaml:"version"`
	Portal      Portal      `yaml:"portal"`
	Stack       Stack       `yaml:"stack"`
	Diagnostics Diagnostics `yaml:"diagnostics"`
}

// Portal describes the VPN account pages and how patiently to drive them.
type Portal struct {
	LoginURL          string   `yaml:"login_url"`
	PortURL           string   `yaml:"port_url"`
	Headless          bool     `yaml:"headless"`
	ChallengeDetector string   `yaml:"challenge_detector"`
	ChallengeMarkers  []string `yaml:"challenge_markers,omitempty"`
	Timeouts          Timeouts `yaml:"timeouts"`
}

// Timeouts bound each browser wait. Settle is the only fixed sleep.
type Timeouts struct {
	Settle    time.Duration `yaml:"settle"`
	Detect    time.Duration `yaml:"detect"`
	Challenge time.Duration `yaml:"challenge"`
	Step      time.Duration `yaml:"step"`
	Page      time.Duration `yaml:"page"`
	Poll      time.Duration `yaml:"poll"`
}

// Stack is the docker compose stack that carries the forwarded port.
type Stack struct {
	EnvFile       string        `yaml:"env_file"`
	TargetKey     string        `yaml:"target_key"`
	Services      []string      `yaml:"services"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// Diagnostics are where screenshots and logs go.
type Diagnostics struct {
	ScreenshotDir string `yaml:"screenshot_dir"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
}

// Detector names accepted by portal.challenge_detector.
const (
	DetectorLoginField = "login-field"
	DetectorPageSource = "page-source"
	DetectorAny        = "any"
)

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsVers,
		Portal: Portal{
			LoginURL:          "https://windscribe.com/login",
			PortURL:           "https://windscribe.com/myaccount#porteph",
			ChallengeDetector: DetectorAny,
			ChallengeMarkers:  []string{"challenges.cloudflare.com", "Just a moment..."},
			Timeouts: Timeouts{
				Settle:    5 * time.Second,
				Detect:    10 * time.Second,
				Challenge: 45 * time.Second,
				Step:      20 * time.Second,
				Page:      15 * time.Second,
				Poll:      250 * time.Millisecond,
			},
		},
		Stack: Stack{
			EnvFile:       DefaultEnv,
			TargetKey:     "FIREWALL_VPN_INPUT_PORTS",
			Services:      []string{"gluetun", "qbittorrent", "prowlarr"},
			PollInterval:  5 * time.Second,
			HealthTimeout: 60 * time.Second,
		},
		Diagnostics: Diagnostics{
			ScreenshotDir: "img",
			LogFile:       "windscribe_port_manager.log",
			LogLevel:      "info",
		},
	}
}

// LoadSettings reads the settings file at path on top of the defaults.
// A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

// Save writes settings to .wsport/config.yaml relative to projectDir.
func Save(projectDir string, s *Settings) error {
	dir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return os.WriteFile(SettingsPath(projectDir), data, 0o644)
}

// SettingsPath returns the default settings file path for projectDir.
func SettingsPath(projectDir string) string {
	return filepath.Join(projectDir, Dir, ConfigFile)
}

// Exists returns true if .wsport/config.yaml exists.
func Exists(projectDir string) bool {
	_, err := os.Stat(SettingsPath(projectDir))
	return err == nil
}
