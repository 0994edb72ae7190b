// Package config loads the alarmd daemon configuration.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Config represents the daemon configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Settings SettingsConfig `yaml:"settings"`
	HTTP     HTTPConfig     `yaml:"http"`
	Wakeups  WakeupsConfig  `yaml:"wakeups"`
	Sound    SoundConfig    `yaml:"sound"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig locates the SQLite alarm store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// LedgerRetention is how long handled-trigger rows are kept. Older rows are pruned at boot.
	LedgerRetention Duration `yaml:"ledger_retention,omitempty"`
}

// SettingsConfig locates the user preference file.
type SettingsConfig struct {
	Path           string   `yaml:"path"`
	ReloadDebounce Duration `yaml:"reload_debounce,omitempty"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// WakeupsConfig configures the exact wake-up backend.
type WakeupsConfig struct {
	// ExactPermitted models the platform authorization for exact wake-ups. Unset means true.
	ExactPermitted *bool `yaml:"exact_permitted,omitempty"`
}

func (w WakeupsConfig) Permitted() bool { return w.ExactPermitted == nil || *w.ExactPermitted }

// SoundConfig configures audio playback.
type SoundConfig struct {
	Dir         string `yaml:"dir,omitempty"`          // base for relative sound refs
	DefaultPath string `yaml:"default_path,omitempty"` // WAV used when an alarm has no sound; empty = built-in tone
	Disabled    bool   `yaml:"disabled,omitempty"`     // skip opening the audio device
}

// NATSConfig configures the companion-device bridge.
type NATSConfig struct {
	Enabled       bool        `yaml:"enabled"`
	URL           string      `yaml:"url,omitempty"`
	SubjectPrefix string      `yaml:"subject_prefix,omitempty"`
	Retry         RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig describes a backoff policy.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay Duration         `yaml:"initial_delay,omitempty"`
	MaxDelay     Duration         `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries,omitempty"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

var (
	ErrConfigNotFound = errors.ConfigError("configuration file not found").Build()
	ErrConfigInvalid  = errors.ConfigError("invalid configuration").Build()
	ErrConfigExists   = errors.ConfigError("configuration file already exists").Build()
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	_ = NewDefaultApplier().ApplyDefaults(cfg)
	return cfg
}

// Load reads configPath after loading .env files, expanding ${VAR} references in the YAML
// text, applying defaults and validating the result.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, ErrConfigNotFound.WithContext("path", configPath)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrConfigInvalid.Wrap(err)
	}
	if err := NewDefaultApplier().ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ErrConfigExists.WithContext("path", configPath).WithContext("hint", "use --force to overwrite")
	}

	example := Default()
	example.NATS.URL = "nats://127.0.0.1:4222"
	example.Sound.DefaultPath = ""

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	header := "# alarmd configuration. ${VAR} references are expanded from the environment and .env files.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
