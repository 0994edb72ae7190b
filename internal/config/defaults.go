package config

import (
	"time"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Defaults for keys the user leaves out.
const (
	DefaultDatabasePath    = "./alarmd.db"
	DefaultSettingsPath    = "./settings.yaml"
	DefaultListen          = "127.0.0.1:7468"
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix   = "alarmd"
	DefaultLedgerRetention = 7 * 24 * time.Hour
	DefaultReloadDebounce  = 250 * time.Millisecond
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&StorageDefaultApplier{},
			&ServerDefaultApplier{},
			&NATSDefaultApplier{},
			&LogDefaultApplier{},
		},
	}
}

func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "applying defaults").
				WithContext("domain", applier.Domain()).
				Build()
		}
	}
	return nil
}

// StorageDefaultApplier handles database and settings file defaults.
type StorageDefaultApplier struct{}

func (StorageDefaultApplier) Domain() string { return "storage" }

func (StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.LedgerRetention <= 0 {
		cfg.Database.LedgerRetention = Duration(DefaultLedgerRetention)
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = DefaultSettingsPath
	}
	if cfg.Settings.ReloadDebounce <= 0 {
		cfg.Settings.ReloadDebounce = Duration(DefaultReloadDebounce)
	}
	return nil
}

// ServerDefaultApplier handles the HTTP API and wake-up defaults.
type ServerDefaultApplier struct{}

func (ServerDefaultApplier) Domain() string { return "server" }

func (ServerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	if cfg.Wakeups.ExactPermitted == nil {
		permitted := true
		cfg.Wakeups.ExactPermitted = &permitted
	}
	return nil
}

// NATSDefaultApplier handles the companion bridge. Defaults are applied even when the
// bridge is disabled so enabling it only takes one key.
type NATSDefaultApplier struct{}

func (NATSDefaultApplier) Domain() string { return "nats" }

func (NATSDefaultApplier) ApplyDefaults(cfg *Config) error {
	n := &cfg.NATS
	if n.URL == "" {
		n.URL = DefaultNATSURL
	}
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = DefaultSubjectPrefix
	}
	if n.Retry.Backoff == "" {
		n.Retry.Backoff = RetryBackoffExponential
	} else if mode := NormalizeRetryBackoff(string(n.Retry.Backoff)); mode != "" {
		n.Retry.Backoff = mode
	} else {
		n.Retry.Backoff = RetryBackoffExponential
	}
	if n.Retry.InitialDelay <= 0 {
		n.Retry.InitialDelay = Duration(500 * time.Millisecond)
	}
	if n.Retry.MaxDelay <= 0 {
		n.Retry.MaxDelay = Duration(10 * time.Second)
	}
	if n.Retry.MaxRetries < 0 {
		n.Retry.MaxRetries = 0
	}
	if n.Retry.MaxRetries == 0 {
		n.Retry.MaxRetries = 5
	}
	return nil
}

// LogDefaultApplier normalizes the log settings.
type LogDefaultApplier struct{}

func (LogDefaultApplier) Domain() string { return "log" }

func (LogDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Log.Level = NormalizeLogLevel(string(cfg.Log.Level))
	cfg.Log.Format = NormalizeLogFormat(string(cfg.Log.Format))
	return nil
}
