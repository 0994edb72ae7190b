package config

import (
	"net"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Validate checks a configuration after defaults were applied.
func Validate(cfg *Config) error {
	var errs []error
	invalid := func(key, reason string, value any) {
		errs = append(errs, ErrConfigInvalid.WithContext("key", key).WithContext("reason", reason).WithContext("value", value))
	}

	if _, _, err := net.SplitHostPort(cfg.HTTP.Listen); err != nil {
		invalid("http.listen", "expected host:port", cfg.HTTP.Listen)
	}
	if cfg.NATS.Enabled {
		u, err := url.Parse(cfg.NATS.URL)
		if err != nil || u.Host == "" {
			invalid("nats.url", "expected nats://host:port", cfg.NATS.URL)
		}
	}
	if strings.ContainsAny(cfg.NATS.SubjectPrefix, " \t*>") || strings.HasSuffix(cfg.NATS.SubjectPrefix, ".") {
		invalid("nats.subject_prefix", "must be a literal subject without wildcards", cfg.NATS.SubjectPrefix)
	}
	if cfg.NATS.Retry.InitialDelay > cfg.NATS.Retry.MaxDelay {
		invalid("nats.retry.initial_delay", "must not exceed max_delay", cfg.NATS.Retry.InitialDelay.String())
	}
	return errors.Join(errs...)
}
