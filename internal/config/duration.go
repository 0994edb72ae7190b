package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

// Duration is a time.Duration written as a Go duration string ("30s", "168h") in YAML.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.WrapError(err, errors.CategoryValidation, "invalid duration").
			WithContext("value", raw).
			WithContext("line", value.Line).
			Build()
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if d == 0 {
		return "", nil
	}
	return d.String(), nil
}
