// Package alarm holds the alarm definition model shared by the store, the scheduler
// and the ringing session.
package alarm

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/foundation/normalization"
)

// TaskKind selects the dismissal task that gates a ringing alarm.
type TaskKind string

const (
	TaskSteps        TaskKind = "STEPS"
	TaskHoldVertical TaskKind = "HOLD_VERTICAL"
	TaskTimeDelay    TaskKind = "TIME_DELAY"
)

func (k TaskKind) Valid() bool {
	switch k {
	case TaskSteps, TaskHoldVertical, TaskTimeDelay:
		return true
	}
	return false
}

var taskKindNormalizer = normalization.NewNormalizer(map[string]TaskKind{
	"steps":         TaskSteps,
	"hold":          TaskHoldVertical,
	"hold_vertical": TaskHoldVertical,
	"hold-vertical": TaskHoldVertical,
	"delay":         TaskTimeDelay,
	"time_delay":    TaskTimeDelay,
	"time-delay":    TaskTimeDelay,
}, "")

// ParseTaskKind accepts the canonical names in any case as well as the short CLI spellings.
func ParseTaskKind(s string) (TaskKind, error) {
	k, err := taskKindNormalizer.NormalizeWithError(s)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryValidation, fmt.Sprintf("unknown task kind %q", s)).
			WithContext("valid", strings.Join(taskKindNormalizer.ValidKeys(), ", ")).
			Build()
	}
	return k, nil
}

// Definition is one persisted alarm.
type Definition struct {
	ID         int64     `json:"id" yaml:"id"`
	Hour       int       `json:"hour" yaml:"hour"`
	Minute     int       `json:"minute" yaml:"minute"`
	Enabled    bool      `json:"enabled" yaml:"enabled"`
	RepeatDays Weekdays  `json:"repeat_days" yaml:"repeat_days"`
	TaskKind   TaskKind  `json:"task_kind" yaml:"task_kind"`
	SoundRef   string    `json:"sound_ref,omitempty" yaml:"sound_ref,omitempty"`
	Label      string    `json:"label,omitempty" yaml:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Repeating reports whether the alarm re-fires on a set of weekdays.
func (d Definition) Repeating() bool { return !d.RepeatDays.Empty() }

// TimeString renders the wall-clock time as HH:MM.
func (d Definition) TimeString() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// ErrInvalidDefinition is returned by Validate; the offending field is in the error context.
var ErrInvalidDefinition = errors.ValidationError("invalid alarm definition").Build()

// Validate checks the ranges the scheduler relies on.
func (d Definition) Validate() error {
	switch {
	case d.Hour < 0 || d.Hour > 23:
		return ErrInvalidDefinition.WithContext("hour", d.Hour)
	case d.Minute < 0 || d.Minute > 59:
		return ErrInvalidDefinition.WithContext("minute", d.Minute)
	case d.RepeatDays&^EveryDay != 0:
		return ErrInvalidDefinition.WithContext("repeat_days", uint8(d.RepeatDays))
	case !d.TaskKind.Valid():
		return ErrInvalidDefinition.WithContext("task_kind", string(d.TaskKind))
	}
	return nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, errors.ValidationError(fmt.Sprintf("invalid time %q, want HH:MM", s)).Build()
	}
	return t.Hour(), t.Minute(), nil
}
