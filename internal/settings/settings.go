// Package settings holds the user preferences read when an alarm rings.
package settings

import (
	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/task"
)

// Settings are user preferences. Zero or out-of-range values are replaced by Normalize.
type Settings struct {
	VibrationEnabled *bool          `yaml:"vibration_enabled,omitempty" json:"vibration_enabled"`
	StepTarget       int            `yaml:"step_target,omitempty" json:"step_target"`
	HoldSeconds      int            `yaml:"hold_seconds,omitempty" json:"hold_seconds"`
	DelaySeconds     int            `yaml:"delay_seconds,omitempty" json:"delay_seconds"`
	SnoozeMinutes    int            `yaml:"snooze_minutes,omitempty" json:"snooze_minutes"`
	MaxSnoozeCount   int            `yaml:"max_snooze_count,omitempty" json:"max_snooze_count"`
	DefaultTaskKind  alarm.TaskKind `yaml:"default_task_kind,omitempty" json:"default_task_kind"`
	DefaultSound     string         `yaml:"default_sound,omitempty" json:"default_sound,omitempty"`
}

type bounds struct{ def, lo, hi int }

var (
	stepBounds   = bounds{30, 10, 100}
	holdBounds   = bounds{20, 10, 60}
	delayBounds  = bounds{15, 5, 60}
	snoozeBounds = bounds{5, 1, 30}
	maxSnooze    = bounds{3, 1, 10}
)

func (b bounds) apply(v int) int {
	if v == 0 {
		return b.def
	}
	return min(max(v, b.lo), b.hi)
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{}.Normalize()
}

// Normalize fills missing values with defaults and clamps the rest into range.
func (s Settings) Normalize() Settings {
	if s.VibrationEnabled == nil {
		on := true
		s.VibrationEnabled = &on
	}
	s.StepTarget = stepBounds.apply(s.StepTarget)
	s.HoldSeconds = holdBounds.apply(s.HoldSeconds)
	s.DelaySeconds = delayBounds.apply(s.DelaySeconds)
	s.SnoozeMinutes = snoozeBounds.apply(s.SnoozeMinutes)
	s.MaxSnoozeCount = maxSnooze.apply(s.MaxSnoozeCount)
	if !s.DefaultTaskKind.Valid() {
		s.DefaultTaskKind = alarm.TaskSteps
	}
	return s
}

// Vibration reports the vibration preference, defaulting to on.
func (s Settings) Vibration() bool {
	return s.VibrationEnabled == nil || *s.VibrationEnabled
}

// Targets converts the task thresholds for the task engine.
func (s Settings) Targets() task.Targets {
	return task.Targets{Steps: s.StepTarget, HoldSeconds: s.HoldSeconds, DelaySeconds: s.DelaySeconds}
}

// Provider is the read side used at ring time.
type Provider interface {
	Current() Settings
}

// Static is a fixed Provider.
type Static Settings

func (s Static) Current() Settings { return Settings(s).Normalize() }
