// Package platform declares the OS primitives the alarm core depends on.
//
// Concrete backends live in sub-packages: gocronwake (exact wake-ups), otoaudio
// (sound) and natsbridge (sensors, vibration and presentation on a companion device).
package platform

import (
	"context"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

var (
	// ErrPermissionDenied is raised by Wakeups.ScheduleExactAt when exact wake-ups are not authorized.
	ErrPermissionDenied = errors.PermissionError("exact wake-up not permitted").Build()

	// ErrUnavailable reports a missing hardware capability.
	ErrUnavailable = errors.PlatformError("capability unavailable").Warning().Build()
)

// Trigger is what an exact wake-up delivers: the alarm id and the instant it was registered for.
// A zero ScheduledFor marks an ad hoc trigger that did not come from a registration.
type Trigger struct {
	AlarmID      int64     `json:"alarm_id"`
	ScheduledFor time.Time `json:"scheduled_for,omitzero"`
}

// TriggerFunc receives wake-ups. Implementations must return quickly.
type TriggerFunc func(Trigger)

// Wakeups is the exact wake-up primitive. Registrations are keyed by alarm id and a
// new registration for an id replaces the previous one.
type Wakeups interface {
	ScheduleExactAt(ctx context.Context, id int64, at time.Time) error
	Cancel(ctx context.Context, id int64) error
	CanScheduleExact() bool
}

// Playback is a running sound. Stop is idempotent and returns once the sound is silent.
type Playback interface {
	Stop()
}

// SoundPlayer starts looping playback. An empty ref selects the default alarm sound.
type SoundPlayer interface {
	PlayLooping(ref string) (Playback, error)
}

// VibrationPattern alternates off and on durations, starting with an off delay.
type VibrationPattern []time.Duration

// AlarmVibration is the repeating waveform used while ringing.
var AlarmVibration = VibrationPattern{0, time.Second, time.Second, time.Second, time.Second}

// Vibrator drives the vibration motor.
type Vibrator interface {
	Vibrate(pattern VibrationPattern, repeat bool) error
	Stop() error
}

// RingingNotice is what the presenter shows while an alarm rings.
type RingingNotice struct {
	AlarmID  int64  `json:"alarm_id"`
	Label    string `json:"label,omitempty"`
	Time     string `json:"time"`
	TaskKind string `json:"task_kind"`
}

// Presenter owns the user-facing ringing surface.
type Presenter interface {
	// ShowRinging brings the ringing surface to the foreground over the lock screen
	// and posts the persistent ringing indicator.
	ShowRinging(n RingingNotice) error
	// ClearRinging removes the indicator and the surface.
	ClearRinging(alarmID int64) error
}

// Subscription is a live sensor registration. Close unregisters the listener and is idempotent.
type Subscription interface {
	Close() error
}

// Source is a hardware sample stream.
type Source[T any] interface {
	Available() bool
	Subscribe(fn func(T)) (Subscription, error)
}

// StepSample is a cumulative hardware step counter reading.
type StepSample struct {
	Count int64
}

// OrientationSample is one accelerometer reading in m/s², device axes.
type OrientationSample struct {
	X, Y, Z float64
}

// Sensors groups the sources the task engine can use.
type Sensors struct {
	Steps       Source[StepSample]
	Orientation Source[OrientationSample]
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }
