package natsbridge

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

var ErrBadMessage = errors.ValidationError("malformed bridge message").Build()

type stepMessage struct {
	Count *int64 `json:"count"`
}

type orientationMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// VibrateCommand is sent on <prefix>.device.vibrate.
type VibrateCommand struct {
	Action    string  `json:"action"` // start | stop
	PatternMS []int64 `json:"pattern_ms,omitempty"`
	Repeat    bool    `json:"repeat,omitempty"`
}

// RingingCommand is sent on <prefix>.device.ringing.
type RingingCommand struct {
	Action   string `json:"action"` // show | clear
	AlarmID  int64  `json:"alarm_id"`
	Label    string `json:"label,omitempty"`
	Time     string `json:"time,omitempty"`
	TaskKind string `json:"task_kind,omitempty"`
}

type triggerMessage struct {
	AlarmID      int64     `json:"alarm_id"`
	ScheduledFor time.Time `json:"scheduled_for,omitzero"`
}

type visibilityMessage struct {
	Visible bool `json:"visible"`
}

// NextMessage is published on <prefix>.next. A zero TriggerAt means no alarm is pending.
type NextMessage struct {
	AlarmID   int64     `json:"alarm_id,omitempty"`
	TriggerAt time.Time `json:"trigger_at,omitzero"`
}

// EventMessage wraps a lifecycle event on <prefix>.events.
type EventMessage struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

func decodeSteps(data []byte) (platform.StepSample, error) {
	var m stepMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return platform.StepSample{}, ErrBadMessage.Wrap(err)
	}
	if m.Count == nil || *m.Count < 0 {
		return platform.StepSample{}, ErrBadMessage.WithContext("field", "count")
	}
	return platform.StepSample{Count: *m.Count}, nil
}

func decodeOrientation(data []byte) (platform.OrientationSample, error) {
	var m orientationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return platform.OrientationSample{}, ErrBadMessage.Wrap(err)
	}
	return platform.OrientationSample{X: m.X, Y: m.Y, Z: m.Z}, nil
}

func decodeTrigger(data []byte) (platform.Trigger, error) {
	var m triggerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return platform.Trigger{}, ErrBadMessage.Wrap(err)
	}
	if m.AlarmID <= 0 {
		return platform.Trigger{}, ErrBadMessage.WithContext("field", "alarm_id")
	}
	return platform.Trigger{AlarmID: m.AlarmID, ScheduledFor: m.ScheduledFor}, nil
}

func decodeVisibility(data []byte) (bool, error) {
	var m visibilityMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return false, ErrBadMessage.Wrap(err)
	}
	return m.Visible, nil
}

func vibrateStart(p platform.VibrationPattern, repeat bool) VibrateCommand {
	ms := make([]int64, len(p))
	for i, d := range p {
		ms[i] = d.Milliseconds()
	}
	return VibrateCommand{Action: "start", PatternMS: ms, Repeat: repeat}
}
