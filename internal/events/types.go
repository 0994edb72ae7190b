package events

import "time"

// Event is implemented by every lifecycle event so relays can subscribe once.
type Event interface {
	EventName() string
}

// SessionStarted is published once a ringing session has resolved its alarm and gone ACTIVE.
type SessionStarted struct {
	SessionID string    `json:"session_id"`
	AlarmID   int64     `json:"alarm_id"`
	TaskKind  string    `json:"task_kind"`
	At        time.Time `json:"at"`
}

// SessionEnded is published after sound and vibration were stopped.
type SessionEnded struct {
	SessionID string    `json:"session_id"`
	AlarmID   int64     `json:"alarm_id"`
	Outcome   string    `json:"outcome"`
	At        time.Time `json:"at"`
}

// DispatchAborted reports a trigger that did not start a session.
type DispatchAborted struct {
	AlarmID int64     `json:"alarm_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// AlarmsChanged is published by the registry after a mutation was re-synced.
type AlarmsChanged struct {
	AlarmID int64     `json:"alarm_id"`
	Op      string    `json:"op"`
	At      time.Time `json:"at"`
}

func (SessionStarted) EventName() string  { return "session.started" }
func (SessionEnded) EventName() string    { return "session.ended" }
func (DispatchAborted) EventName() string { return "dispatch.aborted" }
func (AlarmsChanged) EventName() string   { return "alarms.changed" }
