package api

import (
	"time"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/dispatch"
	"git.home.luguber.info/inful/alarmd/internal/session"
)

// AlarmRequest is the body of POST /api/alarms and PUT /api/alarms/{id}.
// On update, a nil Enabled keeps the stored value.
type AlarmRequest struct {
	Hour       int            `json:"hour"`
	Minute     int            `json:"minute"`
	Enabled    *bool          `json:"enabled,omitempty"`
	RepeatDays alarm.Weekdays `json:"repeat_days"`
	TaskKind   alarm.TaskKind `json:"task_kind,omitempty"`
	SoundRef   string         `json:"sound_ref,omitempty"`
	Label      string         `json:"label,omitempty"`
}

// apply overlays the request onto base.
func (r AlarmRequest) apply(base alarm.Definition) alarm.Definition {
	base.Hour = r.Hour
	base.Minute = r.Minute
	base.RepeatDays = r.RepeatDays
	base.SoundRef = r.SoundRef
	base.Label = r.Label
	if r.TaskKind != "" {
		base.TaskKind = r.TaskKind
	}
	if r.Enabled != nil {
		base.Enabled = *r.Enabled
	}
	return base
}

// AlarmView is an alarm as listed by GET /api/alarms.
type AlarmView struct {
	alarm.Definition
	Repeat      string    `json:"repeat"`
	NextTrigger time.Time `json:"next_trigger,omitzero"`
	TimeUntil   string    `json:"time_until,omitempty"`
}

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	session.Snapshot
	Dispatcher dispatch.State `json:"dispatcher"`
}

type SnoozeResponse struct {
	AlarmID int64     `json:"alarm_id"`
	Until   time.Time `json:"until"`
}

type TapResponse struct {
	Remaining int  `json:"remaining"`
	Stopped   bool `json:"stopped"`
}

// TriggerResponse acknowledges POST /api/triggers/{id}. The trigger is dispatched asynchronously.
type TriggerResponse struct {
	AlarmID int64 `json:"alarm_id"`
	Queued  bool  `json:"queued"`
	Pending int   `json:"pending"`
}

// BootReport summarizes the boot-completed handling.
type BootReport struct {
	Rescheduled int      `json:"rescheduled"`
	Pruned      int64    `json:"pruned"`
	Errors      []string `json:"errors,omitempty"`
}

// NextResponse is the next-alarm indicator.
type NextResponse struct {
	AlarmID   int64     `json:"alarm_id,omitempty"`
	TriggerAt time.Time `json:"trigger_at,omitzero"`
	TimeUntil string    `json:"time_until,omitempty"`
}

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a single component probe.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}
