// Package session runs the ringing alarm: sound, vibration, the gating task and the
// dismiss, snooze and emergency-stop transitions.
package session

import (
	"context"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/task"
)

// State is the ringing session lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateLoading   State = "LOADING"
	StateActive    State = "ACTIVE"
	StateDismissed State = "DISMISSED"
	StateSnoozed   State = "SNOOZED"
	// StateStopped ends a session that was neither dismissed nor snoozed:
	// replaced by another alarm or torn down at shutdown.
	StateStopped State = "STOPPED"
)

func (s State) Terminal() bool {
	return s == StateDismissed || s == StateSnoozed || s == StateStopped
}

// Outcome records why a session ended.
type Outcome string

const (
	OutcomeDismissed Outcome = "dismissed"
	OutcomeEmergency Outcome = "emergency"
	OutcomeSnoozed   Outcome = "snoozed"
	OutcomeReplaced  Outcome = "replaced"
	OutcomeShutdown  Outcome = "shutdown"
)

func (o Outcome) state() State {
	switch o {
	case OutcomeDismissed, OutcomeEmergency:
		return StateDismissed
	case OutcomeSnoozed:
		return StateSnoozed
	default:
		return StateStopped
	}
}

var (
	ErrNoActiveSession    = errors.SessionError("no alarm is ringing").Build()
	ErrTaskIncomplete     = errors.SessionError("dismiss task not complete").Build()
	ErrSnoozeLimitReached = errors.LimitError("snooze limit reached").Build()
)

// Snapshot is the observable view of the session manager.
type Snapshot struct {
	State         State          `json:"state"`
	SessionID     string         `json:"session_id,omitempty"`
	AlarmID       int64          `json:"alarm_id,omitempty"`
	Label         string         `json:"label,omitempty"`
	Time          string         `json:"time,omitempty"`
	TaskKind      alarm.TaskKind `json:"task_kind,omitempty"`
	Progress      task.Progress  `json:"progress"`
	EmergencyTaps int            `json:"emergency_taps,omitempty"`
	SnoozeCount   int            `json:"snooze_count,omitempty"`
	Silent        bool           `json:"silent,omitempty"`
	StartedAt     time.Time      `json:"started_at,omitzero"`
	LastOutcome   Outcome        `json:"last_outcome,omitempty"`
}

// Active reports whether an alarm is ringing.
func (s Snapshot) Active() bool {
	return s.State == StateLoading || s.State == StateActive
}

// session is the runtime for one ringing alarm. All fields are guarded by Manager.mu.
type session struct {
	id        string
	def       alarm.Definition
	trigger   platform.Trigger
	state     State
	startedAt time.Time

	playback  platform.Playback
	vibrating bool
	progress  task.Progress
	emergency *EmergencyStop

	cancelTask context.CancelFunc
	taskDone   chan struct{}
}
