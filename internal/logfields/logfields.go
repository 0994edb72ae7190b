package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyAlarmID      = "alarm_id"
	KeyTriggerAt    = "trigger_at"
	KeyTaskKind     = "task_kind"
	KeySessionID    = "session_id"
	KeySessionState = "session_state"
	KeyOutcome      = "outcome"
	KeyDispatchID   = "dispatch_id"
	KeySubject      = "subject"
	KeyPath         = "path"
	KeyDurationMS   = "duration_ms"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func AlarmID(id int64) slog.Attr         { return slog.Int64(KeyAlarmID, id) }
func TriggerAt(t time.Time) slog.Attr    { return slog.String(KeyTriggerAt, t.Format(time.RFC3339)) }
func TaskKind(k string) slog.Attr        { return slog.String(KeyTaskKind, k) }
func SessionID(id string) slog.Attr      { return slog.String(KeySessionID, id) }
func SessionState(s string) slog.Attr    { return slog.String(KeySessionState, s) }
func Outcome(o string) slog.Attr         { return slog.String(KeyOutcome, o) }
func DispatchID(id string) slog.Attr     { return slog.String(KeyDispatchID, id) }
func Subject(s string) slog.Attr         { return slog.String(KeySubject, s) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Duration(d time.Duration) slog.Attr { return slog.Float64(KeyDurationMS, float64(d.Milliseconds())) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
