package metrics

import "time"

// ResultLabel enumerates operation results for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultDenied  ResultLabel = "denied"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines the alarm metrics hooks.
type Recorder interface {
	// IncSchedule counts schedule attempts by result (denied = no exact wake-up permission).
	IncSchedule(result ResultLabel)
	IncCancel()
	// SetNextAlarm exports the next outstanding wake-up; the zero time clears it.
	SetNextAlarm(at time.Time)
	IncTrigger(result ResultLabel)
	// IncSessionOutcome counts ended sessions by outcome (dismissed, snoozed, emergency, replaced, stopped).
	IncSessionOutcome(outcome string)
	ObserveRingDuration(d time.Duration)
	SetSessionActive(active bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncSchedule(ResultLabel)           {}
func (NoopRecorder) IncCancel()                        {}
func (NoopRecorder) SetNextAlarm(time.Time)            {}
func (NoopRecorder) IncTrigger(ResultLabel)            {}
func (NoopRecorder) IncSessionOutcome(string)          {}
func (NoopRecorder) ObserveRingDuration(time.Duration) {}
func (NoopRecorder) SetSessionActive(bool)             {}
