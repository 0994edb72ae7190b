package session

import "time"

// Emergency stop defaults: five taps, each within two seconds of the previous one.
const (
	EmergencyTaps    = 5
	EmergencyTimeout = 2 * time.Second
)

// EmergencyStop counts taps on the escape control. The count restarts at one whenever
// more than Timeout passed since the previous tap.
type EmergencyStop struct {
	Required int
	Timeout  time.Duration

	count   int
	lastTap time.Time
}

func NewEmergencyStop() *EmergencyStop {
	return &EmergencyStop{Required: EmergencyTaps, Timeout: EmergencyTimeout}
}

// Tap registers one tap at now and reports the running count and whether the stop fired.
// Firing resets the counter.
func (e *EmergencyStop) Tap(now time.Time) (count int, fired bool) {
	if e.count > 0 && now.Sub(e.lastTap) > e.Timeout {
		e.count = 0
	}
	e.lastTap = now
	e.count++
	if e.count >= e.Required {
		e.count = 0
		return e.Required, true
	}
	return e.count, false
}

// Remaining is the number of taps still needed.
func (e *EmergencyStop) Remaining() int { return e.Required - e.count }
