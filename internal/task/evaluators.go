package task

import (
	"math"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// Progress is one task report. Fraction is always within [0, 1].
type Progress struct {
	Kind        alarm.TaskKind `json:"kind"`
	Current     int64          `json:"current"`
	Target      int64          `json:"target"`
	Fraction    float64        `json:"fraction"`
	Complete    bool           `json:"complete"`
	Unavailable bool           `json:"unavailable,omitempty"`
}

func progress(kind alarm.TaskKind, current, target int64) Progress {
	if target <= 0 {
		target = 1
	}
	capped := min(max(current, 0), target)
	return Progress{
		Kind:     kind,
		Current:  capped,
		Target:   target,
		Fraction: float64(capped) / float64(target),
		Complete: current >= target,
	}
}

// StepCounter turns cumulative step counter readings into progress.
// The first reading is the baseline.
type StepCounter struct {
	Target   int64
	baseline int64
	started  bool
}

func (s *StepCounter) Observe(sample platform.StepSample) Progress {
	if !s.started {
		s.baseline = sample.Count
		s.started = true
	}
	return progress(alarm.TaskSteps, sample.Count-s.baseline, s.Target)
}

// Vertical thresholds in m/s².
const (
	VerticalGravityMin = 8.0
	VerticalAxisMax    = 3.0
)

// IsVertical classifies one accelerometer sample.
func IsVertical(s platform.OrientationSample) bool {
	return math.Abs(s.Z) > VerticalGravityMin && math.Abs(s.X) < VerticalAxisMax && math.Abs(s.Y) < VerticalAxisMax
}

// HoldTimer credits one second for every full second of consecutive vertical samples.
// Any other sample resets the credit to zero.
type HoldTimer struct {
	Target     int64
	held       int64
	lastCredit time.Time
}

// Start sets the reference instant the first second is measured from.
func (h *HoldTimer) Start(now time.Time) {
	h.held = 0
	h.lastCredit = now
}

func (h *HoldTimer) Observe(sample platform.OrientationSample, now time.Time) Progress {
	if !IsVertical(sample) {
		h.held = 0
		h.lastCredit = now
		return progress(alarm.TaskHoldVertical, 0, h.Target)
	}
	if now.Sub(h.lastCredit) >= time.Second {
		h.held++
		h.lastCredit = now
	}
	return progress(alarm.TaskHoldVertical, h.held, h.Target)
}

// Countdown reports elapsed seconds of a fixed wait.
type Countdown struct {
	Target  int64
	elapsed int64
}

// Tick advances one second.
func (c *Countdown) Tick() Progress {
	c.elapsed++
	return c.Current()
}

func (c *Countdown) Current() Progress {
	return progress(alarm.TaskTimeDelay, c.elapsed, c.Target)
}
