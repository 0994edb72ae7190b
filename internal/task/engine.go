// Package task runs the dismissal tasks that gate a ringing alarm.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// ErrSensorUnavailable is returned by Run when the task's hardware source is missing.
var ErrSensorUnavailable = errors.SensorError("task sensor unavailable").Build()

// Targets holds the per-kind completion thresholds.
type Targets struct {
	Steps        int
	HoldSeconds  int
	DelaySeconds int
}

// DefaultTargets are used for any target left at zero.
var DefaultTargets = Targets{Steps: 30, HoldSeconds: 20, DelaySeconds: 15}

// Task is one running dismissal task.
//
// Run blocks until the task completes, fails, or ctx is done. It calls report with every
// progress change and never reports Complete more than once. Sensor subscriptions are
// released before Run returns on every path.
type Task interface {
	Kind() alarm.TaskKind
	Run(ctx context.Context, report func(Progress)) error
}

// Engine builds fresh task instances for a ringing session.
type Engine struct {
	sensors platform.Sensors
	clock   clockwork.Clock
}

func NewEngine(sensors platform.Sensors, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{sensors: sensors, clock: clock}
}

// New returns a task with fresh state for kind.
func (e *Engine) New(kind alarm.TaskKind, targets Targets) (Task, error) {
	switch kind {
	case alarm.TaskSteps:
		return &stepsTask{source: e.sensors.Steps, target: pick(targets.Steps, DefaultTargets.Steps)}, nil
	case alarm.TaskHoldVertical:
		return &holdTask{source: e.sensors.Orientation, clock: e.clock, target: pick(targets.HoldSeconds, DefaultTargets.HoldSeconds)}, nil
	case alarm.TaskTimeDelay:
		return &delayTask{clock: e.clock, target: pick(targets.DelaySeconds, DefaultTargets.DelaySeconds)}, nil
	}
	return nil, errors.ValidationError(fmt.Sprintf("unknown task kind %q", kind)).Build()
}

func pick(v, def int) int64 {
	if v <= 0 {
		return int64(def)
	}
	return int64(v)
}

// sampleBuffer bounds how many unread samples a sensor callback may queue.
const sampleBuffer = 16

// observe subscribes to src and feeds samples to eval on the calling goroutine until
// eval reports completion or ctx ends.
func observe[T any](ctx context.Context, kind alarm.TaskKind, src platform.Source[T], report func(Progress), eval func(T) Progress) error {
	if src == nil || !src.Available() {
		report(Progress{Kind: kind, Unavailable: true})
		return ErrSensorUnavailable.WithContext("task", string(kind))
	}

	samples := make(chan T, sampleBuffer)
	sub, err := src.Subscribe(func(v T) {
		select {
		case samples <- v:
		default:
			// Reader is behind; the next sample carries the newer state.
		}
	})
	if err != nil {
		report(Progress{Kind: kind, Unavailable: true})
		return ErrSensorUnavailable.Wrap(err).WithContext("task", string(kind))
	}
	defer func() { _ = sub.Close() }()

	var last Progress
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-samples:
			p := eval(v)
			if p != last {
				last = p
				report(p)
			}
			if p.Complete {
				return nil
			}
		}
	}
}

type stepsTask struct {
	source platform.Source[platform.StepSample]
	target int64
}

func (t *stepsTask) Kind() alarm.TaskKind { return alarm.TaskSteps }

func (t *stepsTask) Run(ctx context.Context, report func(Progress)) error {
	counter := &StepCounter{Target: t.target}
	return observe(ctx, alarm.TaskSteps, t.source, report, counter.Observe)
}

type holdTask struct {
	source platform.Source[platform.OrientationSample]
	clock  clockwork.Clock
	target int64
}

func (t *holdTask) Kind() alarm.TaskKind { return alarm.TaskHoldVertical }

func (t *holdTask) Run(ctx context.Context, report func(Progress)) error {
	timer := &HoldTimer{Target: t.target}
	timer.Start(t.clock.Now())
	return observe(ctx, alarm.TaskHoldVertical, t.source, report, func(s platform.OrientationSample) Progress {
		return timer.Observe(s, t.clock.Now())
	})
}

type delayTask struct {
	clock  clockwork.Clock
	target int64
}

func (t *delayTask) Kind() alarm.TaskKind { return alarm.TaskTimeDelay }

func (t *delayTask) Run(ctx context.Context, report func(Progress)) error {
	countdown := &Countdown{Target: t.target}
	report(countdown.Current())

	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p := countdown.Tick()
			report(p)
			if p.Complete {
				return nil
			}
		}
	}
}
