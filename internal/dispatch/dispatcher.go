// Package dispatch turns delivered wake-ups into ringing sessions.
//
// Delivery entry points (gocron job callbacks, NATS handlers, the HTTP API) call Deliver,
// which only queues the trigger. A single worker resolves the alarm record and starts the
// session, so the entry point never waits on the store or the sound device.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/metrics"
	"git.home.luguber.info/inful/alarmd/internal/observability"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/store"
)

// State is the dispatcher state.
type State string

const (
	StateIdle       State = "IDLE"
	StateDispatched State = "DISPATCHED"
)

// Result describes what a single dispatch did.
type Result string

const (
	ResultStarted   Result = "started"
	ResultDuplicate Result = "duplicate"
	ResultHandled   Result = "already_handled"
	ResultNotFound  Result = "not_found"
	ResultDisabled  Result = "disabled"
	ResultFailed    Result = "failed"
)

var (
	ErrQueueFull = errors.RuntimeError("trigger queue is full").Retryable().Build()
	ErrStopped   = errors.RuntimeError("dispatcher stopped").Build()
)

// Records resolves alarm ids.
type Records interface {
	Get(ctx context.Context, id int64) (alarm.Definition, error)
}

// Sessions is the ringing session owner.
type Sessions interface {
	ActiveAlarm() (int64, bool)
	Start(ctx context.Context, def alarm.Definition, trig platform.Trigger) (bool, error)
}

// Deliveries is told when a registered wake-up has fired.
type Deliveries interface {
	Delivered(id int64, at time.Time)
}

// Deps are the collaborators of a Dispatcher. Ledger, Deliveries, Bus and Recorder are optional.
type Deps struct {
	Records    Records
	Sessions   Sessions
	Ledger     store.TriggerLedger
	Deliveries Deliveries
	Bus        *events.Bus
	Recorder   metrics.Recorder
	Clock      clockwork.Clock
	Logger     *slog.Logger
	QueueSize  int
}

type request struct {
	id   string
	trig platform.Trigger
}

// Dispatcher queues triggers and hands them to the session manager one at a time.
type Dispatcher struct {
	d     Deps
	queue chan request

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(d Deps) *Dispatcher {
	if d.QueueSize <= 0 {
		d.QueueSize = 16
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		d:        d,
		queue:    make(chan request, d.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the worker. It is a no-op when already started.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.worker(ctx)
	d.d.Logger.Debug("Trigger dispatcher started", slog.Int("queue_size", d.d.QueueSize))
}

// Stop ends the worker after the trigger it is handling, if any. Queued triggers are dropped;
// their wake-ups are re-registered by the next boot reschedule.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.d.Logger.Warn("Trigger dispatcher did not stop in time", logfields.Error(ctx.Err()))
	}
}

// Deliver queues trig and returns immediately. It is the platform.TriggerFunc entry point.
func (d *Dispatcher) Deliver(trig platform.Trigger) error {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	req := request{id: uuid.NewString(), trig: trig}
	select {
	case d.queue <- req:
		d.d.Logger.Debug("Trigger queued", logfields.AlarmID(trig.AlarmID), logfields.DispatchID(req.id))
		return nil
	default:
		d.d.Recorder.IncTrigger(metrics.ResultFailed)
		d.d.Logger.Error("Trigger dropped, queue full", logfields.AlarmID(trig.AlarmID))
		return ErrQueueFull.WithContext("alarm_id", trig.AlarmID)
	}
}

// TriggerFunc adapts Deliver to platform.TriggerFunc, logging queue failures.
func (d *Dispatcher) TriggerFunc() platform.TriggerFunc {
	return func(trig platform.Trigger) {
		if err := d.Deliver(trig); err != nil {
			d.d.Logger.Warn("Trigger not delivered", logfields.AlarmID(trig.AlarmID), logfields.Error(err))
		}
	}
}

// State reports DISPATCHED while a session is ringing.
func (d *Dispatcher) State() State {
	if _, ok := d.d.Sessions.ActiveAlarm(); ok {
		return StateDispatched
	}
	return StateIdle
}

// Pending is the number of queued triggers.
func (d *Dispatcher) Pending() int { return len(d.queue) }

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case req := <-d.queue:
			d.handle(ctx, req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req request) {
	defer func() {
		if r := recover(); r != nil {
			d.d.Recorder.IncTrigger(metrics.ResultFailed)
			d.d.Logger.Error("Trigger dispatch panicked",
				logfields.AlarmID(req.trig.AlarmID), logfields.DispatchID(req.id), slog.Any("panic", r))
		}
	}()
	res, err := d.dispatch(ctx, req.id, req.trig)
	if err != nil {
		d.d.Logger.Error("Trigger dispatch failed",
			logfields.AlarmID(req.trig.AlarmID), logfields.DispatchID(req.id), slog.String("result", string(res)), logfields.Error(err))
	}
}

// Dispatch handles trig on the calling goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, trig platform.Trigger) (Result, error) {
	return d.dispatch(ctx, uuid.NewString(), trig)
}

func (d *Dispatcher) dispatch(ctx context.Context, dispatchID string, trig platform.Trigger) (Result, error) {
	ctx = observability.WithDispatchID(observability.WithAlarmID(ctx, trig.AlarmID), dispatchID)
	log := d.d.Logger.With(logfields.AlarmID(trig.AlarmID), logfields.DispatchID(dispatchID))
	scheduled := !trig.ScheduledFor.IsZero()
	if scheduled && d.d.Deliveries != nil {
		d.d.Deliveries.Delivered(trig.AlarmID, trig.ScheduledFor)
	}

	if id, ok := d.d.Sessions.ActiveAlarm(); ok && id == trig.AlarmID {
		log.DebugContext(ctx, "Alarm already ringing, duplicate trigger ignored")
		d.d.Recorder.IncTrigger(metrics.ResultSkipped)
		return ResultDuplicate, nil
	}

	if scheduled && d.d.Ledger != nil {
		handled, err := d.d.Ledger.Handled(ctx, trig.AlarmID, trig.ScheduledFor)
		if err != nil {
			log.WarnContext(ctx, "Trigger ledger unreadable, dispatching anyway", logfields.Error(err))
		} else if handled {
			log.InfoContext(ctx, "Trigger already handled, ignoring re-delivery", logfields.TriggerAt(trig.ScheduledFor))
			d.d.Recorder.IncTrigger(metrics.ResultSkipped)
			return ResultHandled, nil
		}
	}

	def, err := d.d.Records.Get(ctx, trig.AlarmID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.WarnContext(ctx, "Alarm deleted before it could ring, trigger aborted")
		d.abort(trig, string(ResultNotFound))
		return ResultNotFound, nil
	case err != nil:
		d.abort(trig, string(ResultFailed))
		return ResultFailed, err
	}
	// A scheduled wake-up for an alarm disabled since registration is stale. Ad hoc
	// triggers ring regardless.
	if scheduled && !def.Enabled {
		log.InfoContext(ctx, "Alarm disabled, stale trigger aborted")
		d.abort(trig, string(ResultDisabled))
		return ResultDisabled, nil
	}

	startedSession, err := d.d.Sessions.Start(ctx, def, trig)
	if err != nil {
		// The session rings even when its task failed to build; the error is for the log.
		log.WarnContext(ctx, "Session started with errors", logfields.Error(err))
	}
	if !startedSession {
		d.d.Recorder.IncTrigger(metrics.ResultSkipped)
		return ResultDuplicate, nil
	}
	d.d.Recorder.IncTrigger(metrics.ResultSuccess)
	log.InfoContext(ctx, "Trigger dispatched", logfields.TaskKind(string(def.TaskKind)))
	return ResultStarted, nil
}

func (d *Dispatcher) abort(trig platform.Trigger, reason string) {
	d.d.Recorder.IncTrigger(metrics.ResultFailed)
	if d.d.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt := events.DispatchAborted{AlarmID: trig.AlarmID, Reason: reason, At: d.d.Clock.Now()}
	if err := d.d.Bus.Publish(ctx, evt); err != nil {
		d.d.Logger.Debug("Dispatch abort event not delivered", logfields.Error(err))
	}
}
