// Package scheduler keeps exactly one exact wake-up registered per enabled alarm.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/clock"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/metrics"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

var (
	// ErrExactAlarmNotPermitted is returned when the platform refuses exact wake-ups.
	// The alarm record is untouched; scheduling can be retried once permission is granted.
	ErrExactAlarmNotPermitted = errors.PermissionError("exact alarm scheduling not permitted").Build()

	ErrRegisterFailed = errors.SchedulerError("wake-up registration failed").Build()
	ErrCancelFailed   = errors.SchedulerError("wake-up cancellation failed").Build()
	ErrNotInFuture    = errors.ValidationError("wake-up instant must be in the future").Build()
)

// NextAlarm is the earliest outstanding wake-up. A zero value means none is registered.
type NextAlarm struct {
	AlarmID   int64     `json:"alarm_id,omitempty"`
	TriggerAt time.Time `json:"trigger_at,omitzero"`
}

func (n NextAlarm) None() bool { return n.TriggerAt.IsZero() }

// Scheduler maps alarm definitions onto the platform wake-up primitive.
//
// Schedule and Cancel for the same id are serialized, so a later call always wins.
// Calls for different ids proceed in parallel.
type Scheduler struct {
	wakeups  platform.Wakeups
	clock    clockwork.Clock
	recorder metrics.Recorder
	logger   *slog.Logger

	locks keyedMutex

	mu          sync.Mutex
	outstanding map[int64]time.Time
	next        *events.State[NextAlarm]
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option     { return func(s *Scheduler) { s.clock = c } }
func WithRecorder(r metrics.Recorder) Option { return func(s *Scheduler) { s.recorder = r } }
func WithLogger(l *slog.Logger) Option       { return func(s *Scheduler) { s.logger = l } }

func New(wakeups platform.Wakeups, opts ...Option) *Scheduler {
	s := &Scheduler{
		wakeups:     wakeups,
		clock:       clockwork.NewRealClock(),
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
		outstanding: make(map[int64]time.Time),
		next:        events.NewState(NextAlarm{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers the next trigger of a, replacing any earlier registration for a.ID.
// Disabled alarms are left alone.
func (s *Scheduler) Schedule(ctx context.Context, a alarm.Definition) error {
	if !a.Enabled {
		s.recorder.IncSchedule(metrics.ResultSkipped)
		return nil
	}
	unlock := s.locks.Lock(a.ID)
	defer unlock()

	return s.register(ctx, a.ID, clock.Next(a, s.clock.Now()))
}

// ScheduleAt registers a one-off wake-up for id at an explicit instant. Snooze uses it;
// the alarm record is not consulted or changed.
func (s *Scheduler) ScheduleAt(ctx context.Context, id int64, at time.Time) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if !at.After(s.clock.Now()) {
		return ErrNotInFuture.WithContext("at", at.Format(time.RFC3339))
	}
	return s.register(ctx, id, at)
}

func (s *Scheduler) register(ctx context.Context, id int64, at time.Time) error {
	if !s.wakeups.CanScheduleExact() {
		s.recorder.IncSchedule(metrics.ResultDenied)
		s.logger.ErrorContext(ctx, "Exact alarm permission missing, wake-up not registered",
			logfields.AlarmID(id), logfields.TriggerAt(at))
		return ErrExactAlarmNotPermitted.WithContext("alarm_id", id)
	}

	if err := s.wakeups.ScheduleExactAt(ctx, id, at); err != nil {
		if errors.Is(err, platform.ErrPermissionDenied) {
			s.recorder.IncSchedule(metrics.ResultDenied)
			s.logger.ErrorContext(ctx, "Exact alarm permission revoked during registration",
				logfields.AlarmID(id), logfields.Error(err))
			return ErrExactAlarmNotPermitted.Wrap(err).WithContext("alarm_id", id)
		}
		s.recorder.IncSchedule(metrics.ResultFailed)
		s.logger.ErrorContext(ctx, "Failed to register wake-up",
			logfields.AlarmID(id), logfields.TriggerAt(at), logfields.Error(err))
		return ErrRegisterFailed.Wrap(err).WithContext("alarm_id", id)
	}

	s.recorder.IncSchedule(metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "Alarm scheduled", logfields.AlarmID(id), logfields.TriggerAt(at))
	s.setOutstanding(id, at)
	return nil
}

// Cancel removes any outstanding wake-up for id. Unknown ids are fine.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.wakeups.Cancel(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to cancel wake-up", logfields.AlarmID(id), logfields.Error(err))
		return ErrCancelFailed.Wrap(err).WithContext("alarm_id", id)
	}
	s.recorder.IncCancel()
	s.logger.DebugContext(ctx, "Alarm wake-up cancelled", logfields.AlarmID(id))
	s.clearOutstanding(id, time.Time{})
	return nil
}

// RescheduleAll schedules every enabled alarm. A failure for one alarm is logged and
// does not stop the others; all failures are returned joined.
func (s *Scheduler) RescheduleAll(ctx context.Context, alarms []alarm.Definition) error {
	var errs []error
	scheduled := 0
	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		if err := s.Schedule(ctx, a); err != nil {
			errs = append(errs, err)
			continue
		}
		scheduled++
	}
	s.logger.InfoContext(ctx, "Rescheduled alarms",
		slog.Int("scheduled", scheduled), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Delivered drops the bookkeeping for a wake-up that has fired. A newer registration
// for the same id is kept.
func (s *Scheduler) Delivered(id int64, at time.Time) {
	s.clearOutstanding(id, at)
}

// Outstanding returns a copy of the registered wake-ups keyed by alarm id.
func (s *Scheduler) Outstanding() map[int64]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]time.Time, len(s.outstanding))
	for id, at := range s.outstanding {
		out[id] = at
	}
	return out
}

// Next returns the earliest outstanding wake-up.
func (s *Scheduler) Next() NextAlarm { return s.next.Get() }

// WatchNext observes the next-alarm indicator; fn gets the current value immediately.
func (s *Scheduler) WatchNext(fn func(NextAlarm)) func() { return s.next.Subscribe(fn) }

func (s *Scheduler) setOutstanding(id int64, at time.Time) {
	s.mu.Lock()
	s.outstanding[id] = at
	s.mu.Unlock()
	s.publishNext()
}

// clearOutstanding removes id; with a non-zero at only if the registration still matches.
func (s *Scheduler) clearOutstanding(id int64, at time.Time) {
	s.mu.Lock()
	cur, ok := s.outstanding[id]
	if ok && (at.IsZero() || cur.Equal(at)) {
		delete(s.outstanding, id)
	}
	s.mu.Unlock()
	s.publishNext()
}

func (s *Scheduler) publishNext() {
	s.next.Update(func(NextAlarm) NextAlarm {
		s.mu.Lock()
		defer s.mu.Unlock()
		ids := make([]int64, 0, len(s.outstanding))
		for id := range s.outstanding {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		var n NextAlarm
		for _, id := range ids {
			at := s.outstanding[id]
			if n.None() || at.Before(n.TriggerAt) {
				n = NextAlarm{AlarmID: id, TriggerAt: at}
			}
		}
		s.recorder.SetNextAlarm(n.TriggerAt)
		return n
	})
}
