package scheduler

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform/platformtest"
)

var monday7 = time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *platformtest.Wakeups, *bytes.Buffer) {
	t.Helper()
	w := platformtest.NewWakeups()
	var logs bytes.Buffer
	s := New(w,
		WithClock(clockwork.NewFakeClockAt(now)),
		WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)
	return s, w, &logs
}

func enabled(id int64, hour, minute int, days alarm.Weekdays) alarm.Definition {
	return alarm.Definition{ID: id, Hour: hour, Minute: minute, Enabled: true, RepeatDays: days, TaskKind: alarm.TaskSteps}
}

func TestSchedule(t *testing.T) {
	t.Run("registers next trigger", func(t *testing.T) {
		s, w, _ := newTestScheduler(t, monday7.Add(5*time.Minute))
		require.NoError(t, s.Schedule(t.Context(), enabled(1, 7, 0, 0)))

		at, ok := w.Pending(1)
		require.True(t, ok)
		require.Equal(t, monday7.AddDate(0, 0, 1), at)
	})

	t.Run("disabled is a no-op", func(t *testing.T) {
		s, w, _ := newTestScheduler(t, monday7)
		a := enabled(1, 8, 0, 0)
		a.Enabled = false
		require.NoError(t, s.Schedule(t.Context(), a))
		require.Empty(t, w.IDs())
		require.Zero(t, w.Calls())
	})

	t.Run("identical schedule twice leaves one registration", func(t *testing.T) {
		s, w, _ := newTestScheduler(t, monday7)
		a := enabled(2, 9, 30, alarm.WorkingDays)
		require.NoError(t, s.Schedule(t.Context(), a))
		require.NoError(t, s.Schedule(t.Context(), a))
		require.Equal(t, []int64{2}, w.IDs())
		require.Len(t, s.Outstanding(), 1)
	})

	t.Run("permission missing fails loudly", func(t *testing.T) {
		s, w, logs := newTestScheduler(t, monday7)
		w.SetPermitted(false)

		err := s.Schedule(t.Context(), enabled(3, 9, 0, 0))
		require.ErrorIs(t, err, ErrExactAlarmNotPermitted)
		require.True(t, errors.HasCategory(err, errors.CategoryPermission))
		require.Empty(t, w.IDs())
		require.Zero(t, w.Calls(), "capability checked before registering")
		require.Contains(t, logs.String(), "Exact alarm permission missing")
	})

	t.Run("platform failure is wrapped", func(t *testing.T) {
		s, w, _ := newTestScheduler(t, monday7)
		w.Err = stderrors.New("alarm service down")
		err := s.Schedule(t.Context(), enabled(4, 9, 0, 0))
		require.ErrorIs(t, err, ErrRegisterFailed)
		require.Empty(t, s.Outstanding())
	})
}

func TestScheduleAt(t *testing.T) {
	s, w, _ := newTestScheduler(t, monday7)
	snooze := monday7.Add(5 * time.Minute)

	require.NoError(t, s.ScheduleAt(t.Context(), 1, snooze))
	at, _ := w.Pending(1)
	require.Equal(t, snooze, at)

	require.ErrorIs(t, s.ScheduleAt(t.Context(), 1, monday7), ErrNotInFuture)
}

func TestCancel(t *testing.T) {
	s, w, _ := newTestScheduler(t, monday7)
	require.NoError(t, s.Cancel(t.Context(), 42), "cancel without registration")

	require.NoError(t, s.Schedule(t.Context(), enabled(1, 8, 0, 0)))
	require.NoError(t, s.Cancel(t.Context(), 1))
	require.Empty(t, w.IDs())
	require.True(t, s.Next().None())
}

func TestRescheduleAll(t *testing.T) {
	s, w, _ := newTestScheduler(t, monday7)
	alarms := []alarm.Definition{
		enabled(1, 6, 0, 0),
		{ID: 2, Hour: 8, Enabled: false, TaskKind: alarm.TaskSteps},
		enabled(3, 9, 0, alarm.Weekend),
	}
	w.Err = stderrors.New("transient")

	err := s.RescheduleAll(t.Context(), alarms)
	require.Error(t, err, "first registration failed")
	require.Equal(t, []int64{3}, w.IDs(), "failure does not stop the rest")

	require.NoError(t, s.RescheduleAll(t.Context(), alarms))
	require.Equal(t, []int64{1, 3}, w.IDs())
}

func TestNextAlarmIndicator(t *testing.T) {
	s, _, _ := newTestScheduler(t, monday7)

	var seen []NextAlarm
	unsubscribe := s.WatchNext(func(n NextAlarm) { seen = append(seen, n) })
	defer unsubscribe()
	require.True(t, seen[0].None())

	require.NoError(t, s.Schedule(t.Context(), enabled(1, 9, 0, 0)))
	require.NoError(t, s.Schedule(t.Context(), enabled(2, 8, 0, 0)))
	require.Equal(t, int64(2), s.Next().AlarmID)
	require.Equal(t, monday7.Add(time.Hour), s.Next().TriggerAt)

	s.Delivered(2, monday7.Add(time.Hour))
	require.Equal(t, int64(1), s.Next().AlarmID)

	s.Delivered(1, monday7) // stale delivery keeps the registration
	require.Equal(t, int64(1), s.Next().AlarmID)
	require.Equal(t, int64(1), seen[len(seen)-1].AlarmID)
}

// Interleaved schedule/cancel for one id must leave state matching the last call.
func TestSerializedPerID(t *testing.T) {
	s, w, _ := newTestScheduler(t, monday7)
	ctx := context.Background()
	a := enabled(1, 9, 0, 0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Schedule(ctx, a)
			} else {
				_ = s.Cancel(ctx, 1)
			}
		}()
	}
	wg.Wait()

	_, pending := w.Pending(1)
	_, tracked := s.Outstanding()[1]
	require.Equal(t, pending, tracked)

	require.NoError(t, s.Schedule(ctx, a))
	_, pending = w.Pending(1)
	require.True(t, pending)
	require.Empty(t, s.locks.locks, "per-id locks are released")
}
