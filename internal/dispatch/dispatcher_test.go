package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/store"
)

type fakeSessions struct {
	mu      sync.Mutex
	active  int64
	ringing bool
	starts  []platform.Trigger
}

func (f *fakeSessions) ActiveAlarm() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.ringing
}

func (f *fakeSessions) Start(_ context.Context, def alarm.Definition, trig platform.Trigger) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ringing && f.active == def.ID {
		return false, nil
	}
	f.active, f.ringing = def.ID, true
	f.starts = append(f.starts, trig)
	return true, nil
}

func (f *fakeSessions) Starts() []platform.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Trigger(nil), f.starts...)
}

type fakeDeliveries struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeDeliveries) Delivered(id int64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

var at7 = time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.SQLiteStore, *fakeSessions, *events.Bus) {
	t.Helper()
	st, err := store.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	bus := events.NewBus()
	t.Cleanup(func() {
		bus.Close()
		_ = st.Close()
	})
	sessions := &fakeSessions{}
	d := New(Deps{
		Records:  st,
		Sessions: sessions,
		Ledger:   st,
		Bus:      bus,
		Clock:    clockwork.NewFakeClockAt(at7),
	})
	return d, st, sessions, bus
}

func insert(t *testing.T, st *store.SQLiteStore, enabled bool) int64 {
	t.Helper()
	id, err := st.Insert(t.Context(), alarm.Definition{Hour: 7, Enabled: enabled, TaskKind: alarm.TaskSteps})
	require.NoError(t, err)
	return id
}

func TestDispatch(t *testing.T) {
	t.Run("starts a session and reports dispatched", func(t *testing.T) {
		d, st, sessions, _ := newTestDispatcher(t)
		id := insert(t, st, true)
		require.Equal(t, StateIdle, d.State())

		res, err := d.Dispatch(t.Context(), platform.Trigger{AlarmID: id, ScheduledFor: at7})
		require.NoError(t, err)
		require.Equal(t, ResultStarted, res)
		require.Equal(t, StateDispatched, d.State())
		require.Len(t, sessions.Starts(), 1)
	})

	t.Run("duplicate delivery for the ringing alarm", func(t *testing.T) {
		d, st, sessions, _ := newTestDispatcher(t)
		id := insert(t, st, true)
		trig := platform.Trigger{AlarmID: id, ScheduledFor: at7}

		_, err := d.Dispatch(t.Context(), trig)
		require.NoError(t, err)
		res, err := d.Dispatch(t.Context(), trig)
		require.NoError(t, err)
		require.Equal(t, ResultDuplicate, res)
		require.Len(t, sessions.Starts(), 1)
	})

	t.Run("re-delivery of a handled trigger", func(t *testing.T) {
		d, st, sessions, _ := newTestDispatcher(t)
		id := insert(t, st, true)
		_, err := st.MarkHandled(t.Context(), id, at7)
		require.NoError(t, err)

		res, err := d.Dispatch(t.Context(), platform.Trigger{AlarmID: id, ScheduledFor: at7})
		require.NoError(t, err)
		require.Equal(t, ResultHandled, res)
		require.Empty(t, sessions.Starts())

		res, err = d.Dispatch(t.Context(), platform.Trigger{AlarmID: id, ScheduledFor: at7.Add(5 * time.Minute)})
		require.NoError(t, err)
		require.Equal(t, ResultStarted, res, "a later trigger of the same alarm rings")
	})

	t.Run("deleted alarm aborts quietly", func(t *testing.T) {
		d, _, sessions, bus := newTestDispatcher(t)
		aborted, unsubscribe := events.Subscribe[events.DispatchAborted](bus, 1)
		defer unsubscribe()

		res, err := d.Dispatch(t.Context(), platform.Trigger{AlarmID: 42, ScheduledFor: at7})
		require.NoError(t, err)
		require.Equal(t, ResultNotFound, res)
		require.Empty(t, sessions.Starts())
		require.Equal(t, StateIdle, d.State())

		evt := <-aborted
		require.Equal(t, int64(42), evt.AlarmID)
		require.Equal(t, "not_found", evt.Reason)
	})

	t.Run("disabled alarm ignores stale wake-up but rings ad hoc", func(t *testing.T) {
		d, st, sessions, _ := newTestDispatcher(t)
		id := insert(t, st, false)

		res, err := d.Dispatch(t.Context(), platform.Trigger{AlarmID: id, ScheduledFor: at7})
		require.NoError(t, err)
		require.Equal(t, ResultDisabled, res)

		res, err = d.Dispatch(t.Context(), platform.Trigger{AlarmID: id})
		require.NoError(t, err)
		require.Equal(t, ResultStarted, res)
		require.Len(t, sessions.Starts(), 1)
	})

	t.Run("scheduled trigger clears the delivered wake-up", func(t *testing.T) {
		d, st, _, _ := newTestDispatcher(t)
		deliveries := &fakeDeliveries{}
		d.d.Deliveries = deliveries
		id := insert(t, st, true)

		_, err := d.Dispatch(t.Context(), platform.Trigger{AlarmID: id, ScheduledFor: at7})
		require.NoError(t, err)
		_, err = d.Dispatch(t.Context(), platform.Trigger{AlarmID: id})
		require.NoError(t, err)
		require.Equal(t, []int64{id}, deliveries.ids)
	})
}

func TestDeliverHandsOffToWorker(t *testing.T) {
	d, st, sessions, _ := newTestDispatcher(t)
	id := insert(t, st, true)

	d.Start(t.Context())
	t.Cleanup(func() { d.Stop(context.Background()) })

	require.NoError(t, d.Deliver(platform.Trigger{AlarmID: id, ScheduledFor: at7}))
	require.Eventually(t, func() bool { return len(sessions.Starts()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeliverQueueFull(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	d.d.QueueSize = 1
	d.queue = make(chan request, 1)

	require.NoError(t, d.Deliver(platform.Trigger{AlarmID: 1}))
	require.ErrorIs(t, d.Deliver(platform.Trigger{AlarmID: 2}), ErrQueueFull)
	require.Equal(t, 1, d.Pending())
}

func TestDeliverAfterStop(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	d.Start(t.Context())
	d.Stop(t.Context())
	require.ErrorIs(t, d.Deliver(platform.Trigger{AlarmID: 1}), ErrStopped)
}
