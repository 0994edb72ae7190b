package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/dispatch"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/platform/platformtest"
	"git.home.luguber.info/inful/alarmd/internal/registry"
	"git.home.luguber.info/inful/alarmd/internal/scheduler"
	"git.home.luguber.info/inful/alarmd/internal/session"
	"git.home.luguber.info/inful/alarmd/internal/settings"
	"git.home.luguber.info/inful/alarmd/internal/store"
	"git.home.luguber.info/inful/alarmd/internal/task"
)

// Monday 2025-03-03 06:00 UTC.
var now = time.Date(2025, 3, 3, 6, 0, 0, 0, time.UTC)

type fakeSessions struct {
	mu       sync.Mutex
	snap     session.Snapshot
	taps     int
	snoozeTo time.Time
}

func (f *fakeSessions) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSessions) set(snap session.Snapshot, snoozeTo time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.snoozeTo = snoozeTo
}

func (f *fakeSessions) Dismiss(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snap.Active() {
		return session.ErrNoActiveSession
	}
	if !f.snap.Progress.Complete {
		return session.ErrTaskIncomplete
	}
	f.snap = session.Snapshot{State: session.StateIdle, LastOutcome: session.OutcomeDismissed}
	return nil
}

func (f *fakeSessions) Snooze(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snap.Active() {
		return time.Time{}, session.ErrNoActiveSession
	}
	f.snap = session.Snapshot{State: session.StateIdle, LastOutcome: session.OutcomeSnoozed}
	return f.snoozeTo, nil
}

func (f *fakeSessions) EmergencyTap(context.Context) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snap.Active() {
		return 0, false, session.ErrNoActiveSession
	}
	f.taps++
	return 5 - f.taps, false, nil
}

func (f *fakeSessions) IndicatorTapped(context.Context) error {
	if !f.Snapshot().Active() {
		return session.ErrNoActiveSession
	}
	return nil
}

type fakeTriggers struct {
	mu   sync.Mutex
	got  []platform.Trigger
	full bool
}

func (f *fakeTriggers) Deliver(trig platform.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return dispatch.ErrQueueFull
	}
	f.got = append(f.got, trig)
	return nil
}

func (f *fakeTriggers) setFull(full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = full
}

func (f *fakeTriggers) delivered() []platform.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Trigger(nil), f.got...)
}

func (f *fakeTriggers) State() dispatch.State { return dispatch.StateIdle }

func (f *fakeTriggers) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fixture struct {
	srv      *httptest.Server
	bus      *events.Bus
	sessions *fakeSessions
	triggers *fakeTriggers
	wake     *platformtest.Wakeups
	boots    atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(t.Context(), ":memory:", store.WithClock(clk))
	require.NoError(t, err)
	bus := events.NewBus()
	wake := platformtest.NewWakeups()
	sched := scheduler.New(wake, scheduler.WithClock(clk), scheduler.WithLogger(logger))
	reg := registry.New(st, sched, registry.WithBus(bus), registry.WithClock(clk), registry.WithLogger(logger))
	prefs, err := settings.OpenFile(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	f := &fixture{bus: bus, sessions: &fakeSessions{}, triggers: &fakeTriggers{}, wake: wake}
	s := NewServer(Deps{
		Alarms:   reg,
		Sessions: f.sessions,
		Triggers: f.triggers,
		Next:     sched,
		Settings: prefs,
		Boot: func(context.Context) (BootReport, error) {
			f.boots.Add(1)
			return BootReport{Rescheduled: 1}, nil
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "alarmd_up 1\n")
		}),
		Bus:    bus,
		Clock:  clk,
		Logger: logger,
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		bus.Close()
		_ = st.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAlarmLifecycle(t *testing.T) {
	f := newFixture(t)

	var created registry.Saved
	resp := f.do(t, http.MethodPost, "/api/alarms", AlarmRequest{Hour: 7, Minute: 0, Label: "work"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotZero(t, created.Alarm.ID)
	require.True(t, created.Alarm.Enabled)
	require.Equal(t, alarm.TaskSteps, created.Alarm.TaskKind)
	require.Equal(t, time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC), created.NextTrigger)
	_, pending := f.wake.Pending(created.Alarm.ID)
	require.True(t, pending)

	var list []AlarmView
	resp = f.do(t, http.MethodGet, "/api/alarms", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	require.Equal(t, "One time", list[0].Repeat)
	require.Equal(t, "1h 0m", list[0].TimeUntil)
	require.Equal(t, "work", list[0].Label)

	var next NextResponse
	f.do(t, http.MethodGet, "/api/next", nil, &next)
	require.Equal(t, created.Alarm.ID, next.AlarmID)
	require.Equal(t, "1h 0m", next.TimeUntil)

	var updated registry.Saved
	path := "/api/alarms/" + strconv.FormatInt(created.Alarm.ID, 10)
	resp = f.do(t, http.MethodPut, path,
		AlarmRequest{Hour: 8, Minute: 15, RepeatDays: alarm.NewWeekdays(alarm.Saturday)}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, updated.Alarm.Enabled, "nil enabled keeps the stored value")
	require.Empty(t, updated.Alarm.Label, "PUT replaces every field but enabled")
	require.Equal(t, time.Date(2025, 3, 8, 8, 15, 0, 0, time.UTC), updated.NextTrigger)

	var disabled registry.Saved
	resp = f.do(t, http.MethodPost, path+"/disable", nil, &disabled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, disabled.Alarm.Enabled)
	require.True(t, disabled.NextTrigger.IsZero())
	_, pending = f.wake.Pending(created.Alarm.ID)
	require.False(t, pending)

	var view AlarmView
	f.do(t, http.MethodGet, path, nil, &view)
	require.Empty(t, view.TimeUntil)

	resp = f.do(t, http.MethodDelete, path, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var apiErr errors.HTTPErrorResponse
	resp = f.do(t, http.MethodGet, path, nil, &apiErr)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", apiErr.Code)
}

func TestAlarmValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.srv.URL+"/api/alarms", strings.NewReader("{"))
		require.NoError(t, err)
		resp, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/alarms", map[string]any{"hour": 7, "snooze": 3}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("hour out of range", func(t *testing.T) {
		var apiErr errors.HTTPErrorResponse
		resp := f.do(t, http.MethodPost, "/api/alarms", AlarmRequest{Hour: 25}, &apiErr)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "validation", apiErr.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/api/alarms/abc", nil, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAlarmLimit(t *testing.T) {
	f := newFixture(t)
	for i := range store.MaxAlarms {
		resp := f.do(t, http.MethodPost, "/api/alarms", AlarmRequest{Hour: 7, Minute: i}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	var apiErr errors.HTTPErrorResponse
	resp := f.do(t, http.MethodPost, "/api/alarms", AlarmRequest{Hour: 9}, &apiErr)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "limit", apiErr.Code)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)

	var apiErr errors.HTTPErrorResponse
	resp := f.do(t, http.MethodPost, "/api/session/dismiss", nil, &apiErr)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "session", apiErr.Code)

	f.sessions.set(session.Snapshot{State: session.StateActive, AlarmID: 2, Progress: alarmProgress(false)}, now.Add(5*time.Minute))

	var got SessionResponse
	f.do(t, http.MethodGet, "/api/session", nil, &got)
	require.Equal(t, session.StateActive, got.State)
	require.Equal(t, int64(2), got.AlarmID)
	require.Equal(t, dispatch.StateIdle, got.Dispatcher)

	resp = f.do(t, http.MethodPost, "/api/session/dismiss", nil, &apiErr)
	require.Equal(t, http.StatusConflict, resp.StatusCode, "task incomplete")

	var tap TapResponse
	f.do(t, http.MethodPost, "/api/session/tap", nil, &tap)
	require.Equal(t, 4, tap.Remaining)

	resp = f.do(t, http.MethodPost, "/api/session/indicator", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var snoozed SnoozeResponse
	resp = f.do(t, http.MethodPost, "/api/session/snooze", nil, &snoozed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(2), snoozed.AlarmID)
	require.Equal(t, now.Add(5*time.Minute), snoozed.Until)

	f.sessions.set(session.Snapshot{State: session.StateActive, AlarmID: 3, Progress: alarmProgress(true)}, time.Time{})
	resp = f.do(t, http.MethodPost, "/api/session/dismiss", nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, session.OutcomeDismissed, got.LastOutcome)
}

func TestTrigger(t *testing.T) {
	f := newFixture(t)

	var ack TriggerResponse
	resp := f.do(t, http.MethodPost, "/api/triggers/3", nil, &ack)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, ack.Queued)
	require.Equal(t, []platform.Trigger{{AlarmID: 3}}, f.triggers.delivered())

	f.triggers.setFull(true)
	var apiErr errors.HTTPErrorResponse
	resp = f.do(t, http.MethodPost, "/api/triggers/3", nil, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.True(t, apiErr.Retryable)
}

func TestBootHealthMetrics(t *testing.T) {
	f := newFixture(t)

	var report BootReport
	resp := f.do(t, http.MethodPost, "/api/boot", nil, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, report.Rescheduled)
	require.Equal(t, int32(1), f.boots.Load())

	var health HealthResponse
	resp = f.do(t, http.MethodGet, "/healthz", nil, &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, HealthStatusHealthy, health.Status)

	resp, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "alarmd_up")
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t)

	var cur settings.Settings
	f.do(t, http.MethodGet, "/api/settings", nil, &cur)
	require.Equal(t, settings.Defaults(), cur)

	var saved settings.Settings
	resp := f.do(t, http.MethodPut, "/api/settings", map[string]any{"snooze_minutes": 10, "step_target": 500}, &saved)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 10, saved.SnoozeMinutes)
	require.Equal(t, 100, saved.StepTarget, "clamped")
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return events.SubscriberCount[events.Event](f.bus) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.bus.Publish(t.Context(), events.AlarmsChanged{AlarmID: 4, Op: "created", At: now}))

	lines := bufio.NewScanner(resp.Body)
	var seen []string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") {
			seen = append(seen, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "alarms.changed") {
			var evt StreamEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
			require.Equal(t, "alarms.changed", evt.Name)
			break
		}
	}
	require.Equal(t, []string{"connected", "alarms.changed"}, seen)
}

func alarmProgress(complete bool) (p task.Progress) {
	p.Kind = alarm.TaskSteps
	p.Target = 30
	if complete {
		p.Current = 30
		p.Fraction = 1
		p.Complete = true
	}
	return p
}
