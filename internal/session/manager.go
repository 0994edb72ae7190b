package session

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
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/settings"
	"git.home.luguber.info/inful/alarmd/internal/store"
	"git.home.luguber.info/inful/alarmd/internal/task"
)

// Scheduler is the part of the alarm scheduler a session needs after it ends.
type Scheduler interface {
	Schedule(ctx context.Context, a alarm.Definition) error
	ScheduleAt(ctx context.Context, id int64, at time.Time) error
	Cancel(ctx context.Context, id int64) error
}

// Records is the part of the alarm store a session needs after it ends.
type Records interface {
	Get(ctx context.Context, id int64) (alarm.Definition, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// TaskFactory builds a fresh dismissal task.
type TaskFactory interface {
	New(kind alarm.TaskKind, targets task.Targets) (task.Task, error)
}

// Deps are the collaborators of a Manager. Ledger, Bus and Recorder are optional.
type Deps struct {
	Records    Records
	Scheduler  Scheduler
	Tasks      TaskFactory
	Sound      platform.SoundPlayer
	Vibrator   platform.Vibrator
	Presenter  platform.Presenter
	Settings   settings.Provider
	Visibility *Visibility
	Ledger     store.TriggerLedger
	Bus        *events.Bus
	Recorder   metrics.Recorder
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Manager owns the single ringing session of the process.
//
// Starting a session for the alarm that is already ringing is a no-op. Starting one for a
// different alarm ends the current session first (last trigger wins). Every exit path stops
// sound and vibration before the session is dropped.
//
// Watch callbacks run while the manager lock is held and must not call back into the Manager.
type Manager struct {
	d Deps

	mu      sync.Mutex
	active  *session
	snoozes map[int64]int
	state   *events.State[Snapshot]

	notifyMu   sync.RWMutex
	notify     chan any
	notifyDone chan struct{}
	closed     bool
}

// NewManager builds a Manager. Close must be called to release the notifier goroutine.
func NewManager(d Deps) *Manager {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Recorder == nil {
		d.Recorder = metrics.NoopRecorder{}
	}
	if d.Visibility == nil {
		d.Visibility = NewVisibility()
	}
	if d.Settings == nil {
		d.Settings = settings.Static{}
	}
	m := &Manager{
		d:          d,
		snoozes:    make(map[int64]int),
		state:      events.NewState(Snapshot{State: StateIdle}),
		notify:     make(chan any, 64),
		notifyDone: make(chan struct{}),
	}
	go m.notifyLoop()
	return m
}

// Snapshot returns the current session view.
func (m *Manager) Snapshot() Snapshot { return m.state.Get() }

// Watch observes the session view; fn gets the current value right away.
func (m *Manager) Watch(fn func(Snapshot)) func() { return m.state.Subscribe(fn) }

// Visibility exposes the ringing surface visibility context.
func (m *Manager) Visibility() *Visibility { return m.d.Visibility }

// ActiveAlarm returns the id of the ringing alarm.
func (m *Manager) ActiveAlarm() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	return m.active.def.ID, true
}

// Start makes def the ringing alarm. It reports false when def is already ringing.
func (m *Manager) Start(ctx context.Context, def alarm.Definition, trig platform.Trigger) (bool, error) {
	m.mu.Lock()
	if m.active != nil && m.active.def.ID == def.ID {
		m.mu.Unlock()
		m.d.Logger.DebugContext(ctx, "Alarm already ringing, ignoring trigger", logfields.AlarmID(def.ID))
		return false, nil
	}

	var replaced *session
	if m.active != nil {
		m.d.Logger.InfoContext(ctx, "Replacing ringing alarm",
			logfields.AlarmID(m.active.def.ID), slog.Int64("new_alarm_id", def.ID))
		replaced = m.endLocked(ctx, m.active, OutcomeReplaced)
	}

	cfg := m.d.Settings.Current()
	s := &session{
		id:        uuid.NewString(),
		def:       def,
		trigger:   trig,
		state:     StateLoading,
		startedAt: m.d.Clock.Now(),
		emergency: NewEmergencyStop(),
		taskDone:  make(chan struct{}),
	}
	m.active = s
	m.publishLocked()

	s.playback = m.startSound(ctx, def, cfg)
	if cfg.Vibration() {
		if err := m.d.Vibrator.Vibrate(platform.AlarmVibration, true); err != nil {
			m.d.Logger.WarnContext(ctx, "Vibration failed to start", logfields.AlarmID(def.ID), logfields.Error(err))
		} else {
			s.vibrating = true
		}
	}
	if err := m.d.Presenter.ShowRinging(notice(def)); err != nil {
		m.d.Logger.WarnContext(ctx, "Ringing surface not shown", logfields.AlarmID(def.ID), logfields.Error(err))
	} else {
		m.d.Visibility.SetVisible(true)
	}

	s.state = StateActive
	err := m.startTask(ctx, s, cfg)
	m.publishLocked()
	m.d.Recorder.SetSessionActive(true)
	m.mu.Unlock()

	if replaced != nil {
		m.finish(ctx, replaced, OutcomeReplaced)
		m.afterReplace(ctx, replaced.def.ID)
	}

	m.d.Logger.InfoContext(ctx, "Alarm ringing",
		logfields.AlarmID(def.ID), logfields.SessionID(s.id), logfields.TaskKind(string(def.TaskKind)))
	m.emit(events.SessionStarted{SessionID: s.id, AlarmID: def.ID, TaskKind: string(def.TaskKind), At: s.startedAt})
	return true, err
}

func notice(def alarm.Definition) platform.RingingNotice {
	return platform.RingingNotice{AlarmID: def.ID, Label: def.Label, Time: def.TimeString(), TaskKind: string(def.TaskKind)}
}

// startSound plays the alarm's sound, then the configured default, then the device default.
// A nil playback means the session rings silently.
func (m *Manager) startSound(ctx context.Context, def alarm.Definition, cfg settings.Settings) platform.Playback {
	var candidates []string
	for _, ref := range []string{def.SoundRef, cfg.DefaultSound} {
		if ref != "" {
			candidates = append(candidates, ref)
		}
	}
	candidates = append(candidates, "")

	for _, ref := range candidates {
		pb, err := m.d.Sound.PlayLooping(ref)
		if err == nil {
			return pb
		}
		m.d.Logger.WarnContext(ctx, "Alarm sound failed, falling back",
			logfields.AlarmID(def.ID), slog.String("sound", ref), logfields.Error(err))
	}
	m.d.Logger.ErrorContext(ctx, "No alarm sound available, ringing silently", logfields.AlarmID(def.ID))
	return nil
}

func (m *Manager) startTask(ctx context.Context, s *session, cfg settings.Settings) error {
	tk, err := m.d.Tasks.New(s.def.TaskKind, cfg.Targets())
	if err != nil {
		close(s.taskDone)
		s.cancelTask = func() {}
		m.d.Logger.ErrorContext(ctx, "Dismiss task could not be created", logfields.AlarmID(s.def.ID), logfields.Error(err))
		return err
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelTask = cancel
	s.progress = task.Progress{Kind: tk.Kind()}

	go func() {
		defer close(s.taskDone)
		err := tk.Run(taskCtx, func(p task.Progress) { m.onProgress(s, p) })
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, task.ErrSensorUnavailable):
			m.d.Logger.Warn("Dismiss task sensor unavailable", logfields.AlarmID(s.def.ID), logfields.TaskKind(string(s.def.TaskKind)))
		default:
			m.d.Logger.Error("Dismiss task failed", logfields.AlarmID(s.def.ID), logfields.Error(err))
		}
	}()
	return nil
}

func (m *Manager) onProgress(s *session, p task.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != s {
		return
	}
	// Completion latches: a later report cannot take it back.
	if s.progress.Complete && !p.Complete {
		return
	}
	s.progress = p
	m.publishLocked()
}

// Dismiss ends the session once its task is complete. A repeating alarm is scheduled
// for its next occurrence, a one-time alarm is disabled.
func (m *Manager) Dismiss(ctx context.Context) error {
	m.mu.Lock()
	s := m.active
	if s == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	if !s.progress.Complete {
		m.mu.Unlock()
		return ErrTaskIncomplete.WithContext("alarm_id", s.def.ID)
	}
	m.endLocked(ctx, s, OutcomeDismissed)
	m.mu.Unlock()

	m.finish(ctx, s, OutcomeDismissed)
	m.afterDismiss(ctx, s.def.ID)
	return nil
}

// Snooze ends the session and registers a one-off wake-up for the same alarm after the
// configured snooze length. The stored alarm is not modified. If the wake-up cannot be
// registered the alarm keeps ringing.
func (m *Manager) Snooze(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	s := m.active
	if s == nil {
		m.mu.Unlock()
		return time.Time{}, ErrNoActiveSession
	}
	cfg := m.d.Settings.Current()
	if m.snoozes[s.def.ID] >= cfg.MaxSnoozeCount {
		m.mu.Unlock()
		return time.Time{}, ErrSnoozeLimitReached.WithContext("max", cfg.MaxSnoozeCount)
	}

	at := m.d.Clock.Now().Add(time.Duration(cfg.SnoozeMinutes) * time.Minute)
	if err := m.d.Scheduler.ScheduleAt(ctx, s.def.ID, at); err != nil {
		m.mu.Unlock()
		return time.Time{}, err
	}
	m.snoozes[s.def.ID]++
	m.endLocked(ctx, s, OutcomeSnoozed)
	m.mu.Unlock()

	m.finish(ctx, s, OutcomeSnoozed)
	return at, nil
}

// EmergencyTap counts one tap on the escape control. The fifth tap in a row ends the
// session like a dismiss, whatever the task progress.
func (m *Manager) EmergencyTap(ctx context.Context) (remaining int, stopped bool, err error) {
	m.mu.Lock()
	s := m.active
	if s == nil {
		m.mu.Unlock()
		return 0, false, ErrNoActiveSession
	}
	_, fired := s.emergency.Tap(m.d.Clock.Now())
	if !fired {
		remaining = s.emergency.Remaining()
		m.publishLocked()
		m.mu.Unlock()
		return remaining, false, nil
	}
	m.endLocked(ctx, s, OutcomeEmergency)
	m.mu.Unlock()

	m.d.Logger.WarnContext(ctx, "Emergency stop used", logfields.AlarmID(s.def.ID))
	m.finish(ctx, s, OutcomeEmergency)
	m.afterDismiss(ctx, s.def.ID)
	return 0, true, nil
}

// IndicatorTapped brings the ringing surface back when it is not showing.
func (m *Manager) IndicatorTapped(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoActiveSession
	}
	if m.d.Visibility.Visible() {
		return nil
	}
	if err := m.d.Presenter.ShowRinging(notice(m.active.def)); err != nil {
		return errors.WrapError(err, errors.CategoryPlatform, "show ringing surface").Build()
	}
	m.d.Visibility.SetVisible(true)
	return nil
}

// Shutdown stops any ringing session. It is the stop-on-destroy hook of the process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	s := m.active
	if s != nil {
		m.endLocked(ctx, s, OutcomeShutdown)
	}
	m.mu.Unlock()
	if s != nil {
		m.finish(ctx, s, OutcomeShutdown)
	}
}

// Close shuts down the session and stops the notifier.
func (m *Manager) Close(ctx context.Context) {
	m.Shutdown(ctx)

	m.notifyMu.Lock()
	if m.closed {
		m.notifyMu.Unlock()
		return
	}
	m.closed = true
	close(m.notify)
	m.notifyMu.Unlock()
	<-m.notifyDone
}

// endLocked releases every resource of s synchronously and clears it as active.
func (m *Manager) endLocked(ctx context.Context, s *session, outcome Outcome) *session {
	s.cancelTask()
	if s.playback != nil {
		s.playback.Stop()
		s.playback = nil
	}
	if s.vibrating {
		if err := m.d.Vibrator.Stop(); err != nil {
			m.d.Logger.ErrorContext(ctx, "Vibration stop failed", logfields.AlarmID(s.def.ID), logfields.Error(err))
		}
		s.vibrating = false
	}
	if err := m.d.Presenter.ClearRinging(s.def.ID); err != nil {
		m.d.Logger.WarnContext(ctx, "Ringing surface not cleared", logfields.AlarmID(s.def.ID), logfields.Error(err))
	}
	m.d.Visibility.SetVisible(false)

	s.state = outcome.state()
	if outcome == OutcomeDismissed || outcome == OutcomeEmergency {
		delete(m.snoozes, s.def.ID)
	}
	m.active = nil
	m.state.Set(Snapshot{
		State:       s.state,
		SessionID:   s.id,
		AlarmID:     s.def.ID,
		Label:       s.def.Label,
		Time:        s.def.TimeString(),
		TaskKind:    s.def.TaskKind,
		Progress:    s.progress,
		SnoozeCount: m.snoozes[s.def.ID],
		StartedAt:   s.startedAt,
		LastOutcome: outcome,
	})
	m.d.Recorder.SetSessionActive(false)
	return s
}

// finish runs the unlocked part of ending a session: wait for the task goroutine,
// record the trigger as handled and announce the end.
func (m *Manager) finish(ctx context.Context, s *session, outcome Outcome) {
	<-s.taskDone

	ringFor := m.d.Clock.Since(s.startedAt)
	m.d.Recorder.IncSessionOutcome(string(outcome))
	m.d.Recorder.ObserveRingDuration(ringFor)

	if m.d.Ledger != nil && !s.trigger.ScheduledFor.IsZero() && outcome != OutcomeShutdown {
		if _, err := m.d.Ledger.MarkHandled(ctx, s.trigger.AlarmID, s.trigger.ScheduledFor); err != nil {
			m.d.Logger.ErrorContext(ctx, "Failed to record handled trigger", logfields.AlarmID(s.def.ID), logfields.Error(err))
		}
	}

	m.d.Logger.InfoContext(ctx, "Alarm session ended",
		logfields.AlarmID(s.def.ID), logfields.SessionID(s.id), logfields.Outcome(string(outcome)), logfields.Duration(ringFor))
	m.emit(events.SessionEnded{SessionID: s.id, AlarmID: s.def.ID, Outcome: string(outcome), At: m.d.Clock.Now()})
}

// afterDismiss re-reads the record so edits made while ringing are honored.
func (m *Manager) afterDismiss(ctx context.Context, id int64) {
	def, err := m.d.Records.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		m.d.Logger.ErrorContext(ctx, "Alarm lookup after dismiss failed", logfields.AlarmID(id), logfields.Error(err))
		return
	}
	if def.Repeating() {
		if err := m.d.Scheduler.Schedule(ctx, def); err != nil {
			m.d.Logger.ErrorContext(ctx, "Next occurrence not scheduled", logfields.AlarmID(id), logfields.Error(err))
		}
		return
	}
	if err := m.d.Records.SetEnabled(ctx, id, false); err != nil {
		m.d.Logger.ErrorContext(ctx, "One-time alarm not disabled", logfields.AlarmID(id), logfields.Error(err))
		return
	}
	// The ringing trigger may not be the registered one (ad hoc or snoozed rings).
	if err := m.d.Scheduler.Cancel(ctx, id); err != nil {
		m.d.Logger.WarnContext(ctx, "Wake-up not cancelled for consumed alarm", logfields.AlarmID(id), logfields.Error(err))
	}
	m.emit(events.AlarmsChanged{AlarmID: id, Op: "disabled", At: m.d.Clock.Now()})
}

// afterReplace keeps a preempted alarm registered for its next occurrence without consuming it.
func (m *Manager) afterReplace(ctx context.Context, id int64) {
	def, err := m.d.Records.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.d.Logger.ErrorContext(ctx, "Alarm lookup after replace failed", logfields.AlarmID(id), logfields.Error(err))
		}
		return
	}
	if err := m.d.Scheduler.Schedule(ctx, def); err != nil {
		m.d.Logger.ErrorContext(ctx, "Replaced alarm not rescheduled", logfields.AlarmID(id), logfields.Error(err))
	}
}

func (m *Manager) publishLocked() {
	s := m.active
	if s == nil {
		return
	}
	m.state.Set(Snapshot{
		State:         s.state,
		SessionID:     s.id,
		AlarmID:       s.def.ID,
		Label:         s.def.Label,
		Time:          s.def.TimeString(),
		TaskKind:      s.def.TaskKind,
		Progress:      s.progress,
		EmergencyTaps: s.emergency.Required - s.emergency.Remaining(),
		SnoozeCount:   m.snoozes[s.def.ID],
		Silent:        s.state == StateActive && s.playback == nil,
		StartedAt:     s.startedAt,
	})
}

// emit queues a lifecycle event for the bus without blocking the caller.
func (m *Manager) emit(evt any) {
	if m.d.Bus == nil {
		return
	}
	m.notifyMu.RLock()
	defer m.notifyMu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.notify <- evt:
	default:
		m.d.Logger.Warn("Session event dropped, notifier busy")
	}
}

func (m *Manager) notifyLoop() {
	defer close(m.notifyDone)
	for evt := range m.notify {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.d.Bus.Publish(ctx, evt); err != nil {
			m.d.Logger.Debug("Session event not delivered", logfields.Error(err))
		}
		cancel()
	}
}
