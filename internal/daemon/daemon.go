// Package daemon is the alarmd composition root. It builds every service exactly once,
// wires the platform backends to the scheduling core and serves the control API.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/alarmd/internal/api"
	"git.home.luguber.info/inful/alarmd/internal/config"
	"git.home.luguber.info/inful/alarmd/internal/dispatch"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/metrics"
	"git.home.luguber.info/inful/alarmd/internal/observability"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/platform/gocronwake"
	"git.home.luguber.info/inful/alarmd/internal/platform/natsbridge"
	"git.home.luguber.info/inful/alarmd/internal/platform/otoaudio"
	"git.home.luguber.info/inful/alarmd/internal/registry"
	"git.home.luguber.info/inful/alarmd/internal/retry"
	"git.home.luguber.info/inful/alarmd/internal/scheduler"
	"git.home.luguber.info/inful/alarmd/internal/session"
	"git.home.luguber.info/inful/alarmd/internal/settings"
	"git.home.luguber.info/inful/alarmd/internal/store"
	"git.home.luguber.info/inful/alarmd/internal/task"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

var (
	ErrNotStopped = errors.DaemonError("daemon is not in stopped state").Build()
	ErrBindFailed = errors.DaemonError("failed to bind control API listener").Fatal().Build()
)

type options struct {
	clock  clockwork.Clock
	logger *slog.Logger
	sound  platform.SoundPlayer
}

// Option customizes New.
type Option func(*options)

func WithClock(c clockwork.Clock) Option      { return func(o *options) { o.clock = c } }
func WithLogger(l *slog.Logger) Option        { return func(o *options) { o.logger = l } }
func WithSound(p platform.SoundPlayer) Option { return func(o *options) { o.sound = p } }

// Daemon owns the process-wide services.
type Daemon struct {
	cfg    *config.Config
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	status    atomic.Value // Status
	startTime time.Time
	stopChan  chan struct{}

	store      *store.SQLiteStore
	prefs      *settings.FileStore
	watcher    *settings.Watcher
	promReg    *prom.Registry
	bus        *events.Bus
	wakeups    *gocronwake.Service
	scheduler  *scheduler.Scheduler
	sessions   *session.Manager
	dispatcher *dispatch.Dispatcher
	alarms     *registry.Registry
	bridge     *natsbridge.Bridge
	soundReady bool
	api        *api.Server
	http       *httpServer

	cancel   context.CancelFunc
	bridgeWG sync.WaitGroup
	closers  []func()
	closed   bool
}

// New builds the daemon from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	o := options{clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = slog.New(observability.NewContextHandler(o.logger.Handler()))

	d := &Daemon{cfg: cfg, clock: o.clock, logger: o.logger, stopChan: make(chan struct{})}
	d.status.Store(StatusStopped)

	st, err := store.NewSQLiteStore(ctx, cfg.Database.Path, store.WithClock(d.clock))
	if err != nil {
		return nil, err
	}
	d.store = st

	prefs, err := settings.OpenFile(cfg.Settings.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	d.prefs = prefs

	d.promReg = metrics.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(d.promReg)
	d.bus = events.NewBus()

	d.wakeups, err = gocronwake.New(d.onTrigger,
		gocronwake.WithClock(d.clock),
		gocronwake.WithLogger(d.logger),
		gocronwake.WithPermitted(cfg.Wakeups.Permitted()))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	d.scheduler = scheduler.New(d.wakeups,
		scheduler.WithClock(d.clock),
		scheduler.WithRecorder(recorder),
		scheduler.WithLogger(d.logger))

	sensors := platform.Sensors{}
	var vibrator platform.Vibrator = headlessVibrator{logger: d.logger}
	var presenter platform.Presenter = headlessPresenter{logger: d.logger}
	if cfg.NATS.Enabled {
		d.bridge, err = natsbridge.Connect(ctx, natsbridge.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Policy:        retry.FromConfig(cfg.NATS.Retry),
		}, d.logger)
		if err != nil {
			// Alarms must ring without the companion device.
			d.logger.Error("Companion bridge unavailable, running headless", logfields.Error(err))
		} else {
			sensors = d.bridge.Sensors()
			vibrator = d.bridge.Vibrator()
			presenter = d.bridge.Presenter()
		}
	}

	sound := o.sound
	if sound == nil {
		sound = d.openSound()
	} else {
		d.soundReady = true
	}

	d.sessions = session.NewManager(session.Deps{
		Records:   st,
		Scheduler: d.scheduler,
		Tasks:     task.NewEngine(sensors, d.clock),
		Sound:     sound,
		Vibrator:  vibrator,
		Presenter: presenter,
		Settings:  prefs,
		Ledger:    st,
		Bus:       d.bus,
		Recorder:  recorder,
		Clock:     d.clock,
		Logger:    d.logger,
	})
	d.dispatcher = dispatch.New(dispatch.Deps{
		Records:    st,
		Sessions:   d.sessions,
		Ledger:     st,
		Deliveries: d.scheduler,
		Bus:        d.bus,
		Recorder:   recorder,
		Clock:      d.clock,
		Logger:     d.logger,
	})
	d.alarms = registry.New(st, d.scheduler,
		registry.WithBus(d.bus),
		registry.WithSettings(prefs),
		registry.WithClock(d.clock),
		registry.WithLogger(d.logger))

	d.watcher, err = settings.NewWatcher(prefs, cfg.Settings.ReloadDebounce.Duration(), func(s settings.Settings) {
		d.logger.Info("Settings applied", slog.Int("snooze_minutes", s.SnoozeMinutes),
			slog.Int("step_target", s.StepTarget), logfields.TaskKind(string(s.DefaultTaskKind)))
	})
	if err != nil {
		d.logger.Warn("Settings hot reload disabled", logfields.Error(err))
	}

	d.api = api.NewServer(api.Deps{
		Alarms:   d.alarms,
		Sessions: d.sessions,
		Triggers: d.dispatcher,
		Next:     d.scheduler,
		Settings: prefs,
		Boot:     d.Boot,
		Health:   d.Health,
		Metrics:  metrics.HTTPHandler(d.promReg),
		Bus:      d.bus,
		Clock:    d.clock,
		Logger:   d.logger,
	})
	d.http = newHTTPServer(cfg.HTTP.Listen, d.api.Handler(), d.logger)
	return d, nil
}

func (d *Daemon) openSound() platform.SoundPlayer {
	popts := []otoaudio.Option{
		otoaudio.WithSoundDir(d.cfg.Sound.Dir),
		otoaudio.WithDefaultPath(d.cfg.Sound.DefaultPath),
		otoaudio.WithLogger(d.logger),
	}
	if d.cfg.Sound.Disabled {
		d.logger.Info("Sound output disabled, alarms ring silently")
		return otoaudio.NewPlayer(nil, popts...)
	}
	dev, err := otoaudio.OpenDevice(otoaudio.DefaultFormat)
	if err != nil {
		d.logger.Warn("Audio device unavailable, alarms ring silently", logfields.Error(err))
		return otoaudio.NewPlayer(nil, popts...)
	}
	d.soundReady = true
	return otoaudio.NewPlayer(dev, popts...)
}

// onTrigger is the OS boundary for wake-ups and inbound bridge triggers.
func (d *Daemon) onTrigger(trig platform.Trigger) {
	d.dispatcher.TriggerFunc()(trig)
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	if v, ok := d.status.Load().(Status); ok {
		return v
	}
	return StatusError
}

// Addr is the bound control API address; empty before Start.
func (d *Daemon) Addr() string { return d.http.Addr() }

// Handler exposes the control API router.
func (d *Daemon) Handler() http.Handler { return d.api.Handler() }

// Start runs every component, performs the boot reschedule and blocks until ctx is
// done or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed || d.GetStatus() != StatusStopped {
		d.mu.Unlock()
		return ErrNotStopped.WithContext("status", string(d.GetStatus()))
	}
	d.status.Store(StatusStarting)
	d.startTime = d.clock.Now()
	d.logger.InfoContext(ctx, "Starting alarmd daemon", slog.String("listen", d.cfg.HTTP.Listen))

	// Bind first so a port conflict fails before any alarm is registered.
	if err := d.http.Listen(); err != nil {
		d.status.Store(StatusError)
		d.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.dispatcher.Start(runCtx)
	d.wakeups.Start(runCtx)
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			d.logger.WarnContext(ctx, "Settings watcher not started", logfields.Error(err))
		}
	}
	if d.bridge != nil {
		d.startBridge(runCtx)
	}

	if report, err := d.Boot(runCtx); err != nil {
		d.logger.ErrorContext(ctx, "Boot reschedule failed", logfields.Error(err))
	} else {
		d.logger.InfoContext(ctx, "Boot reschedule complete",
			slog.Int("rescheduled", report.Rescheduled), slog.Int64("pruned", report.Pruned))
	}

	d.http.Serve()
	d.status.Store(StatusRunning)
	d.logger.InfoContext(ctx, "alarmd daemon started", slog.String("addr", d.http.Addr()))
	d.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-d.stopChan:
	}
	return nil
}

func (d *Daemon) startBridge(ctx context.Context) {
	sub, err := d.bridge.Serve(natsbridge.Inbound{
		Trigger: d.onTrigger,
		Boot: func() {
			if _, err := d.Boot(ctx); err != nil {
				d.logger.Error("Bridge boot signal failed", logfields.Error(err))
			}
		},
		Visibility: d.sessions.Visibility().SetVisible,
	})
	if err != nil {
		d.logger.Error("Bridge inbound subscriptions failed", logfields.Error(err))
	} else {
		d.closers = append(d.closers, func() { _ = sub.Close() })
	}

	d.bridgeWG.Add(1)
	go func() {
		defer d.bridgeWG.Done()
		d.bridge.RelayEvents(ctx, d.bus)
	}()

	unwatch := d.scheduler.WatchNext(func(n scheduler.NextAlarm) {
		if err := d.bridge.PublishNext(n.AlarmID, n.TriggerAt); err != nil {
			d.logger.Warn("Next-alarm indicator not published", logfields.Error(err))
		}
	})
	d.closers = append(d.closers, unwatch)
}

// Boot rebuilds every enabled alarm's wake-up and prunes the trigger ledger. It runs at
// start and whenever a boot-completed signal arrives.
func (d *Daemon) Boot(ctx context.Context) (api.BootReport, error) {
	var report api.BootReport
	enabled, err := d.store.Enabled(ctx)
	if err != nil {
		return report, err
	}
	if err := d.scheduler.RescheduleAll(ctx, enabled); err != nil {
		for _, e := range unwrapJoined(err) {
			report.Errors = append(report.Errors, e.Error())
		}
	}
	report.Rescheduled = len(enabled) - len(report.Errors)

	cutoff := d.clock.Now().Add(-d.cfg.Database.LedgerRetention.Duration())
	pruned, err := d.store.PruneHandled(ctx, cutoff)
	if err != nil {
		d.logger.WarnContext(ctx, "Trigger ledger prune failed", logfields.Error(err))
	}
	report.Pruned = pruned
	return report, nil
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// Stop shuts every component down in reverse dependency order. A ringing alarm is
// silenced; its wake-up is rebuilt by the next boot reschedule. Stop is safe to call
// on a daemon that never started.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	started := d.cancel != nil

	d.status.Store(StatusStopping)
	d.logger.InfoContext(ctx, "Stopping alarmd daemon")
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}

	var errs []error
	if err := d.http.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, c := range d.closers {
		c()
	}
	d.closers = nil

	d.dispatcher.Stop(ctx)
	if err := d.wakeups.Stop(ctx); err != nil && started {
		errs = append(errs, err)
	}
	d.sessions.Close(ctx)
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.WarnContext(ctx, "Failed to stop settings watcher", logfields.Error(err))
		}
	}
	if started {
		d.cancel()
	}
	d.bridgeWG.Wait()
	if d.bridge != nil {
		if err := d.bridge.Close(); err != nil {
			d.logger.WarnContext(ctx, "Failed to drain bridge", logfields.Error(err))
		}
	}
	d.bus.Close()
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}

	d.status.Store(StatusStopped)
	d.logger.InfoContext(ctx, "alarmd daemon stopped")
	return errors.Join(errs...)
}
