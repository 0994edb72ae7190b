// Package registry is the write path for alarms: every mutation of the record store is
// followed by re-syncing the alarm's wake-up.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/clock"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/settings"
	"git.home.luguber.info/inful/alarmd/internal/store"
)

// Scheduler is the wake-up side of a mutation.
type Scheduler interface {
	Schedule(ctx context.Context, a alarm.Definition) error
	Cancel(ctx context.Context, id int64) error
}

// Saved is the result of a mutation. Warning carries a scheduling failure: the record was
// written but its wake-up is not registered.
type Saved struct {
	Alarm       alarm.Definition `json:"alarm"`
	NextTrigger time.Time        `json:"next_trigger,omitzero"`
	Warning     string           `json:"warning,omitempty"`
}

type Registry struct {
	alarms    store.Alarms
	scheduler Scheduler
	settings  settings.Provider
	bus       *events.Bus
	clock     clockwork.Clock
	logger    *slog.Logger
}

type Option func(*Registry)

func WithBus(b *events.Bus) Option           { return func(r *Registry) { r.bus = b } }
func WithSettings(p settings.Provider) Option { return func(r *Registry) { r.settings = p } }
func WithClock(c clockwork.Clock) Option      { return func(r *Registry) { r.clock = c } }
func WithLogger(l *slog.Logger) Option        { return func(r *Registry) { r.logger = l } }

func New(alarms store.Alarms, scheduler Scheduler, opts ...Option) *Registry {
	r := &Registry{
		alarms:    alarms,
		scheduler: scheduler,
		settings:  settings.Static{},
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) List(ctx context.Context) ([]alarm.Definition, error) {
	return r.alarms.All(ctx)
}

func (r *Registry) Get(ctx context.Context, id int64) (alarm.Definition, error) {
	return r.alarms.Get(ctx, id)
}

// Create stores a new alarm and registers its first wake-up. An empty task kind takes
// the configured default.
func (r *Registry) Create(ctx context.Context, d alarm.Definition) (Saved, error) {
	if d.TaskKind == "" {
		d.TaskKind = r.settings.Current().DefaultTaskKind
	}
	id, err := r.alarms.Insert(ctx, d)
	if err != nil {
		return Saved{}, err
	}
	stored, err := r.alarms.Get(ctx, id)
	if err != nil {
		return Saved{}, err
	}
	return r.sync(ctx, stored, "created"), nil
}

// Update replaces the stored alarm and moves its wake-up.
func (r *Registry) Update(ctx context.Context, d alarm.Definition) (Saved, error) {
	if d.TaskKind == "" {
		d.TaskKind = r.settings.Current().DefaultTaskKind
	}
	if err := r.alarms.Update(ctx, d); err != nil {
		return Saved{}, err
	}
	stored, err := r.alarms.Get(ctx, d.ID)
	if err != nil {
		return Saved{}, err
	}
	return r.sync(ctx, stored, "updated"), nil
}

func (r *Registry) SetEnabled(ctx context.Context, id int64, enabled bool) (Saved, error) {
	if err := r.alarms.SetEnabled(ctx, id, enabled); err != nil {
		return Saved{}, err
	}
	stored, err := r.alarms.Get(ctx, id)
	if err != nil {
		return Saved{}, err
	}
	op := "disabled"
	if enabled {
		op = "enabled"
	}
	return r.sync(ctx, stored, op), nil
}

// Delete removes the alarm and its wake-up. A wake-up that fires in between finds no record
// and is aborted by the dispatcher.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.alarms.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.scheduler.Cancel(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "Wake-up not cancelled for deleted alarm", logfields.AlarmID(id), logfields.Error(err))
	}
	r.changed(ctx, id, "deleted")
	return nil
}

func (r *Registry) sync(ctx context.Context, d alarm.Definition, op string) Saved {
	saved := Saved{Alarm: d}
	if d.Enabled {
		if err := r.scheduler.Schedule(ctx, d); err != nil {
			saved.Warning = err.Error()
		} else {
			saved.NextTrigger = clock.Next(d, r.clock.Now())
		}
	} else if err := r.scheduler.Cancel(ctx, d.ID); err != nil {
		saved.Warning = err.Error()
	}
	if saved.Warning != "" {
		r.logger.WarnContext(ctx, "Alarm saved but wake-up not synced",
			logfields.AlarmID(d.ID), slog.String("op", op), slog.String("warning", saved.Warning))
	}
	r.changed(ctx, d.ID, op)
	return saved
}

func (r *Registry) changed(ctx context.Context, id int64, op string) {
	r.logger.InfoContext(ctx, "Alarm "+op, logfields.AlarmID(id))
	if r.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := r.bus.Publish(pubCtx, events.AlarmsChanged{AlarmID: id, Op: op, At: r.clock.Now()}); err != nil {
		r.logger.Debug("Alarm change event not delivered", logfields.Error(err))
	}
}
