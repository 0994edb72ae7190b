// Package gocronwake implements the exact wake-up primitive on top of gocron one-time jobs.
package gocronwake

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

const tagPrefix = "alarm-"

func tag(id int64) string { return tagPrefix + strconv.FormatInt(id, 10) }

// Service registers one gocron job per alarm id. Jobs are tagged alarm-<id>; a new
// registration removes the tagged job before adding its replacement.
type Service struct {
	scheduler gocron.Scheduler
	onTrigger platform.TriggerFunc
	permitted atomic.Bool
	logger    *slog.Logger

	mu sync.Mutex
}

type options struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	permitted bool
}

type Option func(*options)

func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }
func WithLogger(l *slog.Logger) Option   { return func(o *options) { o.logger = l } }

// WithPermitted sets whether exact wake-ups are authorized. Default true.
func WithPermitted(ok bool) Option { return func(o *options) { o.permitted = ok } }

// New creates the service. onTrigger is called from the gocron executor and must return quickly.
func New(onTrigger platform.TriggerFunc, opts ...Option) (*Service, error) {
	o := options{logger: slog.Default(), permitted: true}
	for _, opt := range opts {
		opt(&o)
	}

	var schedOpts []gocron.SchedulerOption
	if o.clock != nil {
		schedOpts = append(schedOpts, gocron.WithClock(o.clock))
	}
	s, err := gocron.NewScheduler(schedOpts...)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryPlatform, "failed to create gocron scheduler").Build()
	}

	svc := &Service{scheduler: s, onTrigger: onTrigger, logger: o.logger}
	svc.permitted.Store(o.permitted)
	return svc, nil
}

// Start begins running registered jobs.
func (s *Service) Start(ctx context.Context) {
	s.logger.InfoContext(ctx, "Starting wake-up scheduler")
	s.scheduler.Start()
}

// Stop shuts down the scheduler. Pending registrations are lost; the boot reschedule
// rebuilds them on the next start.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping wake-up scheduler")
	return s.scheduler.Shutdown()
}

func (s *Service) CanScheduleExact() bool { return s.permitted.Load() }

// SetPermitted grants or revokes exact wake-up authorization.
func (s *Service) SetPermitted(ok bool) { s.permitted.Store(ok) }

func (s *Service) ScheduleExactAt(ctx context.Context, id int64, at time.Time) error {
	if !s.permitted.Load() {
		return platform.ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.RemoveByTags(tag(id))
	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(s.fire, id, at),
		gocron.WithName(fmt.Sprintf("alarm %d at %s", id, at.Format(time.RFC3339))),
		gocron.WithTags(tag(id)),
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryPlatform, "failed to create wake-up job").
			WithContext("alarm_id", id).
			Build()
	}
	s.logger.DebugContext(ctx, "Wake-up job registered", logfields.AlarmID(id), logfields.TriggerAt(at))
	return nil
}

func (s *Service) Cancel(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.RemoveByTags(tag(id))
	s.logger.DebugContext(ctx, "Wake-up job removed", logfields.AlarmID(id))
	return nil
}

// Registered lists the pending wake-ups keyed by alarm id.
func (s *Service) Registered() map[int64]time.Time {
	out := make(map[int64]time.Time)
	for _, job := range s.scheduler.Jobs() {
		id, ok := jobAlarmID(job.Tags())
		if !ok {
			continue
		}
		next, err := job.NextRun()
		if err != nil || next.IsZero() {
			continue
		}
		out[id] = next
	}
	return out
}

func jobAlarmID(tags []string) (int64, bool) {
	for _, t := range tags {
		if rest, ok := strings.CutPrefix(t, tagPrefix); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

func (s *Service) fire(id int64, at time.Time) {
	s.logger.Info("Wake-up fired", logfields.AlarmID(id), logfields.TriggerAt(at))
	if s.onTrigger == nil {
		s.logger.Error("Wake-up fired without a trigger handler", logfields.AlarmID(id))
		return
	}
	s.onTrigger(platform.Trigger{AlarmID: id, ScheduledFor: at})
}
