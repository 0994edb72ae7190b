// Package api serves the alarmd control API: alarm CRUD, the ringing session,
// ad hoc triggers, the boot signal and a server-sent event stream.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/clock"
	"git.home.luguber.info/inful/alarmd/internal/dispatch"
	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/platform"
	"git.home.luguber.info/inful/alarmd/internal/registry"
	"git.home.luguber.info/inful/alarmd/internal/scheduler"
	"git.home.luguber.info/inful/alarmd/internal/session"
	"git.home.luguber.info/inful/alarmd/internal/settings"
)

const (
	maxBodyBytes   = 64 << 10
	requestTimeout = 30 * time.Second
)

// Alarms is the alarm registry as seen by the API.
type Alarms interface {
	List(ctx context.Context) ([]alarm.Definition, error)
	Get(ctx context.Context, id int64) (alarm.Definition, error)
	Create(ctx context.Context, d alarm.Definition) (registry.Saved, error)
	Update(ctx context.Context, d alarm.Definition) (registry.Saved, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) (registry.Saved, error)
	Delete(ctx context.Context, id int64) error
}

// Sessions is the ringing session manager as seen by the API.
type Sessions interface {
	Snapshot() session.Snapshot
	Dismiss(ctx context.Context) error
	Snooze(ctx context.Context) (time.Time, error)
	EmergencyTap(ctx context.Context) (remaining int, stopped bool, err error)
	IndicatorTapped(ctx context.Context) error
}

// Triggers accepts ad hoc triggers.
type Triggers interface {
	Deliver(trig platform.Trigger) error
	State() dispatch.State
	Pending() int
}

type NextAlarm interface {
	Next() scheduler.NextAlarm
}

type Settings interface {
	Current() settings.Settings
	Save(s settings.Settings) (settings.Settings, error)
}

// Deps are the handlers' collaborators. Metrics, Bus and Settings are optional.
type Deps struct {
	Alarms   Alarms
	Sessions Sessions
	Triggers Triggers
	Next     NextAlarm
	Settings Settings
	Boot     func(ctx context.Context) (BootReport, error)
	Health   func() HealthResponse
	Metrics  http.Handler
	Bus      *events.Bus
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Server routes API requests.
type Server struct {
	d      Deps
	router *chi.Mux
	errs   *errors.HTTPErrorAdapter
}

// NewServer builds the router.
func NewServer(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		d:      d,
		router: chi.NewRouter(),
		errs:   errors.NewHTTPErrorAdapter(d.Logger),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.d.Logger))
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if s.d.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.d.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		// The event stream is long-lived and stays outside the request timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/alarms", s.handleListAlarms)
			r.Post("/alarms", s.handleCreateAlarm)
			r.Get("/alarms/{id}", s.handleGetAlarm)
			r.Put("/alarms/{id}", s.handleUpdateAlarm)
			r.Delete("/alarms/{id}", s.handleDeleteAlarm)
			r.Post("/alarms/{id}/enable", s.handleSetEnabled(true))
			r.Post("/alarms/{id}/disable", s.handleSetEnabled(false))

			r.Get("/session", s.handleSession)
			r.Post("/session/dismiss", s.handleDismiss)
			r.Post("/session/snooze", s.handleSnooze)
			r.Post("/session/tap", s.handleTap)
			r.Post("/session/indicator", s.handleIndicator)

			r.Post("/triggers/{id}", s.handleTrigger)
			r.Post("/boot", s.handleBoot)
			r.Get("/next", s.handleNext)

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.d.Health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: HealthStatusHealthy, Timestamp: s.d.Clock.Now()})
		return
	}
	h := s.d.Health()
	status := http.StatusOK
	if h.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	n := s.d.Next.Next()
	resp := NextResponse{AlarmID: n.AlarmID, TriggerAt: n.TriggerAt}
	if !n.None() {
		resp.TimeUntil = clock.FormatTimeUntil(n.TriggerAt.Sub(s.d.Clock.Now()))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	report, err := s.d.Boot(r.Context())
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.d.Settings == nil {
		s.errs.WriteErrorResponse(w, r, errNoSettings)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Settings.Current())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.d.Settings == nil {
		s.errs.WriteErrorResponse(w, r, errNoSettings)
		return
	}
	var in settings.Settings
	if err := decodeJSON(r, &in); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	saved, err := s.d.Settings.Save(in)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

var (
	errBadBody    = errors.ValidationError("invalid request body").Build()
	errBadID      = errors.ValidationError("invalid alarm id").Build()
	errNoSettings = errors.NotFoundError("settings store not configured").Build()
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadBody.Wrap(err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID.WithContext("id", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
