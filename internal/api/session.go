package api

import (
	"net/http"

	"git.home.luguber.info/inful/alarmd/internal/platform"
)

func (s *Server) session() SessionResponse {
	return SessionResponse{Snapshot: s.d.Sessions.Snapshot(), Dispatcher: s.d.Triggers.State()}
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Sessions.Dismiss(r.Context()); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session())
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	ringing := s.d.Sessions.Snapshot().AlarmID
	until, err := s.d.Sessions.Snooze(r.Context())
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SnoozeResponse{AlarmID: ringing, Until: until})
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	remaining, stopped, err := s.d.Sessions.EmergencyTap(r.Context())
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TapResponse{Remaining: remaining, Stopped: stopped})
}

func (s *Server) handleIndicator(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Sessions.IndicatorTapped(r.Context()); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrigger queues an ad hoc trigger, the same path an OS wake-up takes.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	if err := s.d.Triggers.Deliver(platform.Trigger{AlarmID: id}); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{AlarmID: id, Queued: true, Pending: s.d.Triggers.Pending()})
}
