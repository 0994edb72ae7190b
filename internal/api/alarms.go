package api

import (
	"net/http"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
	"git.home.luguber.info/inful/alarmd/internal/clock"
)

func (s *Server) view(d alarm.Definition) AlarmView {
	v := AlarmView{Definition: d, Repeat: d.RepeatDays.Describe()}
	if d.Enabled {
		now := s.d.Clock.Now()
		v.NextTrigger = clock.Next(d, now)
		v.TimeUntil = clock.FormatTimeUntil(v.NextTrigger.Sub(now))
	}
	return v
}

func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	defs, err := s.d.Alarms.List(r.Context())
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	out := make([]AlarmView, 0, len(defs))
	for _, d := range defs {
		out = append(out, s.view(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	d, err := s.d.Alarms.Get(r.Context(), id)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(d))
}

func (s *Server) handleCreateAlarm(w http.ResponseWriter, r *http.Request) {
	var req AlarmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	saved, err := s.d.Alarms.Create(r.Context(), req.apply(alarm.Definition{Enabled: true}))
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	var req AlarmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	existing, err := s.d.Alarms.Get(r.Context(), id)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	saved, err := s.d.Alarms.Update(r.Context(), req.apply(existing))
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.errs.WriteErrorResponse(w, r, err)
			return
		}
		saved, err := s.d.Alarms.SetEnabled(r.Context(), id, enabled)
		if err != nil {
			s.errs.WriteErrorResponse(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func (s *Server) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	if err := s.d.Alarms.Delete(r.Context(), id); err != nil {
		s.errs.WriteErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
