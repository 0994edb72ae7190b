package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/events"
	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

const (
	streamBuffer    = 16
	streamKeepAlive = 30 * time.Second
)

// StreamEvent is one server-sent event on GET /api/events.
type StreamEvent struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

var errNoStream = errors.NotFoundError("event stream not available").Build()

// handleEvents streams lifecycle events as server-sent events until the client leaves.
// A client that does not keep up loses events rather than stalling publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.d.Bus == nil {
		s.errs.WriteErrorResponse(w, r, errNoStream)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	busCh, unsubscribe := events.Subscribe[events.Event](s.d.Bus, streamBuffer)
	defer unsubscribe()

	out := make(chan events.Event, streamBuffer)
	go func() {
		defer close(out)
		for evt := range busCh {
			select {
			case out <- evt:
			default:
				s.d.Logger.Warn("Event stream full, dropping event", "event", evt.EventName())
			}
		}
	}()

	s.sendSSE(w, rc, StreamEvent{Name: "connected"})
	s.d.Logger.Debug("Event stream opened", "remote", r.RemoteAddr)

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.d.Logger.Debug("Event stream closed", "remote", r.RemoteAddr)
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			_ = rc.Flush()
		case evt, ok := <-out:
			if !ok {
				return
			}
			s.sendSSE(w, rc, StreamEvent{Name: evt.EventName(), Data: evt})
		}
	}
}

func (s *Server) sendSSE(w http.ResponseWriter, rc *http.ResponseController, evt StreamEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.d.Logger.Error("Failed to marshal stream event", logfields.Error(err))
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data)
	if err := rc.Flush(); err != nil {
		s.d.Logger.Warn("Response writer does not support flushing", logfields.Error(err))
	}
}
