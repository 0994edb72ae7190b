package daemon

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

// httpServer runs the control API on a listener bound before the server starts.
type httpServer struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func newHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *httpServer {
	return &httpServer{addr: addr, handler: handler, logger: logger}
}

// Listen binds the configured address so a port conflict surfaces before anything else starts.
func (s *httpServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return ErrBindFailed.Wrap(err).WithContext("listen", s.addr)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve starts serving on the bound listener in the background.
func (s *httpServer) Serve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil || s.srv != nil {
		return
	}
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv, ln := s.srv, s.ln
	go func() {
		if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Control API server error", logfields.Error(err))
		}
	}()
	s.logger.Info("Control API listening", slog.String("addr", ln.Addr().String()))
}

// Addr returns the bound address, or "" before Listen.
func (s *httpServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down. A bound but unserved listener is closed.
func (s *httpServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.srv != nil:
		err := s.srv.Shutdown(ctx)
		s.srv, s.ln = nil, nil
		if err != nil {
			return err
		}
		s.logger.Info("Control API stopped")
	case s.ln != nil:
		err := s.ln.Close()
		s.ln = nil
		return err
	}
	return nil
}
