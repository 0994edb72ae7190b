package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/observability"
)

// RequestLogger logs one line per request at debug level, warn for server errors.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(observability.WithRequestID(r.Context(), middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "HTTP request",
				slog.String("method", r.Method),
				logfields.Path(r.URL.Path),
				slog.Int("status", ww.Status()),
				logfields.Duration(time.Since(start)),
				slog.String(observability.KeyRequestID, middleware.GetReqID(r.Context())),
			)
		})
	}
}
