// Package observability carries log correlation ids through a context.Context and
// attaches them to every record logged with that context.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

// KeyRequestID is the control API request id attribute.
const KeyRequestID = "request_id"

// LogContext holds the correlation ids known for a call chain.
type LogContext struct {
	AlarmID    int64
	SessionID  string
	DispatchID string
	RequestID  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithAlarmID adds an alarm id to the context.
func WithAlarmID(ctx context.Context, id int64) context.Context {
	lc := GetContext(ctx)
	lc.AlarmID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithSessionID adds a ringing session id to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	lc := GetContext(ctx)
	lc.SessionID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithDispatchID adds a trigger dispatch id to the context.
func WithDispatchID(ctx context.Context, id string) context.Context {
	lc := GetContext(ctx)
	lc.DispatchID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRequestID adds a control API request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	lc := GetContext(ctx)
	lc.RequestID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the correlation ids stored in ctx.
func GetContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func (lc LogContext) attrs() []slog.Attr {
	var attrs []slog.Attr
	if lc.AlarmID != 0 {
		attrs = append(attrs, logfields.AlarmID(lc.AlarmID))
	}
	if lc.SessionID != "" {
		attrs = append(attrs, logfields.SessionID(lc.SessionID))
	}
	if lc.DispatchID != "" {
		attrs = append(attrs, logfields.DispatchID(lc.DispatchID))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, slog.String(KeyRequestID, lc.RequestID))
	}
	return attrs
}

// ContextHandler wraps a slog.Handler and appends the context's correlation ids to each
// record. Keys already bound with Logger.With or set on the record are not repeated.
type ContextHandler struct {
	next    slog.Handler
	bound   map[string]struct{}
	grouped bool
}

// NewContextHandler wraps next. Wrapping a ContextHandler returns it unchanged.
func NewContextHandler(next slog.Handler) slog.Handler {
	if h, ok := next.(*ContextHandler); ok {
		return h
	}
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := GetContext(ctx).attrs()
	if len(extra) == 0 || h.grouped {
		return h.next.Handle(ctx, r)
	}
	present := make(map[string]struct{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = struct{}{}
		return true
	})
	r = r.Clone()
	for _, a := range extra {
		if _, ok := h.bound[a.Key]; ok {
			continue
		}
		if _, ok := present[a.Key]; ok {
			continue
		}
		r.AddAttrs(a)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]struct{}, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = struct{}{}
	}
	if !h.grouped {
		for _, a := range attrs {
			bound[a.Key] = struct{}{}
		}
	}
	return &ContextHandler{next: h.next.WithAttrs(attrs), bound: bound, grouped: h.grouped}
}

// WithGroup disables id injection: the ids belong at the top level, not inside a group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{next: h.next.WithGroup(name), bound: h.bound, grouped: true}
}
