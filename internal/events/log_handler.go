package events

import (
	"context"
	"log/slog"
	"time"
)

// LogRecord is the payload of a Log event.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogHandler forwards log records to the UI as Log events.
type LogHandler struct {
	emitter Emitter
	level   slog.Leveler
	attrs   []slog.Attr
	group   string
}

func NewLogHandler(e Emitter, level slog.Leveler) *LogHandler {
	return &LogHandler{emitter: e, level: level}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	rec := LogRecord{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		rec.Attrs = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			rec.Attrs[a.Key] = a.Value.Resolve().Any()
		}

		r.Attrs(func(a slog.Attr) bool {
			rec.Attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()

			return true
		})
	}

	// a listener-less UI is not a logging failure
	_ = h.emitter.Emit(Log, rec)

	return nil
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)

	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}

	return &next
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	next.group = h.qualify(name)

	return &next
}

func (h *LogHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}

	return h.group + "." + key
}
