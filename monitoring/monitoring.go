// Package monitoring defines the crash/error reporting sink the launcher
// forwards to. SDK wiring lives in the host application; the core only
// talks to this interface.
package monitoring

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives error reports. Implementations must be safe for concurrent
// use and must never fail the caller.
type Sink interface {
	CaptureError(err error)
	CaptureMessage(message string)
	// Flush blocks until buffered reports are delivered or the timeout
	// elapses.
	Flush(timeout time.Duration)
}

// NullSink drops everything. Used when no monitoring DSN is configured.
type NullSink struct{}

func (NullSink) CaptureError(error)    {}
func (NullSink) CaptureMessage(string) {}
func (NullSink) Flush(time.Duration)   {}

// Handler is a slog.Handler that forwards error-level records to the sink,
// so every error! logged anywhere also reaches monitoring.
type Handler struct {
	sink  Sink
	attrs []slog.Attr
}

func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	message := record.Message
	capture := func(attr slog.Attr) bool {
		if attr.Key == "error" {
			if err, ok := attr.Value.Any().(error); ok {
				h.sink.CaptureError(err)
				return false
			}
		}
		return true
	}
	captured := true
	for _, attr := range h.attrs {
		captured = capture(attr) && captured
	}
	record.Attrs(func(attr slog.Attr) bool {
		captured = capture(attr) && captured
		return true
	})
	if captured {
		h.sink.CaptureMessage(message)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{sink: h.sink, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *Handler) WithGroup(string) slog.Handler {
	return h
}
