// Package logs wires the launcher's log sinks: colorized stdout, a JSON
// log file, and a forwarder that mirrors error records into the monitoring
// sink.
package logs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/decentraland/launcher/monitoring"
)

// Setup builds the combined logger. The returned closer flushes and closes
// the log file.
func Setup(logPath string, sink monitoring.Sink, verbose bool) (log *slog.Logger, closer func() error, err error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", logPath, err)
	}

	handler := newFanout(
		tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.RFC3339}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
		monitoring.NewHandler(sink),
	)
	return slog.New(handler), file.Close, nil
}

// fanout dispatches each record to every inner handler that accepts its
// level. A record is produced when any handler wants it; Handle re-checks
// per handler.
type fanout struct {
	handlers []slog.Handler
}

func newFanout(handlers ...slog.Handler) *fanout {
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: handlers}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &fanout{handlers: handlers}
}
