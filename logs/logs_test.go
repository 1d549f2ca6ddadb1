package logs

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type countingHandler struct {
	level slog.Level
	mu    sync.Mutex
	count int
}

func (h *countingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func TestFanout(t *testing.T) {
	t.Run("each handler sees records at its own level", func(t *testing.T) {
		info := &countingHandler{level: slog.LevelInfo}
		errOnly := &countingHandler{level: slog.LevelError}
		log := slog.New(newFanout(info, errOnly))

		log.Info("one")
		log.Error("two")

		if info.count != 2 {
			t.Errorf("info handler expected 2 records, got %d", info.count)
		}
		if errOnly.count != 1 {
			t.Errorf("error handler expected 1 record, got %d", errOnly.count)
		}
	})
	t.Run("a record below every level is dropped", func(t *testing.T) {
		info := &countingHandler{level: slog.LevelInfo}
		log := slog.New(newFanout(info))

		log.Debug("hidden")
		if info.count != 0 {
			t.Errorf("expected no records, got %d", info.count)
		}
	})
	t.Run("with attrs applies to every handler", func(t *testing.T) {
		info := &countingHandler{level: slog.LevelInfo}
		log := slog.New(newFanout(info)).With(slog.String("component", "test"))
		log.Info("attributed", slog.Time("at", time.Now()))
		if info.count != 1 {
			t.Errorf("expected 1 record, got %d", info.count)
		}
	})
}
