package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	errors   []error
	messages []string
}

func (s *recordingSink) CaptureError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *recordingSink) CaptureMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *recordingSink) Flush(time.Duration) {}

func TestHandler(t *testing.T) {
	t.Run("forwards only error level records", func(t *testing.T) {
		sink := &recordingSink{}
		log := slog.New(NewHandler(sink))

		log.Info("routine")
		log.Error("broken")

		if len(sink.messages) != 1 || sink.messages[0] != "broken" {
			t.Errorf("expected only the error record, got %v", sink.messages)
		}
	})
	t.Run("prefers the error attribute over the message", func(t *testing.T) {
		sink := &recordingSink{}
		log := slog.New(NewHandler(sink))

		cause := errors.New("disk on fire")
		log.Error("install failed", slog.Any("error", cause))

		if len(sink.errors) != 1 || !errors.Is(sink.errors[0], cause) {
			t.Errorf("expected the wrapped error to be captured, got %v", sink.errors)
		}
		if len(sink.messages) != 0 {
			t.Errorf("message must not be double-reported, got %v", sink.messages)
		}
	})
	t.Run("enabled only at error level", func(t *testing.T) {
		h := NewHandler(&recordingSink{})
		if h.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("info must not be enabled")
		}
		if !h.Enabled(context.Background(), slog.LevelError) {
			t.Error("error must be enabled")
		}
	})
}
