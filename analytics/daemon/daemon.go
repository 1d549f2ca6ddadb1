// Package daemon drains the analytics event queue in the background with
// at-least-once delivery: an event is only consumed from the queue after the
// sender confirms it, so a crash between send and consume causes a resend,
// never a loss.
package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/decentraland/launcher/analytics/queue"
)

const (
	// DefaultProcessDelayAfterError is how long the loop backs off after a
	// failed send before retrying the same event.
	DefaultProcessDelayAfterError = 200 * time.Millisecond

	// DefaultDrainTimeout bounds WaitUntilEmptyOrDeadline on shutdown.
	DefaultDrainTimeout = 500 * time.Millisecond

	drainPollInterval = 50 * time.Millisecond
)

// Sender delivers a single queued message to the analytics vendor.
type Sender interface {
	Send(ctx context.Context, message json.RawMessage) error
}

// Daemon owns the background send loop over a queue.
type Daemon struct {
	log          *slog.Logger
	queue        queue.Queue
	sender       Sender
	processDelay time.Duration
	clock        clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(log *slog.Logger, q queue.Queue, sender Sender, processDelay time.Duration) *Daemon {
	if processDelay <= 0 {
		processDelay = DefaultProcessDelayAfterError
	}
	return &Daemon{
		log:          log,
		queue:        q,
		sender:       sender,
		processDelay: processDelay,
		clock:        clockwork.NewRealClock(),
	}
}

// SetClock replaces the daemon clock, for tests.
func (d *Daemon) SetClock(clock clockwork.Clock) {
	d.clock = clock
}

// Start launches the send loop. A running loop is stopped first.
func (d *Daemon) Start() {
	d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		for {
			sent, err := d.sendOne(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				d.log.Error("cannot send event, will retry", slog.Any("error", err))
			}
			if sent && err == nil {
				continue
			}
			// Back off after a failure, idle while the queue is empty.
			select {
			case <-ctx.Done():
				return
			case <-d.clock.After(d.processDelay):
			}
		}
	}()
}

// Stop cancels the send loop and waits for it to exit. Safe to call when
// not running.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// WaitUntilEmptyOrDeadline polls the queue until it drains or the timeout
// elapses, reporting whether it drained.
func (d *Daemon) WaitUntilEmptyOrDeadline(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	deadline := d.clock.Now().Add(timeout)
	for {
		_, ok, err := d.queue.Peek()
		if err != nil {
			d.log.Error("cannot peek event queue while draining", slog.Any("error", err))
			return false
		}
		if !ok {
			return true
		}
		if !d.clock.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-d.clock.After(drainPollInterval):
		}
	}
}

// sendOne delivers the oldest queued event. It reports whether an event was
// available; delivery failures leave the event queued for retry.
func (d *Daemon) sendOne(ctx context.Context) (sent bool, err error) {
	event, ok, err := d.queue.Peek()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := d.sender.Send(ctx, event.Message); err != nil {
		return false, err
	}
	if err := d.queue.Consume(event.ID); err != nil {
		return true, err
	}
	return true, nil
}
