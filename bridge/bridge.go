// Package bridge hands a deep link to an already-running client through an
// ephemeral file: the launcher writes it, the client reads and deletes it.
// Deletion is the consumption signal.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
)

// pollInterval is how often the bridge checks for consumption.
const pollInterval = 50 * time.Millisecond

// ErrCancelled is returned when the caller's context fires before the
// client consumes the deep link. The bridge file is removed best-effort.
var ErrCancelled = errors.New("deeplink hand-off cancelled")

type payload struct {
	Deeplink string `json:"deeplink"`
}

// Bridge places deep links at a fixed path.
type Bridge struct {
	path  string
	clock clockwork.Clock
}

func New(path string) *Bridge {
	return &Bridge{path: path, clock: clockwork.NewRealClock()}
}

// SetClock overrides the poll clock, for tests.
func (b *Bridge) SetClock(clock clockwork.Clock) {
	b.clock = clock
}

// PlaceDeeplinkAndWaitUntilConsumed writes the deep link file and polls
// until the running client deletes it. Cancellation of ctx removes the file
// and returns ErrCancelled; the caller owns the overall timeout.
func (b *Bridge) PlaceDeeplinkAndWaitUntilConsumed(ctx context.Context, deeplink string) error {
	data, err := json.Marshal(payload{Deeplink: deeplink})
	if err != nil {
		return err
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = os.Remove(b.path)
			return ErrCancelled
		case <-b.clock.After(pollInterval):
			if _, err := os.Stat(b.path); os.IsNotExist(err) {
				return nil
			}
		}
	}
}
