package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlaceDeeplinkAndWaitUntilConsumed(t *testing.T) {
	t.Run("returns once the client consumes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deeplink-bridge.json")
		b := New(path)

		// Stand in for the running client: read and delete the file.
		consumed := make(chan string, 1)
		go func() {
			for {
				data, err := os.ReadFile(path)
				if err != nil {
					time.Sleep(5 * time.Millisecond)
					continue
				}
				var payload struct {
					Deeplink string `json:"deeplink"`
				}
				if json.Unmarshal(data, &payload) == nil {
					consumed <- payload.Deeplink
					os.Remove(path)
					return
				}
			}
		}()

		err := b.PlaceDeeplinkAndWaitUntilConsumed(context.Background(), "decentraland://realm")
		if err != nil {
			t.Fatalf("hand-off failed: %v", err)
		}
		if got := <-consumed; got != "decentraland://realm" {
			t.Errorf("client read %q", got)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("bridge file must be absent after consumption")
		}
	})
	t.Run("cancellation removes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deeplink-bridge.json")
		b := New(path)

		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
		defer cancel()

		err := b.PlaceDeeplinkAndWaitUntilConsumed(ctx, "decentraland://realm")
		if err != ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("bridge file must be absent after cancellation")
		}
	})
	t.Run("fails when the bridge path is not writable", func(t *testing.T) {
		b := New(filepath.Join(t.TempDir(), "missing", "deeplink-bridge.json"))
		err := b.PlaceDeeplinkAndWaitUntilConsumed(context.Background(), "decentraland://realm")
		if err == nil || err == ErrCancelled {
			t.Fatalf("expected an IO error, got %v", err)
		}
	})
}
