// Package downloads streams release archives to disk with progress
// reporting, inactivity timeouts, and size verification.
package downloads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/decentraland/launcher/analytics"
	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/errs"
)

const (
	// chunkInactivityTimeout bounds the wait for the next chunk of the
	// response body.
	chunkInactivityTimeout = 15 * time.Second

	// progressTrackInterval rate-limits download-progress analytics.
	progressTrackInterval = 500 * time.Millisecond

	chunkSize = 32 * 1024
)

// Engine downloads one archive at a time. Channel sends and analytics
// enqueues are fire-and-forget: failures are logged, never fatal.
type Engine struct {
	log        *slog.Logger
	httpClient *http.Client
	clock      clockwork.Clock
}

func NewEngine(log *slog.Logger) *Engine {
	return &Engine{
		log:        log,
		httpClient: &http.Client{},
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock overrides the rate-limiter clock, for tests.
func (e *Engine) SetClock(clock clockwork.Clock) {
	e.clock = clock
}

// Download streams url to destPath. Progress events to the channel are
// monotonic; every ~500ms a progress analytics event is enqueued. The
// destination is removed on failure.
func (e *Engine) Download(ctx context.Context, url, destPath string, ch channel.EventChannel, buildType channel.BuildType, tracker analytics.Analytics) (err error) {
	defer func() {
		if err != nil {
			if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
				e.log.Error("cannot remove partial download", slog.String("path", destPath), slog.Any("error", removeErr))
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Generic(err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errs.New(errs.CodeDownloadFailed, err, "url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.New(errs.CodeDownloadHTTPCode, fmt.Errorf("HTTP %d", resp.StatusCode), "url", url, "code", resp.StatusCode)
	}
	total := resp.ContentLength
	if total < 0 {
		return errs.New(errs.CodeMissingContentLength, fmt.Errorf("no Content-Length header"), "url", url)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return errs.New(errs.CodeFileCreateFailed, err, "file_path", destPath)
	}
	defer file.Close()

	var downloaded int64
	lastProgress := -1
	lastTracked := e.clock.Now().Add(-progressTrackInterval)

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	chunks := readChunks(readCtx, resp.Body)
	for {
		var chunk chunkResult
		var open bool
		select {
		case <-ctx.Done():
			return errs.Generic(ctx.Err())
		case chunk, open = <-chunks:
		case <-e.clock.After(chunkInactivityTimeout):
			return errs.New(errs.CodeNetworkTimeout, fmt.Errorf("no data received for %s", chunkInactivityTimeout), "url", url)
		}
		if !open {
			break
		}
		if chunk.err != nil {
			return errs.New(errs.CodeDownloadFailed, chunk.err, "url", url)
		}

		if _, err := file.Write(chunk.data); err != nil {
			return errs.New(errs.CodeNetworkWrite, err,
				"url", url,
				"bytes_downloaded", downloaded,
				"destination_path", destPath,
			)
		}
		downloaded += int64(len(chunk.data))

		if total > 0 {
			progress := int(100 * downloaded / total)
			if progress > lastProgress {
				lastProgress = progress
				e.sendProgress(ch, progress, buildType)
			}
		}
		if now := e.clock.Now(); now.Sub(lastTracked) >= progressTrackInterval {
			lastTracked = now
			e.track(tracker, analytics.DownloadVersionProgress(url, downloaded, total-downloaded))
		}
	}

	if err := file.Sync(); err != nil {
		return errs.FromIO(err)
	}
	info, err := os.Stat(destPath)
	if err != nil {
		return errs.FromIO(err)
	}
	if info.Size() != total {
		return errs.New(errs.CodeFileIncomplete, fmt.Errorf("downloaded %d of %d bytes", info.Size(), total),
			"expected", total,
			"real", info.Size(),
		)
	}

	e.sendProgress(ch, 100, buildType)
	return nil
}

func (e *Engine) sendProgress(ch channel.EventChannel, progress int, buildType channel.BuildType) {
	if err := ch.Send(channel.Downloading(progress, buildType)); err != nil {
		e.log.Error("cannot send progress to channel", slog.Int("progress", progress), slog.Any("error", err))
	}
}

func (e *Engine) track(tracker analytics.Analytics, event analytics.Event) {
	if err := tracker.Track(event); err != nil {
		e.log.Error("cannot track download progress", slog.Any("error", err))
	}
}

type chunkResult struct {
	data []byte
	err  error
}

// readChunks pumps body reads into a channel so the consumer can race each
// read against the inactivity timeout. The pump exits when ctx is cancelled
// or the body ends.
func readChunks(ctx context.Context, body io.Reader) <-chan chunkResult {
	out := make(chan chunkResult)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, chunkSize)
			n, err := body.Read(buf)
			if n > 0 {
				select {
				case out <- chunkResult{data: buf[:n]}:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case out <- chunkResult{err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out
}
