// Package flow orchestrates a launch: fetch the latest release, download
// it, install it, and start the client — each stage skipped when its work
// is already done. A run is a single pass; retrying is the host's call.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/decentraland/launcher/analytics"
	"github.com/decentraland/launcher/bridge"
	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/downloads"
	"github.com/decentraland/launcher/environment"
	"github.com/decentraland/launcher/errs"
	"github.com/decentraland/launcher/installs"
	"github.com/decentraland/launcher/instances"
	"github.com/decentraland/launcher/monitoring"
	"github.com/decentraland/launcher/protocol"
	"github.com/decentraland/launcher/releases"
)

// DeeplinkHandoffTimeout bounds the wait for a running client to consume a
// handed-off deep link.
const DeeplinkHandoffTimeout = 3 * time.Second

// RecentDownload records a completed download awaiting install. Its
// existence implies the file at DownloadedPath is complete.
type RecentDownload struct {
	Version        string
	DownloadedPath string
}

// State is the mutable pipeline state shared between stages. Only the
// pipeline writes it.
type State struct {
	mu             sync.Mutex
	latestRelease  *releases.Release
	recentDownload *RecentDownload
}

func (s *State) setLatestRelease(release releases.Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestRelease = &release
}

func (s *State) latest() (releases.Release, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestRelease == nil {
		return releases.Release{}, false
	}
	return *s.latestRelease, true
}

func (s *State) setRecentDownload(download RecentDownload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentDownload = &download
}

func (s *State) hasRecentDownload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentDownload != nil
}

// takeRecentDownload reads and clears the record in one step, so a failed
// install cannot be retried against a consumed archive.
func (s *State) takeRecentDownload() (RecentDownload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentDownload == nil {
		return RecentDownload{}, false
	}
	download := *s.recentDownload
	s.recentDownload = nil
	return download, true
}

// step is one pipeline stage.
type step interface {
	// IsComplete reports whether the stage's work is already done.
	IsComplete(ctx context.Context, state *State) (bool, error)
	// StartLabel is the status announced when the stage starts.
	StartLabel() channel.Status
	// UserErrorMessage overrides the user text of uncoded stage failures.
	UserErrorMessage() string
	// Execute performs the stage.
	Execute(ctx context.Context, ch channel.EventChannel, state *State) error
}

// Config wires a Flow.
type Config struct {
	Log       *slog.Logger
	Sink      monitoring.Sink
	Analytics analytics.Analytics
	Releases  *releases.Client
	Engine    *downloads.Engine
	Registry  *installs.Registry
	Paths     *installs.Paths
	Hub       *installs.Hub
	Instances *instances.Tracker
	Bridge    *bridge.Bridge
	BucketURL string
	Args      environment.Args
	// Deeplink is the deep link this invocation carries, if any. It is
	// scoped to the flow instead of living in process-global state.
	Deeplink *protocol.DeepLink
}

// Flow is the launch pipeline.
type Flow struct {
	cfg      Config
	log      *slog.Logger
	attempts attempts
	state    State
}

func New(cfg Config) *Flow {
	return &Flow{cfg: cfg, log: cfg.Log}
}

// Launch runs the pipeline once. A nil return means the client was started
// (or the deep link handed off); a FlowError carries the user message and
// whether another attempt is allowed.
func (f *Flow) Launch(ctx context.Context, ch channel.EventChannel) *errs.FlowError {
	if err := f.launch(ctx, ch); err != nil {
		stepErr := errs.As(err)
		f.log.Error("error during the launch flow",
			slog.String("userMessage", stepErr.UserMessage()),
			slog.Any("error", stepErr),
		)
		f.cfg.Sink.CaptureError(stepErr)
		return &errs.FlowError{
			UserMessage: stepErr.UserMessage(),
			CanRetry:    f.attempts.canRetry(),
		}
	}
	return nil
}

func (f *Flow) launch(ctx context.Context, ch channel.EventChannel) error {
	if !f.attempts.tryConsume(f.log) {
		return errs.Generic(fmt.Errorf("out of attempts")).ApplyUserMessageIfNeeded("Out of attempts")
	}

	steps := []struct {
		label string
		step  step
	}{
		{"fetch", &fetchStep{releases: f.cfg.Releases}},
		{"download", &downloadStep{
			log:       f.log,
			analytics: f.cfg.Analytics,
			engine:    f.cfg.Engine,
			registry:  f.cfg.Registry,
			paths:     f.cfg.Paths,
			bucketURL: f.cfg.BucketURL,
		}},
		{"install", &installStep{
			log:       f.log,
			analytics: f.cfg.Analytics,
			registry:  f.cfg.Registry,
		}},
		{"launch", &appLaunchStep{
			log:       f.log,
			hub:       f.cfg.Hub,
			instances: f.cfg.Instances,
			bridge:    f.cfg.Bridge,
			args:      f.cfg.Args,
			deeplink:  f.cfg.Deeplink,
		}},
	}
	for _, s := range steps {
		if err := f.executeIfNeeded(ctx, ch, s.label, s.step); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) executeIfNeeded(ctx context.Context, ch channel.EventChannel, label string, s step) error {
	complete, err := s.IsComplete(ctx, &f.state)
	if err != nil {
		return wrapStepError(err, s)
	}
	if complete {
		f.log.Info("step is already complete", slog.String("step", label))
		return nil
	}

	f.send(ch, s.StartLabel())

	f.log.Info("step started", slog.String("step", label))
	if err := s.Execute(ctx, ch, &f.state); err != nil {
		return wrapStepError(err, s)
	}
	f.log.Info("step finished", slog.String("step", label))
	return nil
}

func wrapStepError(err error, s step) error {
	return errs.As(err).ApplyUserMessageIfNeeded(s.UserErrorMessage())
}

func (f *Flow) send(ch channel.EventChannel, status channel.Status) {
	if err := ch.Send(status); err != nil {
		f.log.Error("cannot send status to channel", slog.Any("error", err))
	}
}

// maxAttempts bounds pipeline retries before the flow reports itself out of
// attempts; the host drives the retry loop.
const maxAttempts = 5

type attempts struct {
	used int
}

func (a *attempts) tryConsume(log *slog.Logger) bool {
	if a.used < maxAttempts {
		a.used++
		log.Info("consumed attempt", slog.Int("used", a.used), slog.Int("max", maxAttempts))
		return true
	}
	log.Info("out of attempts", slog.Int("used", a.used), slog.Int("max", maxAttempts))
	return false
}

func (a *attempts) canRetry() bool {
	return a.used < maxAttempts
}
