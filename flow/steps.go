package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decentraland/launcher/analytics"
	"github.com/decentraland/launcher/bridge"
	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/downloads"
	"github.com/decentraland/launcher/environment"
	"github.com/decentraland/launcher/errs"
	"github.com/decentraland/launcher/installs"
	"github.com/decentraland/launcher/instances"
	"github.com/decentraland/launcher/protocol"
	"github.com/decentraland/launcher/releases"
)

// fetchStep resolves the latest release. It always re-runs: the origin is
// the source of truth for what "latest" means.
type fetchStep struct {
	releases *releases.Client
}

func (s *fetchStep) IsComplete(context.Context, *State) (bool, error) {
	return false, nil
}

func (s *fetchStep) StartLabel() channel.Status {
	return channel.Fetching()
}

func (s *fetchStep) UserErrorMessage() string {
	return "Fetch the latest client version failed"
}

func (s *fetchStep) Execute(ctx context.Context, _ channel.EventChannel, state *State) error {
	release, err := s.releases.Latest(ctx)
	if err != nil {
		return err
	}
	state.setLatestRelease(release)
	return nil
}

// downloadStep stages the release archive. Skipped when the latest version
// is already installed and active.
type downloadStep struct {
	log       *slog.Logger
	analytics analytics.Analytics
	engine    *downloads.Engine
	registry  *installs.Registry
	paths     *installs.Paths
	bucketURL string
}

func (s *downloadStep) IsComplete(_ context.Context, state *State) (bool, error) {
	release, ok := state.latest()
	if !ok {
		return false, fmt.Errorf("latest release is not found in the state")
	}
	return s.registry.IsUpdated(release.Version), nil
}

// buildType reports whether this run is a first install or an update of an
// existing one.
func (s *downloadStep) buildType() channel.BuildType {
	if s.registry.IsInstalled("") {
		return channel.BuildTypeUpdate
	}
	return channel.BuildTypeNew
}

func (s *downloadStep) StartLabel() channel.Status {
	return channel.Downloading(0, s.buildType())
}

func (s *downloadStep) UserErrorMessage() string {
	return "Failed to download"
}

func (s *downloadStep) Execute(ctx context.Context, ch channel.EventChannel, state *State) error {
	release, ok := state.latest()
	if !ok {
		return fmt.Errorf("latest release is not fetched")
	}

	version := releases.VersionFromURL(s.bucketURL, release.DownloadURL)
	if version == "" {
		s.track(analytics.DownloadVersionError("", "No version provided"))
		return fmt.Errorf("url doesn't contain version: %s", release.DownloadURL)
	}

	target, err := s.paths.TargetDownloadPath()
	if err != nil {
		return err
	}

	s.track(analytics.DownloadVersion(version))
	if err := s.engine.Download(ctx, release.DownloadURL, target, ch, s.buildType(), s.analytics); err != nil {
		s.track(analytics.DownloadVersionError(version, err.Error()))
		return err
	}
	s.track(analytics.DownloadVersionSuccess(version))

	state.setRecentDownload(RecentDownload{Version: version, DownloadedPath: target})
	return nil
}

func (s *downloadStep) track(event analytics.Event) {
	if err := s.analytics.Track(event); err != nil {
		s.log.Error("cannot track download event", slog.String("event", event.Name), slog.Any("error", err))
	}
}

// installStep unpacks the staged archive into the version tree. Skipped
// when there is nothing staged.
type installStep struct {
	log       *slog.Logger
	analytics analytics.Analytics
	registry  *installs.Registry
}

func (s *installStep) IsComplete(_ context.Context, state *State) (bool, error) {
	return !state.hasRecentDownload(), nil
}

func (s *installStep) StartLabel() channel.Status {
	buildType := channel.BuildTypeNew
	if s.registry.IsInstalled("") {
		buildType = channel.BuildTypeUpdate
	}
	return channel.Installing(buildType)
}

func (s *installStep) UserErrorMessage() string {
	return "Failed to install"
}

func (s *installStep) Execute(_ context.Context, _ channel.EventChannel, state *State) error {
	download, ok := state.takeRecentDownload()
	if !ok {
		const message = "Downloaded archive not found"
		s.track(analytics.InstallVersionError("", message))
		return fmt.Errorf("%s", message)
	}

	s.track(analytics.InstallVersionStart(download.Version))
	if err := s.registry.Install(download.Version, download.DownloadedPath); err != nil {
		s.track(analytics.InstallVersionError(download.Version, err.Error()))
		return err
	}
	s.track(analytics.InstallVersionSuccess(download.Version))
	return nil
}

func (s *installStep) track(event analytics.Event) {
	if err := s.analytics.Track(event); err != nil {
		s.log.Error("cannot track install event", slog.String("event", event.Name), slog.Any("error", err))
	}
}

// appLaunchStep starts the client or hands the deep link to an instance
// that is already running. Always runs.
type appLaunchStep struct {
	log       *slog.Logger
	hub       *installs.Hub
	instances *instances.Tracker
	bridge    *bridge.Bridge
	args      environment.Args
	deeplink  *protocol.DeepLink
}

func (s *appLaunchStep) IsComplete(context.Context, *State) (bool, error) {
	return false, nil
}

func (s *appLaunchStep) StartLabel() channel.Status {
	return channel.Launching()
}

func (s *appLaunchStep) UserErrorMessage() string {
	return "Failed to launch"
}

func (s *appLaunchStep) Execute(ctx context.Context, ch channel.EventChannel, _ *State) error {
	if s.deeplink == nil {
		return s.hub.LaunchClient(ctx, "", "")
	}

	running, err := s.instances.AnyIsRunning()
	if err != nil {
		return errs.Generic(fmt.Errorf("cannot define if any client instance is running: %w", err))
	}

	if !running || s.spawnNewInstance() {
		return s.hub.LaunchClient(ctx, "", s.deeplink.Original)
	}

	return s.handOff(ctx, ch)
}

// spawnNewInstance reports whether a deep link must open a fresh client
// even though one is running.
func (s *appLaunchStep) spawnNewInstance() bool {
	if s.args.OpenDeeplinkInNewInstance {
		return true
	}
	return s.args.LocalScene || s.deeplink.HasTrueValue("local-scene")
}

func (s *appLaunchStep) handOff(ctx context.Context, ch channel.EventChannel) error {
	if err := ch.Send(channel.DeeplinkOpening()); err != nil {
		s.log.Error("cannot send status to channel", slog.Any("error", err))
	}

	handOffCtx, cancel := context.WithTimeout(ctx, DeeplinkHandoffTimeout)
	defer cancel()

	err := s.bridge.PlaceDeeplinkAndWaitUntilConsumed(handOffCtx, s.deeplink.Original)
	switch {
	case err == nil:
		return nil
	case err == bridge.ErrCancelled:
		return errs.New(errs.CodeDeeplinkTimeout, fmt.Errorf("deeplink not consumed within %s", DeeplinkHandoffTimeout))
	default:
		return errs.New(errs.CodeDeeplinkPlace, err)
	}
}
