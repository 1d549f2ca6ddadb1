// Package app wires the launcher core together: paths, logging, analytics,
// the install registry, the instance tracker, and the launch flow.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/decentraland/launcher/analytics"
	"github.com/decentraland/launcher/analytics/queue"
	"github.com/decentraland/launcher/bridge"
	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/config"
	"github.com/decentraland/launcher/downloads"
	"github.com/decentraland/launcher/environment"
	"github.com/decentraland/launcher/flow"
	"github.com/decentraland/launcher/installs"
	"github.com/decentraland/launcher/instances"
	"github.com/decentraland/launcher/logs"
	"github.com/decentraland/launcher/monitoring"
	"github.com/decentraland/launcher/protocol"
	"github.com/decentraland/launcher/releases"
	"github.com/decentraland/launcher/updater"
)

// Options is the launcher's external configuration, resolved by the CLI
// from flags and environment variables.
type Options struct {
	// BucketURL is where releases live. Required.
	BucketURL string
	// AnalyticsWriteKey enables analytics when set.
	AnalyticsWriteKey string
	// Environment is the launcher environment tag (prod, dev, other).
	Environment string
	// Provider identifies the distribution channel passed to the client.
	Provider string
	// Version is the launcher's own version.
	Version string
	// Argv is the raw command line after the program name.
	Argv []string
	// Verbose enables debug logging.
	Verbose bool
	// Sink receives error reports; nil means no monitoring.
	Sink monitoring.Sink
	// Updater applies launcher self-updates; nil means none available.
	Updater updater.Updater
}

// App is a fully wired launcher core.
type App struct {
	log       *slog.Logger
	closeLogs func() error
	opts      Options
	args      environment.Args
	deeplink  *protocol.DeepLink
	analytics analytics.Analytics
	flow      *flow.Flow
	updater   updater.Updater
}

// Setup builds the application. Failures here are setup failures: the
// process should exit non-zero.
func Setup(opts Options) (*App, error) {
	if opts.BucketURL == "" {
		return nil, fmt.Errorf("bucket URL is required")
	}
	if opts.Sink == nil {
		opts.Sink = monitoring.NullSink{}
	}
	if opts.Updater == nil {
		opts.Updater = updater.Null{}
	}

	paths, err := installs.DefaultPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("cannot create app directory: %w", err)
	}

	logPath, err := paths.LogFile()
	if err != nil {
		return nil, err
	}
	log, closeLogs, err := logs.Setup(logPath, opts.Sink, opts.Verbose)
	if err != nil {
		return nil, err
	}
	log.Info("application setup start", slog.String("version", opts.Version), slog.String("root", paths.Root()))

	cfg := config.New(paths.ConfigFile())

	configArgs, err := cfg.CmdArguments()
	if err != nil {
		log.Error("cannot read cmd-arguments from config", slog.Any("error", err))
	}
	args := environment.ResolveArgs(opts.Argv, configArgs)
	log.Info("resolved arguments", slog.Any("args", args))

	var deeplink *protocol.DeepLink
	if link, ok := protocol.FromArgs(opts.Argv); ok {
		deeplink = &link
		log.Info("deep link received", slog.String("deeplink", link.Original))
	}

	tracker := setupAnalytics(log, paths, cfg, args, opts)

	registry := installs.NewRegistry(log, paths)
	instanceTracker := instances.NewTracker(log, paths.RunningInstancesFile())
	provider := opts.Provider
	if provider == "" {
		provider = environment.DefaultProvider
	}
	hub := installs.NewHub(log, registry, tracker, instanceTracker, cfg, provider)

	launchFlow := flow.New(flow.Config{
		Log:       log,
		Sink:      opts.Sink,
		Analytics: tracker,
		Releases:  releases.New(opts.BucketURL, environment.OSName()),
		Engine:    downloads.NewEngine(log),
		Registry:  registry,
		Paths:     paths,
		Hub:       hub,
		Instances: instanceTracker,
		Bridge:    bridge.New(paths.DeeplinkBridgeFile()),
		BucketURL: opts.BucketURL,
		Args:      args,
		Deeplink:  deeplink,
	})

	log.Info("application setup complete")
	return &App{
		log:       log,
		closeLogs: closeLogs,
		opts:      opts,
		args:      args,
		deeplink:  deeplink,
		analytics: tracker,
		flow:      launchFlow,
		updater:   opts.Updater,
	}, nil
}

func setupAnalytics(log *slog.Logger, paths *installs.Paths, cfg *config.Config, args environment.Args, opts Options) analytics.Analytics {
	if args.SkipAnalytics || opts.AnalyticsWriteKey == "" {
		log.Info("analytics disabled")
		return analytics.NewNull()
	}

	userID, err := cfg.UserID()
	if err != nil {
		log.Error("cannot resolve analytics user id, analytics disabled", slog.Any("error", err))
		return analytics.NewNull()
	}

	var q queue.Queue
	if args.ForceInMemoryAnalyticsQueue {
		log.Info("in-memory analytics queue forced by flag")
		q = queue.NewMemory(queue.DefaultEventCountLimit)
	} else {
		var desc string
		q, desc, err = queue.NewCombined(paths.AnalyticsQueueDB(), queue.DefaultEventCountLimit)
		if err != nil {
			log.Error("falling back to in-memory analytics queue", slog.Any("error", err))
		}
		log.Info("analytics queue ready", slog.String("variant", desc))
	}

	return analytics.NewClient(log, analytics.Config{
		WriteKey:        opts.AnalyticsWriteKey,
		AnonymousID:     userID,
		OS:              environment.OSName(),
		LauncherVersion: opts.Version,
	}, q)
}

// Run executes the self-update check and the launch pipeline, delivering
// any flow error to the channel. The returned error only covers failures
// that could not be reported through the channel.
func (a *App) Run(ctx context.Context, ch channel.EventChannel) error {
	env := environment.ParseLauncherEnvironment(a.opts.Environment)
	if updater.ShouldTrigger(env, a.args) {
		if err := a.updater.CheckAndApply(ctx, ch, a.args.UseUpdaterURL); err != nil {
			a.log.Error("launcher self-update failed, continuing with current version", slog.Any("error", err))
		}
	}

	a.track(analytics.LauncherOpen(a.opts.Version))

	if flowErr := a.flow.Launch(ctx, ch); flowErr != nil {
		if err := ch.Send(channel.ErrorStatus(flowErr.UserMessage, flowErr.CanRetry)); err != nil {
			return fmt.Errorf("cannot deliver flow error %q to channel: %w", flowErr.UserMessage, err)
		}
	}
	return nil
}

// Cleanup flushes analytics and closes the log sinks.
func (a *App) Cleanup(ctx context.Context) {
	a.track(analytics.LauncherClose(a.opts.Version))
	if err := a.analytics.Close(ctx); err != nil {
		a.log.Error("cannot close analytics", slog.Any("error", err))
	}
	if a.closeLogs != nil {
		if err := a.closeLogs(); err != nil {
			a.log.Error("cannot close log file", slog.Any("error", err))
		}
	}
}

func (a *App) track(event analytics.Event) {
	if err := a.analytics.Track(event); err != nil {
		a.log.Error("cannot track event", slog.String("event", event.Name), slog.Any("error", err))
	}
}
