package installs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/decentraland/launcher/analytics"
	"github.com/decentraland/launcher/config"
	"github.com/decentraland/launcher/instances"
	"github.com/decentraland/launcher/processes"
)

const (
	// startupProbeWindow is how long a fresh child is watched for an early
	// exit before the launch is considered good.
	startupProbeWindow   = 3 * time.Second
	startupProbeInterval = 100 * time.Millisecond
)

// Hub launches the installed client and registers the new instance.
type Hub struct {
	log       *slog.Logger
	registry  *Registry
	analytics analytics.Analytics
	instances *instances.Tracker
	config    *config.Config
	provider  string
	clock     clockwork.Clock

	// probeStartup watches the child for an early exit after spawning. The
	// indirect Windows launch needs it; on Unix the child either spawns or
	// the spawn itself errors.
	probeStartup bool

	start func(bin, dir string, args []string) (*processes.Handle, error)
}

func NewHub(log *slog.Logger, registry *Registry, tracker analytics.Analytics, inst *instances.Tracker, cfg *config.Config, provider string) *Hub {
	return &Hub{
		log:          log,
		registry:     registry,
		analytics:    tracker,
		instances:    inst,
		config:       cfg,
		provider:     provider,
		clock:        clockwork.NewRealClock(),
		probeStartup: runtime.GOOS == "windows",
		start:        processes.StartDetached,
	}
}

// SetClock overrides the probe clock, for tests.
func (h *Hub) SetClock(clock clockwork.Clock) {
	h.clock = clock
}

// SetStarter overrides process spawning, for tests.
func (h *Hub) SetStarter(start func(bin, dir string, args []string) (*processes.Handle, error), probeStartup bool) {
	h.start = start
	h.probeStartup = probeStartup
}

// LaunchClient spawns the client detached, forwarding deeplink (when set)
// as the first argument. preferredVersion empty means the active install.
func (h *Hub) LaunchClient(ctx context.Context, preferredVersion, deeplink string) error {
	version := h.readableVersion(preferredVersion)

	h.track(analytics.LaunchClientStart(version))
	err := h.launch(ctx, preferredVersion, deeplink)
	if err != nil {
		h.track(analytics.LaunchClientError(version, err.Error()))
		return err
	}
	h.track(analytics.LaunchClientSuccess(version))
	return nil
}

func (h *Hub) launch(ctx context.Context, preferredVersion, deeplink string) error {
	binPath, err := h.registry.BinPath(preferredVersion)
	if err != nil {
		return fmt.Errorf("failed to resolve client binary: %w", err)
	}
	if _, err := os.Stat(binPath); err != nil {
		if preferredVersion != "" {
			return fmt.Errorf("the client version specified (%s) is not installed", preferredVersion)
		}
		return fmt.Errorf("the client is not installed")
	}

	params, err := h.clientParams(deeplink)
	if err != nil {
		return err
	}
	binDir := filepath.Dir(binPath)
	h.log.Info("launching client", slog.String("bin", binPath), slog.Any("params", params))

	handle, err := h.start(binPath, binDir, params)
	if err != nil {
		return err
	}
	h.log.Info("client process started", slog.Int("pid", handle.PID()))

	h.instances.RegisterNewInstance(handle.PID(), filepath.Base(binPath))

	if h.probeStartup {
		return h.probe(ctx, handle)
	}
	return nil
}

// clientParams assembles the client argv: the deep link first when present,
// then the identity arguments, then anything configured by the user.
func (h *Hub) clientParams(deeplink string) ([]string, error) {
	var params []string
	if deeplink != "" {
		params = append(params, deeplink)
	}
	params = append(params,
		"--launcher_anonymous_id", h.analytics.AnonymousID(),
		"--session_id", h.analytics.SessionID(),
		"--provider", h.provider,
	)
	additional, err := h.config.ClientAdditionalArguments()
	if err != nil {
		return nil, fmt.Errorf("cannot read client additional arguments: %w", err)
	}
	return append(params, additional...), nil
}

// probe watches the fresh child: a graceful exit means the client handed
// off to its real process, staying alive means the launch took, any other
// exit is a failure.
func (h *Hub) probe(ctx context.Context, handle *processes.Handle) error {
	deadline := h.clock.Now().Add(startupProbeWindow)
	for h.clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.clock.After(startupProbeInterval):
		}
		exited, code := handle.TryWait()
		if !exited {
			return nil
		}
		if code == 0 {
			return nil
		}
		return fmt.Errorf("client process exited with code %d shortly after start", code)
	}
	return nil
}

func (h *Hub) readableVersion(preferred string) string {
	if preferred != "" {
		return preferred
	}
	if active, ok := h.registry.ActiveVersion(); ok {
		return active
	}
	return "latest"
}

func (h *Hub) track(event analytics.Event) {
	if err := h.analytics.Track(event); err != nil {
		h.log.Error("cannot track launch event", slog.String("event", event.Name), slog.Any("error", err))
	}
}
