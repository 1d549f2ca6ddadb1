// Package updater defines the launcher self-update contract. The concrete
// implementation ships with the host application; the core only decides
// whether to trigger it and reports its progress statuses.
package updater

import (
	"context"

	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/environment"
)

// Updater checks for and applies a launcher self-update. Implementations
// report progress through the channel using the launcherUpdate step.
type Updater interface {
	// CheckAndApply returns once the launcher is up to date. manifestURL
	// overrides the default update manifest endpoint when non-empty.
	CheckAndApply(ctx context.Context, ch channel.EventChannel, manifestURL string) error
}

// Null performs no update.
type Null struct{}

func (Null) CheckAndApply(context.Context, channel.EventChannel, string) error {
	return nil
}

// ShouldTrigger decides whether the self-update check runs this invocation:
// forced or suppressed by flags, otherwise only production builds update
// themselves.
func ShouldTrigger(env environment.LauncherEnvironment, args environment.Args) bool {
	if args.NeverTriggerUpdater {
		return false
	}
	if args.AlwaysTriggerUpdater {
		return true
	}
	return env == environment.EnvironmentProduction
}
