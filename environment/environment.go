// Package environment resolves the launcher's runtime context: recognized
// command-line options (from argv and from the config file), the release
// artifact OS name, and the environment tag.
package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// DefaultProvider identifies the distribution channel passed to the client.
const DefaultProvider = "dcl"

// LauncherEnvironment tags the build for analytics and monitoring.
type LauncherEnvironment string

const (
	EnvironmentProduction  LauncherEnvironment = "prod"
	EnvironmentDevelopment LauncherEnvironment = "dev"
	EnvironmentUnknown     LauncherEnvironment = "unknown"
)

func ParseLauncherEnvironment(raw string) LauncherEnvironment {
	switch raw {
	case "prod":
		return EnvironmentProduction
	case "dev":
		return EnvironmentDevelopment
	default:
		return EnvironmentUnknown
	}
}

// Args are the options recognized by the launcher. They arrive from argv
// and from the cmd-arguments entry of the config file; the two sources are
// merged with OR semantics.
type Args struct {
	SkipAnalytics               bool   `name:"skip-analytics" help:"Disable analytics tracking."`
	ForceInMemoryAnalyticsQueue bool   `name:"force-in-memory-analytics-queue" help:"Do not persist queued analytics events."`
	OpenDeeplinkInNewInstance   bool   `name:"open-deeplink-in-new-instance" help:"Always spawn a new client for deep links."`
	LocalScene                  bool   `name:"local-scene" help:"Force a new client instance for local scene development."`
	AlwaysTriggerUpdater        bool   `name:"always-trigger-updater" help:"Force the launcher self-update check."`
	NeverTriggerUpdater         bool   `name:"never-trigger-updater" help:"Suppress the launcher self-update check."`
	UseUpdaterURL               string `name:"use-updater-url" help:"Override the updater manifest endpoint."`
}

// MergeWith combines two parsed argument sets; booleans OR, the updater URL
// prefers the receiver.
func (a Args) MergeWith(other Args) Args {
	merged := Args{
		SkipAnalytics:               a.SkipAnalytics || other.SkipAnalytics,
		ForceInMemoryAnalyticsQueue: a.ForceInMemoryAnalyticsQueue || other.ForceInMemoryAnalyticsQueue,
		OpenDeeplinkInNewInstance:   a.OpenDeeplinkInNewInstance || other.OpenDeeplinkInNewInstance,
		LocalScene:                  a.LocalScene || other.LocalScene,
		AlwaysTriggerUpdater:        a.AlwaysTriggerUpdater || other.AlwaysTriggerUpdater,
		NeverTriggerUpdater:         a.NeverTriggerUpdater || other.NeverTriggerUpdater,
		UseUpdaterURL:               a.UseUpdaterURL,
	}
	if merged.UseUpdaterURL == "" {
		merged.UseUpdaterURL = other.UseUpdaterURL
	}
	return merged
}

// recognizedFlags maps flag names to whether they take a value.
var recognizedFlags = map[string]bool{
	"skip-analytics":                  false,
	"force-in-memory-analytics-queue": false,
	"open-deeplink-in-new-instance":   false,
	"local-scene":                     false,
	"always-trigger-updater":          false,
	"never-trigger-updater":           false,
	"use-updater-url":                 true,
}

// FilterRecognized keeps only the tokens the launcher option parser
// understands. Unknown --flags are dropped; non-flag tokens (deep links,
// client pass-through arguments) are not the parser's business either.
func FilterRecognized(tokens []string) (kept []string) {
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if !strings.HasPrefix(token, "--") {
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimPrefix(token, "--"), "=")
		takesValue, ok := recognizedFlags[name]
		if !ok {
			continue
		}
		kept = append(kept, token)
		if takesValue && !hasValue && i+1 < len(tokens) {
			i++
			kept = append(kept, tokens[i])
		}
	}
	return kept
}

// ParseArgs parses one token source into Args, ignoring unrecognized
// tokens.
func ParseArgs(tokens []string) (Args, error) {
	var args Args
	parser, err := kong.New(&args, kong.UsageOnError())
	if err != nil {
		return Args{}, fmt.Errorf("cannot build argument parser: %w", err)
	}
	if _, err := parser.Parse(FilterRecognized(tokens)); err != nil {
		return Args{}, fmt.Errorf("cannot parse arguments: %w", err)
	}
	return args, nil
}

// ResolveArgs parses and merges argv with the config file's cmd-arguments.
// A source that fails to parse contributes defaults.
func ResolveArgs(argv, configArgs []string) Args {
	fromArgv, err := ParseArgs(argv)
	if err != nil {
		fromArgv = Args{}
	}
	fromConfig, err := ParseArgs(configArgs)
	if err != nil {
		fromConfig = Args{}
	}
	return fromArgv.MergeWith(fromConfig)
}

// OSName is the platform component of release artifact names.
func OSName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	case "windows":
		return "windows64"
	default:
		return "unsupported"
	}
}

// LoadDotEnv loads a .env file from the working directory when present.
// Missing files are not an error; development setups use them, packaged
// installs do not.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
