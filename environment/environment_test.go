package environment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFilterRecognized(t *testing.T) {
	tests := []struct {
		name     string
		tokens   []string
		expected []string
	}{
		{
			name:     "keeps recognized flags",
			tokens:   []string{"--skip-analytics", "--local-scene"},
			expected: []string{"--skip-analytics", "--local-scene"},
		},
		{
			name:     "drops unknown flags",
			tokens:   []string{"--skip-analytics", "--frobnicate", "--never-trigger-updater"},
			expected: []string{"--skip-analytics", "--never-trigger-updater"},
		},
		{
			name:     "drops non-flag tokens",
			tokens:   []string{"decentraland://realm", "--skip-analytics", "positional"},
			expected: []string{"--skip-analytics"},
		},
		{
			name:     "keeps a separated flag value",
			tokens:   []string{"--use-updater-url", "https://example.com/manifest"},
			expected: []string{"--use-updater-url", "https://example.com/manifest"},
		},
		{
			name:     "keeps an equals flag value",
			tokens:   []string{"--use-updater-url=https://example.com/manifest"},
			expected: []string{"--use-updater-url=https://example.com/manifest"},
		},
		{
			name:     "empty input",
			tokens:   nil,
			expected: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.expected, FilterRecognized(tt.tokens)); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	t.Run("parses all recognized options", func(t *testing.T) {
		args, err := ParseArgs([]string{
			"--skip-analytics",
			"--force-in-memory-analytics-queue",
			"--open-deeplink-in-new-instance",
			"--local-scene",
			"--always-trigger-updater",
			"--never-trigger-updater",
			"--use-updater-url", "https://example.com/manifest",
		})
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		expected := Args{
			SkipAnalytics:               true,
			ForceInMemoryAnalyticsQueue: true,
			OpenDeeplinkInNewInstance:   true,
			LocalScene:                  true,
			AlwaysTriggerUpdater:        true,
			NeverTriggerUpdater:         true,
			UseUpdaterURL:               "https://example.com/manifest",
		}
		if diff := cmp.Diff(expected, args); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("ignores unknown and pass-through tokens", func(t *testing.T) {
		args, err := ParseArgs([]string{"decentraland://realm", "--wat", "--skip-analytics"})
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if !args.SkipAnalytics {
			t.Error("expected skip-analytics to be set")
		}
	})
}

func TestResolveArgs(t *testing.T) {
	t.Run("merges argv with config arguments", func(t *testing.T) {
		args := ResolveArgs(
			[]string{"--skip-analytics"},
			[]string{"--local-scene", "--use-updater-url", "https://config.example/manifest"},
		)
		if !args.SkipAnalytics || !args.LocalScene {
			t.Fatalf("expected flags from both sources, got %+v", args)
		}
		if args.UseUpdaterURL != "https://config.example/manifest" {
			t.Errorf("expected updater url from config, got %q", args.UseUpdaterURL)
		}
	})
	t.Run("argv updater url wins", func(t *testing.T) {
		args := ResolveArgs(
			[]string{"--use-updater-url", "https://argv.example"},
			[]string{"--use-updater-url", "https://config.example"},
		)
		if args.UseUpdaterURL != "https://argv.example" {
			t.Errorf("expected argv value to win, got %q", args.UseUpdaterURL)
		}
	})
}

func TestOSName(t *testing.T) {
	if OSName() == "unsupported" {
		t.Skip("unsupported build platform")
	}
	switch name := OSName(); name {
	case "macos", "linux", "windows64":
	default:
		t.Errorf("unexpected OS name %q", name)
	}
}

func TestParseLauncherEnvironment(t *testing.T) {
	tests := []struct {
		raw      string
		expected LauncherEnvironment
	}{
		{"prod", EnvironmentProduction},
		{"dev", EnvironmentDevelopment},
		{"staging", EnvironmentUnknown},
		{"", EnvironmentUnknown},
	}
	for _, tt := range tests {
		if got := ParseLauncherEnvironment(tt.raw); got != tt.expected {
			t.Errorf("ParseLauncherEnvironment(%q) = %v, want %v", tt.raw, got, tt.expected)
		}
	}
}
