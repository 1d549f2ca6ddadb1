package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/alecthomas/kong"

	"github.com/decentraland/launcher/app"
	"github.com/decentraland/launcher/channel"
	"github.com/decentraland/launcher/environment"
)

// Version is set at build time.
var Version = "dev"

// CLI holds the settings the launcher reads from the environment. Options
// also arrive as command-line flags, but argv additionally carries deep
// links and client pass-through tokens, so it is filtered down to the
// recognized set before parsing.
type CLI struct {
	BucketURL         string `help:"Base URL of the release bucket" env:"LAUNCHER_BUCKET_URL" required:""`
	AnalyticsWriteKey string `help:"Analytics write key (analytics disabled when empty)" env:"LAUNCHER_ANALYTICS_WRITE_KEY"`
	Environment       string `help:"Launcher environment tag (prod, dev)" env:"LAUNCHER_ENVIRONMENT" default:"prod"`
	Provider          string `help:"Distribution channel passed to the client" env:"LAUNCHER_PROVIDER" default:"dcl"`
	Verbose           bool   `help:"Enable debug logging"`

	environment.Args `embed:""`
}

// consoleChannel renders statuses as JSON lines, standing in for the GUI
// shell's event channel.
type consoleChannel struct {
	log *slog.Logger
}

func (c consoleChannel) Send(status channel.Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	c.log.Info(string(data))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "launcher: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := environment.LoadDotEnv(); err != nil {
		return fmt.Errorf("cannot load .env file: %w", err)
	}

	argv := os.Args[1:]
	tokens := environment.FilterRecognized(argv)
	if slices.Contains(argv, "--verbose") {
		tokens = append(tokens, "--verbose")
	}

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("launcher"),
		kong.Description("Downloads, installs, and starts the Decentraland client"),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	if _, err := parser.Parse(tokens); err != nil {
		return err
	}

	a, err := app.Setup(app.Options{
		BucketURL:         cli.BucketURL,
		AnalyticsWriteKey: cli.AnalyticsWriteKey,
		Environment:       cli.Environment,
		Provider:          cli.Provider,
		Version:           Version,
		Argv:              argv,
		Verbose:           cli.Verbose,
	})
	if err != nil {
		return fmt.Errorf("cannot setup application: %w", err)
	}

	ctx := context.Background()
	ch := consoleChannel{log: slog.New(slog.NewJSONHandler(os.Stdout, nil))}

	err = a.Run(ctx, ch)
	a.Cleanup(ctx)
	return err
}
