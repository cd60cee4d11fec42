package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/brainseg/internal/app"
	"github.com/vk/brainseg/internal/cli"
	"github.com/vk/brainseg/internal/pipeline"
)

// main is the entrypoint for the brainseg application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	config, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	brainsegApp, err := app.NewApp(outW, config)
	if err != nil {
		return err
	}
	return brainsegApp.Run(ctx)
}

// exitCode maps the pipeline's failure classes onto distinct process exit
// codes so callers can react without parsing log output.
func exitCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInputNotFound):
		return 3
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return 4
	case errors.Is(err, pipeline.ErrDeviceUnavailable):
		return 5
	case errors.Is(err, pipeline.ErrInferenceFailed):
		return 6
	default:
		return 1
	}
}
