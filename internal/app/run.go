package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vk/brainseg/internal/ctxlog"
	"github.com/vk/brainseg/internal/device"
	"github.com/vk/brainseg/internal/fsutil"
	"github.com/vk/brainseg/internal/pipeline"
	"github.com/vk/brainseg/internal/watch"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	info, err := os.Stat(a.config.InputPath)
	isDir := err == nil && info.IsDir()
	if isDir && a.config.OutputPath != "" {
		return fmt.Errorf("an explicit output path (-o) only works with a single input volume")
	}

	switch {
	case a.config.Watch:
		if !isDir {
			return fmt.Errorf("watch mode requires the input to be a directory, got %q", a.config.InputPath)
		}
		return a.runWatch(ctx)
	case isDir:
		return a.runBatch(ctx)
	default:
		_, err := a.runner.Run(ctx, a.request(a.config.InputPath))
		return err
	}
}

// request builds a pipeline request for one input path from the app config.
func (a *App) request(inputPath string) pipeline.Request {
	return pipeline.Request{
		InputPath:  inputPath,
		OutputPath: a.config.OutputPath,
		OutputDir:  a.config.OutputDir,
		Suffix:     a.config.Suffix,
		Overwrite:  a.config.Overwrite,
		KeepTemp:   a.config.KeepTemp,
		Device:     a.config.Device,
	}
}

// wantsVolume filters out paths that are not inputs: non-volumes, results of
// earlier runs, and the pipeline's own in-flight partials.
func (a *App) wantsVolume(path string) bool {
	if !fsutil.HasVolumeExt(path) {
		return false
	}
	stem := fsutil.TrimVolumeExt(path)
	if a.config.Suffix != "" && strings.HasSuffix(stem, a.config.Suffix) {
		return false
	}
	return !strings.Contains(stem, ".partial-")
}

// runBatch segments every volume in the input directory, at most Workers
// concurrently. Per-volume failures are collected; the first one is returned
// after all volumes have been attempted.
func (a *App) runBatch(ctx context.Context) error {
	volumes, err := fsutil.FindVolumes(a.config.InputPath)
	if err != nil {
		return fmt.Errorf("failed to scan input directory: %w", err)
	}
	inputs := make([]string, 0, len(volumes))
	for _, v := range volumes {
		if a.wantsVolume(v) {
			inputs = append(inputs, v)
		}
	}
	if len(inputs) == 0 {
		a.logger.Warn("No volumes found in input directory.", "dir", a.config.InputPath)
		return nil
	}
	a.logger.Info("Starting batch segmentation.", "count", len(inputs), "workers", a.config.Workers)

	// Probe the device once up front so a batch on a cuda-less host fails
	// fast instead of once per volume.
	if _, err := device.Resolve(a.config.Device); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeviceUnavailable, err)
	}

	// A plain group, not WithContext: one failed case must not cancel the
	// others. Wait still reports the first failure.
	var g errgroup.Group
	g.SetLimit(a.config.Workers)
	for _, input := range inputs {
		input := input
		g.Go(func() error {
			_, err := a.runner.Run(ctx, a.request(input))
			if err != nil {
				a.logger.Error("Failed to segment volume.", "input", input, "error", err)
			}
			return err
		})
	}
	return g.Wait()
}

// runWatch segments volumes as they appear in the input directory until the
// context is cancelled.
func (a *App) runWatch(ctx context.Context) error {
	w := &watch.Watcher{
		Dir:    a.config.InputPath,
		Settle: a.config.Settle,
		Match:  a.wantsVolume,
		Handle: func(ctx context.Context, path string) error {
			_, err := a.runner.Run(ctx, a.request(path))
			return err
		},
	}
	return w.Run(ctx)
}
