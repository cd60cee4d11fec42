package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/brainseg/internal/ctxlog"
	"github.com/vk/brainseg/internal/engine"
	"github.com/vk/brainseg/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *engine.Registry
	runner   *pipeline.Runner
	config   *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry,
// with the selected engine resolved and validated.
func NewApp(outW io.Writer, config *Config, modules ...engine.Module) (*App, error) {
	logger := newLogger(config, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	// Create and populate the registry with Go handlers.
	reg := engine.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All engine handlers registered.", "count", len(modules))

	if err := reg.LoadManifests(ctx, config.EnginesPath); err != nil {
		return nil, fmt.Errorf("failed to load engine manifests: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "engines", reg.Names())

	var eng *engine.Engine
	var err error
	if config.Engine != "" {
		eng, err = reg.Lookup(config.Engine)
	} else {
		eng, err = reg.Default()
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Selected inference engine.", "engine", eng.Manifest.Name, "description", eng.Manifest.Description)

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		runner:   &pipeline.Runner{Engine: eng},
		config:   config,
	}, nil
}

// Registry returns the application's engine registry. This is primarily for
// testing.
func (a *App) Registry() *engine.Registry {
	return a.registry
}

// Runner returns the application's pipeline runner. This is primarily for
// testing, where the exec step is substituted.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}
