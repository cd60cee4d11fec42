package app

import (
	"errors"
	"time"

	"github.com/vk/brainseg/internal/device"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	InputPath  string // a volume file, or a directory in batch/watch mode
	OutputPath string // explicit output file; only valid for a single input
	OutputDir  string // relocates the output basename, explicit or derived
	Suffix     string
	Overwrite  bool

	Engine      string // engine name; empty means the sole installed one
	EnginesPath string // directory of engine manifests
	Device      device.Kind

	Workers  int
	Watch    bool
	Settle   time.Duration // watch mode settle delay; 0 uses the default
	KeepTemp bool

	LogFormat string
	LogLevel  string
	Quiet     bool // only log errors, regardless of LogLevel
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.InputPath == "" {
		return nil, errors.New("InputPath is a required configuration field and cannot be empty")
	}
	if cfg.EnginesPath == "" {
		return nil, errors.New("EnginesPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &cfg, nil
}
