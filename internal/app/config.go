package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	SheetPath string // .hcl, .yaml or .yml sheet file

	LogFormat string
	LogLevel  string
	Output    string // "text" or "json"

	// set only when given on the command line; they override the file
	MaxWorlds *int
	Seed      *uint64
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.SheetPath == "" {
		return nil, errors.New("SheetPath is a required configuration field and cannot be empty")
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}
	if cfg.Output != "text" && cfg.Output != "json" {
		return nil, fmt.Errorf("invalid output %q: must be 'text' or 'json'", cfg.Output)
	}
	if cfg.MaxWorlds != nil && *cfg.MaxWorlds < 0 {
		return nil, errors.New("max-worlds must not be negative")
	}
	return &cfg, nil
}
