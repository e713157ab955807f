// Package config defines the format-agnostic sheet file model and the
// loaders that read it from HCL or YAML files.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Model is everything a sheet file can hold: the cell grid, evaluator
// settings and the world selections to apply to the results.
type Model struct {
	Engine  EngineConfig
	Rows    [][]string
	Filters []Filter
}

// EngineConfig holds evaluator settings. nil fields were not set in the file.
type EngineConfig struct {
	MaxWorlds *int
	Seed      *uint64
}

// Filter selects worlds by their position in one cell's value list
type Filter struct {
	Cell   string
	Worlds []int
}

// Loader reads a sheet file into the format-agnostic model.
type Loader interface {
	Load(ctx context.Context, path string) (*Model, error)
}

// LoaderFor picks a loader by file extension
func LoaderFor(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		return NewHCLLoader(), nil
	case ".yaml", ".yml":
		return NewYAMLLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported sheet file %s: expected .hcl, .yaml or .yml", path)
	}
}

func (m *Model) validate(path string) error {
	for i, f := range m.Filters {
		if f.Cell == "" {
			return fmt.Errorf("%s: filter %d has no cell", path, i+1)
		}
		if len(f.Worlds) == 0 {
			return fmt.Errorf("%s: filter %s selects no worlds", path, f.Cell)
		}
	}
	if m.Engine.MaxWorlds != nil && *m.Engine.MaxWorlds < 0 {
		return fmt.Errorf("%s: max_worlds must not be negative", path)
	}
	return nil
}
