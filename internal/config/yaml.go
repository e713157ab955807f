package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/ctxlog"
)

// YAMLLoader reads sheet files written in YAML:
//
//	engine:
//	  max_worlds: 1000
//	  seed: 7
//	rows:
//	  - ["{1,2,3}", "=A1*10"]
//	  - [5, true, text]
//	filters:
//	  - cell: A1
//	    worlds: [0, 2]
//
// amb literals must be quoted, a bare {1,2} is a YAML mapping.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML sheet loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

type yamlSheetFile struct {
	Engine struct {
		MaxWorlds *int    `yaml:"max_worlds"`
		Seed      *uint64 `yaml:"seed"`
	} `yaml:"engine"`
	Rows    [][]yaml.Node `yaml:"rows"`
	Filters []struct {
		Cell   string `yaml:"cell"`
		Worlds []int  `yaml:"worlds"`
	} `yaml:"filters"`
}

// Load reads and decodes one YAML sheet file.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}

	var root yamlSheetFile
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}

	model := &Model{
		Engine: EngineConfig{MaxWorlds: root.Engine.MaxWorlds, Seed: root.Engine.Seed},
	}
	for r, nodes := range root.Rows {
		row := make([]string, len(nodes))
		for c, node := range nodes {
			text, err := cellText(&node)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d cell %d: %w", path, r+1, c+1, err)
			}
			row[c] = text
		}
		model.Rows = append(model.Rows, row)
	}
	for _, f := range root.Filters {
		model.Filters = append(model.Filters, Filter{Cell: f.Cell, Worlds: f.Worlds})
	}
	if err := model.validate(path); err != nil {
		return nil, err
	}

	logger.Debug("YAML loading complete.", "rows", len(model.Rows), "filters", len(model.Filters))
	return model, nil
}

// cellText returns the source text of a scalar exactly as written, so 2.50
// stays 2.50 and an explicit null is an empty cell
func cellText(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("line %d: cell must be a scalar, quote amb literals like \"{1,2}\"", node.Line)
	}
	if node.Tag == "!!null" {
		return "", nil
	}
	return node.Value, nil
}
