package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/ctxlog"
)

// HCLLoader reads sheet files written in HCL:
//
//	engine {
//	  max_worlds = 1000
//	  seed       = 7
//	}
//
//	rows = [
//	  ["{1,2,3}", "=A1*10"],
//	  [5, true, "text"],
//	]
//
//	filter "A1" {
//	  worlds = [0, 2]
//	}
type HCLLoader struct{}

// NewHCLLoader creates a new HCL sheet loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// hclSheetFile is the top-level structure of a sheet file for decoding.
type hclSheetFile struct {
	Engine  *hclEngine   `hcl:"engine,block"`
	Rows    cty.Value    `hcl:"rows,optional"`
	Filters []*hclFilter `hcl:"filter,block"`
}

type hclEngine struct {
	MaxWorlds *int    `hcl:"max_worlds,optional"`
	Seed      *uint64 `hcl:"seed,optional"`
}

type hclFilter struct {
	Cell   string `hcl:"cell,label"`
	Worlds []int  `hcl:"worlds"`
}

// Load parses and decodes one HCL sheet file.
func (l *HCLLoader) Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root hclSheetFile
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	rows, err := rowsFromCty(root.Rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	model := &Model{Rows: rows}
	if root.Engine != nil {
		model.Engine = EngineConfig{MaxWorlds: root.Engine.MaxWorlds, Seed: root.Engine.Seed}
	}
	for _, f := range root.Filters {
		model.Filters = append(model.Filters, Filter{Cell: f.Cell, Worlds: f.Worlds})
	}
	if err := model.validate(path); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "rows", len(model.Rows), "filters", len(model.Filters))
	return model, nil
}

// rowsFromCty turns a list of lists into cell source text. numbers and
// bools are accepted and converted to their string form; null is an empty
// cell.
func rowsFromCty(val cty.Value) ([][]string, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() || !val.CanIterateElements() {
		return nil, fmt.Errorf("rows must be a list of lists, got %s", val.Type().FriendlyName())
	}

	var rows [][]string
	for it := val.ElementIterator(); it.Next(); {
		_, rowVal := it.Element()
		r := len(rows) + 1
		if rowVal.IsNull() || !rowVal.CanIterateElements() {
			return nil, fmt.Errorf("row %d must be a list of cells", r)
		}

		var row []string
		for cellIt := rowVal.ElementIterator(); cellIt.Next(); {
			_, cellVal := cellIt.Element()
			c := len(row) + 1
			if cellVal.IsNull() {
				row = append(row, "")
				continue
			}
			str, err := convert.Convert(cellVal, cty.String)
			if err != nil {
				return nil, fmt.Errorf("row %d cell %d: %w", r, c, err)
			}
			row = append(row, str.AsString())
		}
		rows = append(rows, row)
	}
	return rows, nil
}
