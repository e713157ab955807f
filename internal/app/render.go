package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet"
)

// renderText writes one line per included world of every non-empty cell,
// aligned in columns. failed and stuck cells get a single line with the
// reason.
func renderText(w io.Writer, filtered *ambsheet.FilteredResults) error {
	results := filtered.Results()
	stuck := stuckByCell(results)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CELL\tSTATE\tVALUE\tWORLD")

	bounds := ambsheet.RangeAddress{EndRow: results.Rows() - 1, EndColumn: results.Cols() - 1}
	for pos := range bounds.Positions() {
		result := results.Get(pos)
		switch result.State {
		case ambsheet.CellEmpty:
			continue
		case ambsheet.CellFailed:
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pos, result.State, result.Err.Short(), result.Err.Message)
		case ambsheet.CellNotReady:
			s := stuck[pos]
			fmt.Fprintf(tw, "%s\t%s\t%s\twaiting on %s\n", pos, result.State, s.Reason, s.Blocker)
		case ambsheet.CellResolved:
			values := filtered.Values(pos)
			if len(values) == 0 {
				fmt.Fprintf(tw, "%s\t%s\t(no worlds)\t\n", pos, result.State)
				continue
			}
			for i, v := range values {
				name, state := pos.String(), result.State.String()
				if i > 0 {
					name, state = "", ""
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, state, ambsheet.FormatValue(v.Raw), results.Resolve(v.Context))
			}
		}
	}
	return tw.Flush()
}

type sheetJSON struct {
	Rows  int        `json:"rows"`
	Cols  int        `json:"cols"`
	Cells []cellJSON `json:"cells"`
}

type cellJSON struct {
	Cell    string      `json:"cell"`
	State   string      `json:"state"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Blocker string      `json:"blocker,omitempty"`
	Values  []valueJSON `json:"values,omitempty"`
}

type valueJSON struct {
	Type     string                   `json:"type"`
	Display  string                   `json:"display"`
	Context  ambsheet.ResolvedContext `json:"context"`
	Included bool                     `json:"included"`
}

// renderJSON writes every world of every non-empty cell with its include
// flag, so filtered-out worlds stay visible to tools
func renderJSON(w io.Writer, filtered *ambsheet.FilteredResults) error {
	results := filtered.Results()
	stuck := stuckByCell(results)
	out := sheetJSON{Rows: results.Rows(), Cols: results.Cols(), Cells: []cellJSON{}}

	bounds := ambsheet.RangeAddress{EndRow: results.Rows() - 1, EndColumn: results.Cols() - 1}
	for pos := range bounds.Positions() {
		result := results.Get(pos)
		if result.State == ambsheet.CellEmpty {
			continue
		}
		cell := cellJSON{Cell: pos.String(), State: result.State.String()}
		switch result.State {
		case ambsheet.CellFailed:
			cell.Error = result.Err.Short()
			cell.Message = result.Err.Message
		case ambsheet.CellNotReady:
			s := stuck[pos]
			cell.Reason = s.Reason.String()
			cell.Blocker = s.Blocker.String()
		case ambsheet.CellResolved:
			include := filtered.Include(pos)
			for i, v := range result.Values {
				cell.Values = append(cell.Values, valueJSON{
					Type:     valueType(v.Raw),
					Display:  ambsheet.FormatValue(v.Raw),
					Context:  results.Resolve(v.Context),
					Included: include[i],
				})
			}
		}
		out.Cells = append(out.Cells, cell)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func stuckByCell(results *ambsheet.Results) map[ambsheet.Position]ambsheet.StuckCell {
	stuck := make(map[ambsheet.Position]ambsheet.StuckCell, len(results.Stuck()))
	for _, s := range results.Stuck() {
		stuck[s.Cell] = s
	}
	return stuck
}

func valueType(v ambsheet.Primitive) string {
	switch v.(type) {
	case nil:
		return "empty"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case *ambsheet.SpreadsheetError:
		return "error"
	case [][]ambsheet.Primitive:
		return "range"
	default:
		return "unknown"
	}
}
