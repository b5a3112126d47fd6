package commands

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/reframe-labs/reframe/internal/cli/output"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// renderDataset writes a dataset in the renderer's effective mode.
func renderDataset(r *output.Renderer, ds *frame.Dataset) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(datasetRows(ds))
	}

	header, rows := datasetTable(ds)
	r.Table(header, rows)
	if r.EffectiveMode() == output.ModeText || r.EffectiveMode() == output.ModeMarkdown {
		r.Printf("(%d rows)\n", ds.Len())
	}
	return nil
}

// datasetTable flattens a dataset into display cells. Missing values
// render as empty cells.
func datasetTable(ds *frame.Dataset) ([]string, [][]string) {
	fields := ds.Schema().Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}

	rows := make([][]string, ds.Len())
	for i, rec := range ds.Records() {
		row := make([]string, len(rec.Values))
		for j, v := range rec.Values {
			row[j] = v.String()
		}
		rows[i] = row
	}
	return header, rows
}

// datasetRows converts records to field-keyed maps for JSON output.
// Missing values become nulls.
func datasetRows(ds *frame.Dataset) []map[string]any {
	fields := ds.Schema().Fields()
	rows := make([]map[string]any, 0, ds.Len())
	for _, rec := range ds.Records() {
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = valueJSON(rec.Values[i])
		}
		rows = append(rows, row)
	}
	return rows
}

func valueJSON(v frame.Value) any {
	if v.IsMissing() {
		return nil
	}
	switch v.Type() {
	case frame.TypeInt:
		return v.Int()
	case frame.TypeFloat:
		return v.Float()
	case frame.TypeDate:
		return v.Time().Format(time.DateOnly)
	default:
		return v.Str()
	}
}

// exportCSV writes the dataset to path as CSV.
func exportCSV(path string, ds *frame.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header, rows := datasetTable(ds)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}
