// Package config loads and validates the reframe project configuration.
//
// The pipeline is configuration, not code: the rule chain, the pivot spec,
// and the standardize requests are all declared in reframe.yaml, so the
// same engine can be re-targeted at structurally similar datasets without
// modification.
package config

import "github.com/reframe-labs/reframe/pkg/frame"

// SourceConfig holds database source configuration.
type SourceConfig struct {
	Type string `koanf:"type"` // duckdb, postgres
	// Path is the database file path (DuckDB) or DSN (Postgres).
	Path string `koanf:"path"`
}

// FieldSpec declares one input field: name, type, nullability.
type FieldSpec struct {
	Name     string          `koanf:"name"`
	Type     frame.FieldType `koanf:"type"`
	Nullable bool            `koanf:"nullable"`
}

// InputConfig describes where the raw extract lives and its declared schema.
// Exactly one of Table or CSVPath must be set; a CSV path is staged into a
// table by the source before loading.
type InputConfig struct {
	Table   string      `koanf:"table"`
	CSVPath string      `koanf:"csv_path"`
	Fields  []FieldSpec `koanf:"fields"`
}

// PipelineConfig is the declarative pipeline: an ordered rule chain, the
// terminal uniqueness key it must produce, one pivot spec, and zero or more
// standardize requests applied to the wide table.
type PipelineConfig struct {
	// Seed drives the deterministic tie-break ranks. Same seed, same
	// input, same survivors.
	Seed        uint64                  `koanf:"seed"`
	Rules       []frame.Rule            `koanf:"rules"`
	TerminalKey []string                `koanf:"terminal_key"`
	Pivot       frame.PivotSpec         `koanf:"pivot"`
	Standardize []frame.StandardizeSpec `koanf:"standardize"`
}

// OutputConfig describes where the final wide table is written.
type OutputConfig struct {
	Table string `koanf:"table"`
	// CSVPath optionally exports the final table as CSV as well.
	CSVPath string `koanf:"csv_path"`
}

// Config holds all project configuration options.
type Config struct {
	Source       SourceConfig   `koanf:"source"`
	Input        InputConfig    `koanf:"input"`
	Pipeline     PipelineConfig `koanf:"pipeline"`
	Output       OutputConfig   `koanf:"output"`
	StatePath    string         `koanf:"state_path"`
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output_format"`
}

// InputSchema builds the frame schema declared by the input fields.
func (c *Config) InputSchema() (*frame.Schema, error) {
	fields := make([]frame.Field, len(c.Input.Fields))
	for i, f := range c.Input.Fields {
		fields[i] = frame.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	return frame.NewSchema(fields)
}
