package config

import (
	"fmt"

	"github.com/reframe-labs/reframe/internal/pivot"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// Validate checks the configuration shape: everything that can be verified
// without resolving field references.
func (c *Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Input.Table == "" && c.Input.CSVPath == "" {
		return fmt.Errorf("one of input.table or input.csv_path is required")
	}
	if c.Input.Table != "" && c.Input.CSVPath != "" {
		return fmt.Errorf("input.table and input.csv_path are mutually exclusive")
	}
	if len(c.Input.Fields) == 0 {
		return fmt.Errorf("input.fields must declare the input schema")
	}
	for i, f := range c.Input.Fields {
		if f.Name == "" {
			return fmt.Errorf("input.fields[%d] has no name", i)
		}
	}
	if len(c.Pipeline.TerminalKey) == 0 {
		return fmt.Errorf("pipeline.terminal_key is required")
	}
	if c.Output.Table == "" {
		return fmt.Errorf("output.table is required")
	}
	return nil
}

// ValidatePipeline resolves every field reference in the pipeline against
// the declared input schema and the derived wide schema, before any data is
// touched. On success it returns the final output schema.
func (c *Config) ValidatePipeline() (*frame.Schema, error) {
	in, err := c.InputSchema()
	if err != nil {
		return nil, err
	}

	// Rules never change the schema, only the row set.
	for i, rule := range c.Pipeline.Rules {
		if err := rule.Validate(in); err != nil {
			return nil, fmt.Errorf("pipeline.rules[%d]: %w", i, err)
		}
	}
	if _, err := in.Indexes(c.Pipeline.TerminalKey); err != nil {
		return nil, fmt.Errorf("pipeline.terminal_key: %w", err)
	}

	wide, err := pivot.OutputSchema(in, c.Pipeline.Pivot)
	if err != nil {
		return nil, fmt.Errorf("pipeline.pivot: %w", err)
	}

	// Standardize requests are independent passes over the wide table;
	// their output names must be distinct.
	seen := make(map[string]bool, len(c.Pipeline.Standardize))
	fields := append([]frame.Field{}, wide.Fields()...)
	for i, spec := range c.Pipeline.Standardize {
		if err := spec.Validate(wide); err != nil {
			return nil, fmt.Errorf("pipeline.standardize[%d]: %w", i, err)
		}
		if seen[spec.As] {
			return nil, fmt.Errorf("pipeline.standardize[%d]: duplicate output field %q", i, spec.As)
		}
		seen[spec.As] = true
		fields = append(fields, frame.Field{Name: spec.As, Type: frame.TypeFloat, Nullable: true})
	}

	return frame.NewSchema(fields)
}
