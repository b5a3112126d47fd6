package frame

import (
	"fmt"
	"sort"
	"strings"
)

// Keep selects which end of the ordered group a rule retains.
type Keep int

const (
	// KeepMin retains the record with the least order-by value.
	KeepMin Keep = iota
	// KeepMax retains the record with the greatest order-by value.
	KeepMax
)

// String returns the config-facing name of the selection.
func (k Keep) String() string {
	if k == KeepMax {
		return "max"
	}
	return "min"
}

// ParseKeep parses a config-facing selection name.
func ParseKeep(s string) (Keep, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "first", "lowest", "earliest":
		return KeepMin, nil
	case "max", "last", "highest", "latest":
		return KeepMax, nil
	default:
		return 0, fmt.Errorf("unknown keep selection %q (want min or max)", s)
	}
}

// Rule declares how to collapse each group down to one record: partition by
// GroupBy, order by OrderBy under the per-type total order, keep the min or
// max. Rules are configuration data, replayed as an ordered chain.
type Rule struct {
	GroupBy []string `koanf:"group_by"`
	OrderBy string   `koanf:"order_by"`
	Keep    Keep     `koanf:"keep"`
}

// Validate checks the rule against a schema. The order-by field must order
// as a number or a date.
func (r Rule) Validate(schema *Schema) error {
	if len(r.GroupBy) == 0 {
		return fmt.Errorf("rule has no group_by fields")
	}
	if _, err := schema.Indexes(r.GroupBy); err != nil {
		return err
	}
	f, ok := schema.Field(r.OrderBy)
	if !ok {
		return &SchemaError{Field: r.OrderBy}
	}
	if !f.Type.Numeric() && f.Type != TypeDate {
		return &TypeError{Field: r.OrderBy, Want: TypeFloat, Got: f.Type}
	}
	return nil
}

// PivotSpec declares a long-to-wide reshape: one output record per Identity
// key, with the PivotField's values spread into column-name suffixes for
// every value field. Suffixes maps pivot values to the column suffix;
// pivot values observed in the data but absent from Suffixes are an error,
// so the output schema never depends on data-discovery order.
type PivotSpec struct {
	Identity    []string          `koanf:"identity"`
	PivotField  string            `koanf:"pivot_field"`
	ValueFields []string          `koanf:"value_fields"`
	Suffixes    map[string]string `koanf:"suffixes"`
}

// Validate checks the spec against a schema.
func (p PivotSpec) Validate(schema *Schema) error {
	if len(p.Identity) == 0 {
		return fmt.Errorf("pivot has no identity fields")
	}
	if len(p.ValueFields) == 0 {
		return fmt.Errorf("pivot has no value fields")
	}
	if len(p.Suffixes) == 0 {
		return fmt.Errorf("pivot has an empty suffix map")
	}
	if _, err := schema.Indexes(p.Identity); err != nil {
		return err
	}
	if _, err := schema.Indexes(p.ValueFields); err != nil {
		return err
	}
	if _, ok := schema.Field(p.PivotField); !ok {
		return &SchemaError{Field: p.PivotField}
	}
	return nil
}

// PivotValues returns the configured pivot values in sorted order. The
// output column order is derived from this, never from first-seen order.
func (p PivotSpec) PivotValues() []string {
	vals := make([]string, 0, len(p.Suffixes))
	for v := range p.Suffixes {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}

// StandardizeSpec declares a group-wise z-score pass: within each GroupBy
// partition, Target is centered on the group mean and scaled by the group
// sample standard deviation, into a new column named As.
type StandardizeSpec struct {
	GroupBy []string `koanf:"group_by"`
	Target  string   `koanf:"target"`
	As      string   `koanf:"as"`
}

// Validate checks the spec against a schema. The target must be numeric and
// the output name must not collide with an existing field.
func (s StandardizeSpec) Validate(schema *Schema) error {
	if len(s.GroupBy) == 0 {
		return fmt.Errorf("standardize has no group_by fields")
	}
	if s.As == "" {
		return fmt.Errorf("standardize has no output field name")
	}
	if _, err := schema.Indexes(s.GroupBy); err != nil {
		return err
	}
	f, ok := schema.Field(s.Target)
	if !ok {
		return &SchemaError{Field: s.Target}
	}
	if !f.Type.Numeric() {
		return &TypeError{Field: s.Target, Want: TypeFloat, Got: f.Type}
	}
	if _, clash := schema.Field(s.As); clash {
		return fmt.Errorf("standardize output field %q already exists", s.As)
	}
	return nil
}
