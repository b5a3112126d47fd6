package frame

import "fmt"

// SchemaError reports a referenced field that is absent from the schema.
// Raised at configuration-validation time, before any data is touched.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("field %q not present in schema", e.Field)
}

// TypeError reports values that are not mutually comparable or do not match
// their declared field type.
type TypeError struct {
	Field string
	Want  FieldType
	Got   FieldType
}

func (e *TypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q: expected %s, got %s", e.Field, e.Want, e.Got)
	}
	return fmt.Sprintf("values of type %s and %s are not comparable", e.Want, e.Got)
}

// GroupingError reports an attempt to group on a record whose key value is
// Missing. Grouping on Missing is rejected, never silently bucketed.
type GroupingError struct {
	Field string
	Seq   int
}

func (e *GroupingError) Error() string {
	return fmt.Sprintf("record %d: group key field %q is missing", e.Seq, e.Field)
}

// DuplicateKeyError reports a violated uniqueness postcondition: either the
// declared terminal key after a rule chain, or the (identity, pivot value)
// pair before a pivot. It signals a misconfigured rule chain, not expected
// data noise.
type DuplicateKeyError struct {
	Fields     []string
	Key        Key
	PivotValue string
	Count      int
}

func (e *DuplicateKeyError) Error() string {
	if e.PivotValue != "" {
		return fmt.Sprintf("duplicate identity (%s) for pivot value %q", e.Key, e.PivotValue)
	}
	return fmt.Sprintf("key (%s) on %v is not unique: %d records", e.Key, e.Fields, e.Count)
}

// FieldInconsistencyError reports a passthrough field that is not constant
// within an identity group during a pivot.
type FieldInconsistencyError struct {
	Key   Key
	Field string
}

func (e *FieldInconsistencyError) Error() string {
	return fmt.Sprintf("field %q is not constant within identity (%s)", e.Field, e.Key)
}

// DegenerateGroupWarning records a group where standardization is undefined
// (fewer than two observations, or zero variance). Non-fatal: members get
// Missing output and the pipeline continues.
type DegenerateGroupWarning struct {
	Key    Key
	Field  string
	Size   int
	Reason string
}

func (w DegenerateGroupWarning) String() string {
	return fmt.Sprintf("standardization of %q undefined for group (%s): %s (n=%d)", w.Field, w.Key, w.Reason, w.Size)
}
