package frame

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType enumerates the value types a field can declare.
type FieldType int

const (
	// TypeString is free-form text.
	TypeString FieldType = iota
	// TypeInt is a 64-bit integer.
	TypeInt
	// TypeFloat is a 64-bit float.
	TypeFloat
	// TypeDate is a calendar timestamp.
	TypeDate
	// TypeCode is a categorical code (compared as text, distinct from
	// free-form strings so schema intent stays visible).
	TypeCode
)

// String returns the config-facing name of the type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeCode:
		return "code"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType parses a config-facing type name.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return TypeString, nil
	case "int", "integer":
		return TypeInt, nil
	case "float", "real", "double":
		return TypeFloat, nil
	case "date", "timestamp":
		return TypeDate, nil
	case "code", "categorical":
		return TypeCode, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", s)
	}
}

// Numeric reports whether values of the type order as numbers.
func (t FieldType) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Field describes one column of a dataset.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is an ordered list of fields with name lookup.
// A Schema is fixed for the lifetime of the Dataset carrying it.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from an ordered field list.
// Duplicate field names are an error.
func NewSchema(fields []Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)
	for i, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q in schema", f.Name)
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. For tests and literals.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the ordered field list. Callers must not mutate it.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Index returns the position of the named field.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	if i, ok := s.index[name]; ok {
		return s.fields[i], true
	}
	return Field{}, false
}

// Indexes resolves a list of field names to positions.
// An unknown name is a SchemaError.
func (s *Schema) Indexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos, ok := s.index[name]
		if !ok {
			return nil, &SchemaError{Field: name}
		}
		idx[i] = pos
	}
	return idx, nil
}

// Record is one row: values aligned positionally to the dataset schema,
// plus the ingestion sequence number used as the stable secondary order
// for tie-breaking.
type Record struct {
	Values []Value
	Seq    int
}

// Dataset is an ordered sequence of records sharing one schema.
//
// Datasets are treated as immutable values between pipeline stages: a stage
// reads the dataset it received and constructs a fresh one for its output.
type Dataset struct {
	schema  *Schema
	records []Record
	nextSeq int
}

// NewDataset creates an empty dataset with the given schema.
func NewDataset(schema *Schema) *Dataset {
	return &Dataset{schema: schema}
}

// Schema returns the dataset schema.
func (d *Dataset) Schema() *Schema {
	return d.schema
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Records returns the record slice. Callers must not mutate it.
func (d *Dataset) Records() []Record {
	return d.records
}

// Record returns the i-th record.
func (d *Dataset) Record(i int) Record {
	return d.records[i]
}

// Append adds a row and assigns it the next ingestion sequence number.
// The value count must match the schema width.
func (d *Dataset) Append(values ...Value) error {
	if len(values) != d.schema.Len() {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), d.schema.Len())
	}
	for i, v := range values {
		f := d.schema.fields[i]
		if !v.IsMissing() && v.Type() != f.Type {
			return &TypeError{Field: f.Name, Want: f.Type, Got: v.Type()}
		}
	}
	d.records = append(d.records, Record{Values: values, Seq: d.nextSeq})
	d.nextSeq++
	return nil
}

// AppendRecord adds a row preserving an existing sequence number.
// Used by stages that carry survivors through from an upstream dataset.
func (d *Dataset) AppendRecord(rec Record) error {
	if len(rec.Values) != d.schema.Len() {
		return fmt.Errorf("row has %d values, schema has %d fields", len(rec.Values), d.schema.Len())
	}
	d.records = append(d.records, rec)
	if rec.Seq >= d.nextSeq {
		d.nextSeq = rec.Seq + 1
	}
	return nil
}

// Key is the canonical encoding of a record's projection onto a set of key
// fields. Two records are in the same group iff their Keys are equal.
// Missing is encoded as a distinct sentinel and never matches a real value.
type Key string

// keySep separates key components; keyMissing marks an explicit missing
// component. Both are control bytes that cannot occur in field data.
const (
	keySep     = "\x1f"
	keyMissing = "\x00"
)

// KeyOf projects a record onto the given field positions.
func KeyOf(rec Record, idx []int) Key {
	var b strings.Builder
	for n, i := range idx {
		if n > 0 {
			b.WriteString(keySep)
		}
		v := rec.Values[i]
		if v.IsMissing() {
			b.WriteString(keyMissing)
			continue
		}
		switch v.Type() {
		case TypeInt:
			b.WriteString(strconv.FormatInt(v.Int(), 10))
		case TypeFloat:
			b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
		case TypeDate:
			b.WriteString(v.Time().UTC().Format(time.RFC3339Nano))
		default:
			b.WriteString(v.Str())
		}
	}
	return Key(b.String())
}

// String renders the key for error messages and logs.
func (k Key) String() string {
	s := strings.ReplaceAll(string(k), keyMissing, "<missing>")
	return strings.ReplaceAll(s, keySep, ", ")
}
