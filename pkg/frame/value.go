package frame

import (
	"fmt"
	"strconv"
	"time"
)

// Value is a typed scalar or an explicit Missing.
// The zero Value is Missing with type String.
type Value struct {
	typ     FieldType
	present bool
	str     string
	num     int64
	flt     float64
	ts      time.Time
}

// String creates a text value.
func String(s string) Value {
	return Value{typ: TypeString, present: true, str: s}
}

// Code creates a categorical code value.
func Code(s string) Value {
	return Value{typ: TypeCode, present: true, str: s}
}

// Int creates an integer value.
func Int(n int64) Value {
	return Value{typ: TypeInt, present: true, num: n}
}

// Float creates a float value.
func Float(f float64) Value {
	return Value{typ: TypeFloat, present: true, flt: f}
}

// Date creates a date value.
func Date(t time.Time) Value {
	return Value{typ: TypeDate, present: true, ts: t}
}

// Missing creates an explicit missing value of the given type.
func Missing(t FieldType) Value {
	return Value{typ: t}
}

// Type returns the declared type of the value.
func (v Value) Type() FieldType {
	return v.typ
}

// IsMissing reports whether the value is the explicit Missing.
func (v Value) IsMissing() bool {
	return !v.present
}

// Str returns the text content of a string or code value.
func (v Value) Str() string {
	return v.str
}

// Int returns the integer content.
func (v Value) Int() int64 {
	return v.num
}

// Float returns the float content. For integer values it returns the
// integer widened to float64, so numeric fields can be read uniformly.
func (v Value) Float() float64 {
	if v.typ == TypeInt {
		return float64(v.num)
	}
	return v.flt
}

// Time returns the date content.
func (v Value) Time() time.Time {
	return v.ts
}

// Equal reports whether two values are identical (same type, both missing,
// or same content). Missing never equals a real value.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	if v.IsMissing() || o.IsMissing() {
		return v.IsMissing() && o.IsMissing()
	}
	switch v.typ {
	case TypeInt:
		return v.num == o.num
	case TypeFloat:
		return v.flt == o.flt
	case TypeDate:
		return v.ts.Equal(o.ts)
	default:
		return v.str == o.str
	}
}

// String renders the value for display.
func (v Value) String() string {
	if v.IsMissing() {
		return ""
	}
	switch v.typ {
	case TypeInt:
		return strconv.FormatInt(v.num, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case TypeDate:
		return v.ts.Format("2006-01-02")
	default:
		return v.str
	}
}

// Compare imposes the documented total order between two values of
// compatible types. Integer and float values are mutually comparable;
// every other type only compares with itself.
//
// Missing position: for numeric and date fields, Missing sorts AFTER any
// real value (a "keep min" rule never selects Missing while a real value
// exists). For string and code fields, Missing sorts BEFORE any real
// value, adjacent to the empty string. Two Missings compare equal.
func Compare(a, b Value) (int, error) {
	if !typesComparable(a.typ, b.typ) {
		return 0, &TypeError{Want: a.typ, Got: b.typ}
	}
	if a.IsMissing() || b.IsMissing() {
		return compareMissing(a, b), nil
	}
	switch {
	case a.typ.Numeric():
		return cmpFloat(a.Float(), b.Float()), nil
	case a.typ == TypeDate:
		switch {
		case a.ts.Before(b.ts):
			return -1, nil
		case a.ts.After(b.ts):
			return 1, nil
		}
		return 0, nil
	default:
		switch {
		case a.str < b.str:
			return -1, nil
		case a.str > b.str:
			return 1, nil
		}
		return 0, nil
	}
}

func typesComparable(a, b FieldType) bool {
	if a.Numeric() && b.Numeric() {
		return true
	}
	return a == b
}

func compareMissing(a, b Value) int {
	if a.IsMissing() && b.IsMissing() {
		return 0
	}
	// missingLast: numeric and date; strings sort Missing first.
	last := a.typ.Numeric() || a.typ == TypeDate
	if a.IsMissing() {
		if last {
			return 1
		}
		return -1
	}
	if last {
		return -1
	}
	return 1
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ensure Value is printable in %v without surprises
var _ fmt.Stringer = Value{}
