package record

import (
	"fmt"
	"time"
)

// Value is a tagged union holding one field value of a given Type. The zero
// Value is a null Long; use the constructors.
type Value struct {
	typ  Type
	null bool
	l    int64
	d    float64
	s    string
	b    bool
	t    time.Time
}

func LongValue(v int64) Value { return Value{typ: Long, l: v} }
func DoubleValue(v float64) Value { return Value{typ: Double, d: v} }
func StringValue(v string) Value { return Value{typ: String, s: v} }
func BooleanValue(v bool) Value { return Value{typ: Boolean, b: v} }
func TimestampValue(v time.Time) Value { return Value{typ: Timestamp, t: v.UTC()} }

// NullValue returns a null of the given type.
func NullValue(t Type) Value { return Value{typ: t, null: true} }

// Type returns the variant held by v.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool { return v.null }

func (v Value) Long() int64 { return v.l }
func (v Value) Double() float64 { return v.d }
func (v Value) Text() string { return v.s }
func (v Value) Boolean() bool { return v.b }
func (v Value) Timestamp() time.Time { return v.t }

// Interface returns the value as a plain Go value, nil for nulls.
func (v Value) Interface() interface{} {
	if v.null {
		return nil
	}
	switch v.typ {
	case Long:
		return v.l
	case Double:
		return v.d
	case String:
		return v.s
	case Boolean:
		return v.b
	case Timestamp:
		return v.t
	default:
		return nil
	}
}

// String renders the value as text for previews. Nulls render empty.
func (v Value) String() string {
	if v.null {
		return ""
	}
	switch v.typ {
	case Long:
		return fmt.Sprintf("%d", v.l)
	case Double:
		return fmt.Sprintf("%g", v.d)
	case String:
		return v.s
	case Boolean:
		return fmt.Sprintf("%t", v.b)
	case Timestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports whether two values have the same type, nullness and content.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.typ {
	case Long:
		return v.l == o.l
	case Double:
		return v.d == o.d
	case String:
		return v.s == o.s
	case Boolean:
		return v.b == o.b
	case Timestamp:
		return v.t.Equal(o.t)
	default:
		return false
	}
}
