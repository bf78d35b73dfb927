package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// RecordProducer supplies the field values of one physical record. Schema
// calls Field once per column, in index order. Implementations return a
// Value of the column's Type, a null Value, or a FieldDecodeError when the
// raw input cannot be converted.
//
// A producer keeps only the raw fields of the record currently being
// decoded. Values it returns must not alias buffers the decoder reuses.
type RecordProducer interface {
	Field(col Column) (Value, error)
}

// ProducerFunc adapts a function to RecordProducer.
type ProducerFunc func(col Column) (Value, error)

func (f ProducerFunc) Field(col Column) (Value, error) { return f(col) }

// TextOptions controls how ParseText converts raw text.
type TextOptions struct {
	// NullString is the literal that decodes to null. Empty text is always
	// null for non-string columns.
	NullString string
	// TimestampFormat is a Go time layout. Defaults to RFC3339Nano.
	TimestampFormat string
	// Location is used for layouts without a zone. Defaults to UTC.
	Location *time.Location
}

// ParseText converts the raw text of a field to the column's Type. This is
// the conversion dispatch shared by every text-based format adapter.
func ParseText(col Column, raw string, opts TextOptions) (Value, error) {
	if opts.NullString != "" && raw == opts.NullString {
		return NullValue(col.Type), nil
	}
	if raw == "" && col.Type != String {
		return NullValue(col.Type), nil
	}

	switch col.Type {
	case Long:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, NewFieldDecodeError(col, raw, err)
		}
		return LongValue(v), nil
	case Double:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Value{}, NewFieldDecodeError(col, raw, err)
		}
		return DoubleValue(v), nil
	case String:
		return StringValue(raw), nil
	case Boolean:
		v, err := parseBool(raw)
		if err != nil {
			return Value{}, NewFieldDecodeError(col, raw, err)
		}
		return BooleanValue(v), nil
	case Timestamp:
		layout := opts.TimestampFormat
		if layout == "" {
			layout = time.RFC3339Nano
		}
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		v, err := time.ParseInLocation(layout, strings.TrimSpace(raw), loc)
		if err != nil {
			return Value{}, NewFieldDecodeError(col, raw, err)
		}
		return TimestampValue(v), nil
	default:
		return Value{}, NewFieldDecodeError(col, raw, fmt.Errorf("unsupported type %s", col.Type))
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "yes", "y", "1", "on":
		return true, nil
	case "false", "f", "no", "n", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

// NewFieldDecodeError reports that one column's raw value could not be
// converted. The error carries the column index, name and raw text.
func NewFieldDecodeError(col Column, raw string, cause error) *errors.Error {
	err := errors.New(errors.ErrorTypeFieldDecode,
		fmt.Sprintf("cannot decode column %q (index %d) as %s from %q", col.Name, col.Index, col.Type, raw)).
		WithDetail("column_index", col.Index).
		WithDetail("column_name", col.Name).
		WithDetail("column_type", col.Type.String()).
		WithDetail("raw", raw)
	err.Cause = cause
	return err
}
