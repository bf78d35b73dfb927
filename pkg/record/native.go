package record

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ajitpratap0/quickload/pkg/json"
)

// number is satisfied by json.Number.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// FromNative converts a value decoded by a structured reader (JSON, Avro,
// a SQL driver) to the column's Type. Strings go through ParseText, so a
// quoted "42" decodes into a long column. Integral floats convert to long;
// fractional ones are a FieldDecodeError.
func FromNative(col Column, v interface{}, opts TextOptions) (Value, error) {
	switch x := v.(type) {
	case nil:
		return NullValue(col.Type), nil
	case string:
		return ParseText(col, x, opts)
	case []byte:
		return ParseText(col, string(x), opts)
	case Value:
		return x, nil
	}

	switch col.Type {
	case Long:
		return nativeLong(col, v)
	case Double:
		return nativeDouble(col, v)
	case String:
		return nativeString(col, v)
	case Boolean:
		if b, ok := v.(bool); ok {
			return BooleanValue(b), nil
		}
	case Timestamp:
		return nativeTimestamp(col, v)
	}
	return Value{}, NewFieldDecodeError(col, fmt.Sprint(v), fmt.Errorf("cannot convert %T to %s", v, col.Type))
}

func nativeLong(col Column, v interface{}) (Value, error) {
	switch x := v.(type) {
	case int:
		return LongValue(int64(x)), nil
	case int8:
		return LongValue(int64(x)), nil
	case int16:
		return LongValue(int64(x)), nil
	case int32:
		return LongValue(int64(x)), nil
	case int64:
		return LongValue(x), nil
	case uint8:
		return LongValue(int64(x)), nil
	case uint16:
		return LongValue(int64(x)), nil
	case uint32:
		return LongValue(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, NewFieldDecodeError(col, strconv.FormatUint(x, 10), fmt.Errorf("overflows int64"))
		}
		return LongValue(int64(x)), nil
	case float32:
		return integral(col, float64(x))
	case float64:
		return integral(col, x)
	case bool:
		if x {
			return LongValue(1), nil
		}
		return LongValue(0), nil
	case number:
		if i, err := x.Int64(); err == nil {
			return LongValue(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, NewFieldDecodeError(col, x.String(), err)
		}
		return integral(col, f)
	}
	return Value{}, NewFieldDecodeError(col, fmt.Sprint(v), fmt.Errorf("cannot convert %T to long", v))
}

func integral(col Column, f float64) (Value, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return Value{}, NewFieldDecodeError(col, strconv.FormatFloat(f, 'g', -1, 64), fmt.Errorf("not an integer"))
	}
	return LongValue(int64(f)), nil
}

func nativeDouble(col Column, v interface{}) (Value, error) {
	switch x := v.(type) {
	case float64:
		return DoubleValue(x), nil
	case float32:
		return DoubleValue(float64(x)), nil
	case int:
		return DoubleValue(float64(x)), nil
	case int32:
		return DoubleValue(float64(x)), nil
	case int64:
		return DoubleValue(float64(x)), nil
	case number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, NewFieldDecodeError(col, x.String(), err)
		}
		return DoubleValue(f), nil
	}
	return Value{}, NewFieldDecodeError(col, fmt.Sprint(v), fmt.Errorf("cannot convert %T to double", v))
}

func nativeString(col Column, v interface{}) (Value, error) {
	switch x := v.(type) {
	case fmt.Stringer:
		return StringValue(x.String()), nil
	case bool, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return StringValue(fmt.Sprint(x)), nil
	case float32:
		return StringValue(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		return StringValue(strconv.FormatFloat(x, 'g', -1, 64)), nil
	}
	// nested objects and arrays keep their JSON text
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, NewFieldDecodeError(col, fmt.Sprint(v), err)
	}
	return StringValue(string(data)), nil
}

// nativeTimestamp accepts time values and numbers of seconds since the
// Unix epoch.
func nativeTimestamp(col Column, v interface{}) (Value, error) {
	switch x := v.(type) {
	case time.Time:
		return TimestampValue(x), nil
	case int64:
		return TimestampValue(time.Unix(x, 0)), nil
	case int:
		return TimestampValue(time.Unix(int64(x), 0)), nil
	case float64:
		return TimestampValue(epochSeconds(x)), nil
	case number:
		if i, err := x.Int64(); err == nil {
			return TimestampValue(time.Unix(i, 0)), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, NewFieldDecodeError(col, x.String(), err)
		}
		return TimestampValue(epochSeconds(f)), nil
	}
	return Value{}, NewFieldDecodeError(col, fmt.Sprint(v), fmt.Errorf("cannot convert %T to timestamp", v))
}

func epochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
