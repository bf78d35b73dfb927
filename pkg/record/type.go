// Package record defines the typed record model shared by every quickload
// plugin: the closed set of field Types, Columns and Schemas, the tagged
// Value union that format adapters hand to a Schema, and the columnar Page
// buffers built by a PageBuilder.
//
// A Schema is declared once per job by the format-decoding plugin and is
// read-only afterwards. Pages are encoded as Apache Arrow record batches and
// can be decoded with nothing but the Schema they were built against.
//
//	schema, _ := record.NewSchema(
//	    record.NewColumn("id", 0, record.Long),
//	    record.NewColumn("name", 1, record.String),
//	)
//	builder := record.NewPageBuilder(memory.DefaultAllocator, schema, sink, 1024)
//	defer builder.Close()
//
//	for producer.Next() {
//	    if err := schema.Produce(builder, producer); err != nil {
//	        builder.DiscardRecord()
//	        continue
//	    }
//	    _ = builder.AddRecord(ctx)
//	}
//	_ = builder.Flush(ctx)
package record

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// Type is the closed set of field types a Column may declare. It decides the
// physical Arrow encoding inside a Page and the Value variant a
// RecordProducer must return for the column.
type Type int

const (
	// Long is a signed 64-bit integer.
	Long Type = iota
	// Double is a 64-bit IEEE-754 float.
	Double
	// String is UTF-8 text.
	String
	// Boolean is true/false.
	Boolean
	// Timestamp is an instant with microsecond precision, stored as UTC.
	Timestamp
)

var typeNames = [...]string{
	Long:      "long",
	Double:    "double",
	String:    "string",
	Boolean:   "boolean",
	Timestamp: "timestamp",
}

// String returns the configuration name of the type.
func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Valid reports whether t is one of the declared variants.
func (t Type) Valid() bool {
	return t >= Long && t <= Timestamp
}

// ArrowType returns the columnar encoding used for the type inside a Page.
func (t Type) ArrowType() arrow.DataType {
	switch t {
	case Long:
		return arrow.PrimitiveTypes.Int64
	case Double:
		return arrow.PrimitiveTypes.Float64
	case String:
		return arrow.BinaryTypes.String
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		panic(fmt.Sprintf("record: no arrow encoding for %s", t))
	}
}

// ParseType maps a configuration name to a Type. Names are case-insensitive
// and accept the common aliases used by schema files.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "long", "int", "integer", "int64", "bigint":
		return Long, nil
	case "double", "float", "float64", "number":
		return Double, nil
	case "string", "text", "varchar", "utf8":
		return String, nil
	case "boolean", "bool":
		return Boolean, nil
	case "timestamp", "datetime":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", name)
	}
}

// Column names, positions and types one field of a Schema. It is a value
// type and never changes after construction.
type Column struct {
	Name  string
	Index int
	Type  Type
}

// NewColumn returns a column descriptor.
func NewColumn(name string, index int, typ Type) Column {
	return Column{Name: name, Index: index, Type: typ}
}

func (c Column) String() string {
	return fmt.Sprintf("%s:%s@%d", c.Name, c.Type, c.Index)
}
