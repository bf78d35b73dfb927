package record

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/multierr"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// Schema is the ordered, immutable set of Columns every producer and
// consumer of a job's records honors. Column names are unique and each
// column's Index equals its position.
type Schema struct {
	columns []Column
	byName  map[string]int
	arrow   *arrow.Schema
}

// NewSchema validates the columns and returns a Schema.
func NewSchema(columns ...Column) (*Schema, error) {
	s := &Schema{
		columns: make([]Column, len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	fields := make([]arrow.Field, len(columns))

	for i, col := range columns {
		if col.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %d has no name", i)
		}
		if col.Index != i {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"column %q declares index %d at position %d", col.Name, col.Index, i)
		}
		if !col.Type.Valid() {
			return nil, errors.Newf(errors.ErrorTypeValidation, "column %q has invalid type %s", col.Name, col.Type)
		}
		if _, dup := s.byName[col.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "duplicate column name %q", col.Name)
		}
		s.columns[i] = col
		s.byName[col.Name] = i
		fields[i] = arrow.Field{Name: col.Name, Type: col.Type.ArrowType(), Nullable: true}
	}

	s.arrow = arrow.NewSchema(fields, nil)
	return s, nil
}

// MustSchema is NewSchema that panics on invalid input. Intended for tests
// and static schemas.
func MustSchema(columns ...Column) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Column returns the column at index i.
func (s *Schema) Column(i int) Column { return s.columns[i] }

// Columns returns a copy of the column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Lookup finds a column by name.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Arrow returns the Arrow schema used for Page encoding.
func (s *Schema) Arrow() *arrow.Schema { return s.arrow }

// Equal reports whether two schemas declare the same columns.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.columns) != len(o.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != o.columns[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, c := range s.columns {
		parts[i] = c.Name + ":" + c.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Produce fills the builder's pending record from the producer. Every column
// is visited exactly once, in index order. A column whose value cannot be
// produced is written as null and its FieldDecodeError is collected; the
// remaining columns are still produced. The returned error combines every
// field failure of the record, and the caller decides whether to keep
// (AddRecord) or drop (DiscardRecord) the record. Any other producer error
// stops the record immediately and is returned as is.
func (s *Schema) Produce(builder *PageBuilder, producer RecordProducer) error {
	var errs error
	for _, col := range s.columns {
		v, err := producer.Field(col)
		if err == nil && !v.IsNull() && v.Type() != col.Type {
			err = NewFieldDecodeError(col, v.String(),
				fmt.Errorf("producer returned %s value for %s column", v.Type(), col.Type))
		}
		if err != nil {
			if !errors.IsFieldDecode(err) {
				// not a conversion failure: the producer itself is broken
				return multierr.Append(errs, err)
			}
			errs = multierr.Append(errs, err)
			builder.SetNull(col.Index)
			continue
		}
		builder.Set(col.Index, v)
	}
	return errs
}

// FieldErrors splits an error returned by Produce into its per-column
// FieldDecodeErrors.
func FieldErrors(err error) []*errors.Error {
	var out []*errors.Error
	for _, e := range multierr.Errors(err) {
		if fe, ok := errors.Find(e, errors.ErrorTypeFieldDecode); ok {
			out = append(out, fe)
		}
	}
	return out
}

// ProducerFailure returns the first error combined by Produce that is not a
// FieldDecodeError, or nil when every failure was a field conversion.
func ProducerFailure(err error) error {
	for _, e := range multierr.Errors(err) {
		if _, ok := errors.Find(e, errors.ErrorTypeFieldDecode); !ok {
			return e
		}
	}
	return nil
}
