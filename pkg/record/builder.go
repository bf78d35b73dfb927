package record

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultPageSize is the number of records a Page holds when no size is
// configured.
const DefaultPageSize = 1024

// PageSink receives sealed pages. Ownership of the page passes to the sink
// on every call, including failed ones.
type PageSink interface {
	Add(ctx context.Context, page *Page) error
}

// SinkFunc adapts a function to PageSink.
type SinkFunc func(ctx context.Context, page *Page) error

func (f SinkFunc) Add(ctx context.Context, page *Page) error { return f(ctx, page) }

// PageBuilder accumulates records for one Schema and seals them into Pages.
// It is owned by a single goroutine.
type PageBuilder struct {
	schema   *Schema
	sink     PageSink
	capacity int

	rb      *array.RecordBuilder
	pending []Value
	isSet   []bool
	count   int

	sealed int
	onSeal func(*Page)
}

// BuilderOption configures a PageBuilder.
type BuilderOption func(*PageBuilder)

// WithSealHook registers a callback invoked with every sealed page before it
// is pushed to the sink. The hook must not release the page.
func WithSealHook(fn func(*Page)) BuilderOption {
	return func(b *PageBuilder) { b.onSeal = fn }
}

// NewPageBuilder returns a builder that allocates page buffers from mem and
// pushes every sealed page to sink. capacity is the number of records per
// page; values below one select DefaultPageSize.
func NewPageBuilder(mem memory.Allocator, schema *Schema, sink PageSink, capacity int, opts ...BuilderOption) *PageBuilder {
	if capacity <= 0 {
		capacity = DefaultPageSize
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := &PageBuilder{
		schema:   schema,
		sink:     sink,
		capacity: capacity,
		rb:       array.NewRecordBuilder(mem, schema.Arrow()),
		pending:  make([]Value, schema.Len()),
		isSet:    make([]bool, schema.Len()),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.rb.Reserve(capacity)
	return b
}

// Schema returns the builder's schema.
func (b *PageBuilder) Schema() *Schema { return b.schema }

// Pending returns the number of records added to the in-progress page.
func (b *PageBuilder) Pending() int { return b.count }

// Sealed returns the number of pages pushed so far.
func (b *PageBuilder) Sealed() int { return b.sealed }

func (b *PageBuilder) SetLong(i int, v int64) { b.Set(i, LongValue(v)) }
func (b *PageBuilder) SetDouble(i int, v float64) { b.Set(i, DoubleValue(v)) }
func (b *PageBuilder) SetString(i int, v string) { b.Set(i, StringValue(v)) }
func (b *PageBuilder) SetBoolean(i int, v bool) { b.Set(i, BooleanValue(v)) }
func (b *PageBuilder) SetTimestamp(i int, v time.Time) { b.Set(i, TimestampValue(v)) }

// SetNull marks column i of the pending record as null.
func (b *PageBuilder) SetNull(i int) {
	b.pending[i] = NullValue(b.schema.Column(i).Type)
	b.isSet[i] = true
}

// Set writes v to column i of the pending record. The value must be null or
// of the column's Type.
func (b *PageBuilder) Set(i int, v Value) {
	col := b.schema.Column(i)
	if !v.IsNull() && v.Type() != col.Type {
		panic(fmt.Sprintf("record: %s value written to column %s", v.Type(), col))
	}
	if v.IsNull() {
		v = NullValue(col.Type)
	}
	b.pending[i] = v
	b.isSet[i] = true
}

// Field returns the pending value of column i. Unset columns read as null.
func (b *PageBuilder) Field(i int) Value {
	if !b.isSet[i] {
		return NullValue(b.schema.Column(i).Type)
	}
	return b.pending[i]
}

// DiscardRecord drops the pending record.
func (b *PageBuilder) DiscardRecord() {
	for i := range b.isSet {
		b.isSet[i] = false
		b.pending[i] = Value{}
	}
}

// AddRecord finalizes the pending record into the in-progress page. Columns
// never set are written as null. When the page reaches capacity it is sealed
// and pushed to the sink.
func (b *PageBuilder) AddRecord(ctx context.Context) error {
	for i, col := range b.schema.columns {
		v := b.pending[i]
		if !b.isSet[i] || v.IsNull() {
			b.rb.Field(i).AppendNull()
			continue
		}
		switch col.Type {
		case Long:
			b.rb.Field(i).(*array.Int64Builder).Append(v.l)
		case Double:
			b.rb.Field(i).(*array.Float64Builder).Append(v.d)
		case String:
			b.rb.Field(i).(*array.StringBuilder).Append(v.s)
		case Boolean:
			b.rb.Field(i).(*array.BooleanBuilder).Append(v.b)
		case Timestamp:
			b.rb.Field(i).(*array.TimestampBuilder).Append(timestampOf(v.t))
		default:
			panic(fmt.Sprintf("record: cannot encode %s", col.Type))
		}
	}
	b.DiscardRecord()
	b.count++

	if b.count >= b.capacity {
		return b.seal(ctx)
	}
	return nil
}

// Flush seals and pushes the in-progress page if it holds any record.
// Flushing an empty builder is a no-op.
func (b *PageBuilder) Flush(ctx context.Context) error {
	if b.count == 0 {
		return nil
	}
	return b.seal(ctx)
}

// Close releases the builder's buffers. Records added since the last seal
// are dropped.
func (b *PageBuilder) Close() {
	if b.rb != nil {
		b.rb.Release()
		b.rb = nil
	}
}

func (b *PageBuilder) seal(ctx context.Context) error {
	page := newPage(b.schema, b.rb.NewRecord())
	b.count = 0
	b.sealed++
	b.rb.Reserve(b.capacity)
	if b.onSeal != nil {
		b.onSeal(page)
	}
	return b.sink.Add(ctx, page)
}
