package record

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Page is an immutable, sealed batch of records encoded column by column.
// A page is owned by exactly one party at a time: the builder until it is
// pushed, the channel while queued, then the consumer, which retires it with
// Release. Retain adds an owner.
type Page struct {
	schema *Schema
	rec    arrow.Record
	refs   atomic.Int64
}

func newPage(schema *Schema, rec arrow.Record) *Page {
	p := &Page{schema: schema, rec: rec}
	p.refs.Store(1)
	return p
}

// Schema returns the schema the page was built against.
func (p *Page) Schema() *Schema { return p.schema }

// Records returns the number of records in the page.
func (p *Page) Records() int { return int(p.rec.NumRows()) }

// Arrow exposes the underlying record batch, e.g. for IPC export. The batch
// is only valid until the page is released.
func (p *Page) Arrow() arrow.Record { return p.rec }

// Retain adds an owner to the page.
func (p *Page) Retain() {
	p.refs.Add(1)
	p.rec.Retain()
}

// Release drops one owner. When the last owner releases the page its
// buffers are returned to the allocator. Releasing more often than the page
// was retained is a no-op.
func (p *Page) Release() {
	if p.refs.Add(-1) < 0 {
		p.refs.Add(1)
		return
	}
	p.rec.Release()
}

// Live reports whether the page still has an owner.
func (p *Page) Live() bool { return p.refs.Load() > 0 }

// Value decodes the field at row, column index col using only the Schema.
func (p *Page) Value(row, col int) Value {
	c := p.schema.Column(col)
	arr := p.rec.Column(col)
	if arr.IsNull(row) {
		return NullValue(c.Type)
	}
	switch c.Type {
	case Long:
		return LongValue(arr.(*array.Int64).Value(row))
	case Double:
		return DoubleValue(arr.(*array.Float64).Value(row))
	case String:
		// the returned string must outlive the page buffers
		return StringValue(strings.Clone(arr.(*array.String).Value(row)))
	case Boolean:
		return BooleanValue(arr.(*array.Boolean).Value(row))
	case Timestamp:
		ts := arr.(*array.Timestamp).Value(row)
		return TimestampValue(ts.ToTime(arrow.Microsecond))
	default:
		panic(fmt.Sprintf("record: cannot decode %s", c.Type))
	}
}

// Row decodes one record of the page.
func (p *Page) Row(row int) []Value {
	out := make([]Value, p.schema.Len())
	for i := range out {
		out[i] = p.Value(row, i)
	}
	return out
}

// Rows decodes every record of the page.
func (p *Page) Rows() [][]Value {
	n := p.Records()
	out := make([][]Value, n)
	for i := 0; i < n; i++ {
		out[i] = p.Row(i)
	}
	return out
}

func timestampOf(t time.Time) arrow.Timestamp {
	return arrow.Timestamp(t.UTC().UnixMicro())
}
