package record

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// WriteArrowFile writes pages as an Arrow IPC file. Pages must share schema.
func WriteArrowFile(w io.Writer, schema *Schema, pages []*Page, mem memory.Allocator) error {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema.Arrow()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	for i, p := range pages {
		if !p.Schema().Equal(schema) {
			_ = fw.Close()
			return fmt.Errorf("page %d was built against schema %s, want %s", i, p.Schema(), schema)
		}
		if err := fw.Write(p.Arrow()); err != nil {
			_ = fw.Close()
			return fmt.Errorf("failed to write page %d: %w", i, err)
		}
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return nil
}

// ReadArrowFile reads pages previously written by WriteArrowFile. The
// returned pages are owned by the caller.
func ReadArrowFile(r io.ReaderAt, size int64, schema *Schema, mem memory.Allocator) ([]*Page, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fr, err := ipc.NewFileReader(io.NewSectionReader(r, 0, size), ipc.WithAllocator(mem), ipc.WithSchema(schema.Arrow()))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	pages := make([]*Page, 0, fr.NumRecords())
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			for _, p := range pages {
				p.Release()
			}
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		// the reader owns rec until the next call
		rec.Retain()
		pages = append(pages, newPage(schema, rec))
	}
	return pages, nil
}
