package exec

import (
	"time"

	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// PreviewResult is the schema and sample pages of a preview. It owns the
// pages until Release.
type PreviewResult struct {
	Schema *record.Schema
	Pages  []*record.Page
}

// Records returns the number of sampled records.
func (r *PreviewResult) Records() int {
	if r == nil {
		return 0
	}
	return countRecords(r.Pages)
}

// Rows returns every sampled record, decoded.
func (r *PreviewResult) Rows() [][]record.Value {
	if r == nil {
		return nil
	}
	rows := make([][]record.Value, 0, r.Records())
	for _, p := range r.Pages {
		rows = append(rows, p.Rows()...)
	}
	return rows
}

// Release releases the sample pages. It is safe on a nil result and safe
// to call twice.
func (r *PreviewResult) Release() {
	if r == nil {
		return
	}
	releaseAll(r.Pages)
	r.Pages = nil
}

// ExecResult is the outcome of a completed run.
type ExecResult struct {
	JobID  string
	Schema *record.Schema
	// Reports holds one report per partition, ordered by partition.
	Reports  []spi.Report
	Records  int64
	Pages    int64
	Duration time.Duration
}

// Total sums the partition reports.
func (r *ExecResult) Total() spi.Report {
	var total spi.Report
	for _, rep := range r.Reports {
		total.Add(rep)
	}
	return total
}

func countRecords(pages []*record.Page) int {
	n := 0
	for _, p := range pages {
		n += p.Records()
	}
	return n
}

func releaseAll(pages []*record.Page) {
	for _, p := range pages {
		p.Release()
	}
}
