// Package spi defines the contract between the quickload executor and its
// plugins: input and parser plugin interfaces, the transaction Control and
// Outcome, plugin threads, and the ExecContext every plugin receives.
//
// An input plugin's Transaction validates its configuration, declares the
// Schema on the ExecContext, serializes its task state and hands it to the
// Control:
//
//	func (p *Plugin) Transaction(ctx context.Context, exec *spi.ExecContext, cfg config.Source, control spi.Control) (spi.Outcome, error) {
//	    task, err := LoadTask(cfg)
//	    if err != nil {
//	        return spi.Outcome{}, err
//	    }
//	    if err := exec.SetSchema(task.Schema); err != nil {
//	        return spi.Outcome{}, err
//	    }
//	    src, err := exec.DumpTask(task)
//	    if err != nil {
//	        return spi.Outcome{}, err
//	    }
//	    return control.Run(ctx, src)
//	}
//
// The executor then calls RunInput once per partition on a PluginThread,
// with a PageSink feeding a page channel.
package spi

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/record"
)

// TaskSource is the serialized task state of a plugin. It is plain JSON so
// that it can be nested inside another plugin's task.
type TaskSource []byte

// MarshalJSON embeds the task as raw JSON.
func (t TaskSource) MarshalJSON() ([]byte, error) {
	if len(t) == 0 {
		return []byte("null"), nil
	}
	return t, nil
}

// UnmarshalJSON keeps the raw JSON of the task.
func (t *TaskSource) UnmarshalJSON(data []byte) error {
	*t = append((*t)[:0], data...)
	return nil
}

func (t TaskSource) String() string { return string(t) }

// Report is the completion metadata of one task.
type Report struct {
	Partition int                    `json:"partition"`
	Records   int64                  `json:"records"`
	Pages     int64                  `json:"pages"`
	Skipped   int64                  `json:"skipped,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Set attaches a plugin-specific value to the report.
func (r *Report) Set(key string, value interface{}) {
	if r.Extra == nil {
		r.Extra = make(map[string]interface{})
	}
	r.Extra[key] = value
}

// Add accumulates o's counters into r.
func (r *Report) Add(o Report) {
	r.Records += o.Records
	r.Pages += o.Pages
	r.Skipped += o.Skipped
	for k, v := range o.Extra {
		r.Set(k, v)
	}
}

func (r Report) String() string {
	return fmt.Sprintf("partition=%d records=%d pages=%d skipped=%d", r.Partition, r.Records, r.Pages, r.Skipped)
}

// InputPlugin reads records from an external source.
type InputPlugin interface {
	// Transaction validates cfg, declares the schema on exec, dumps the
	// task state and runs control with it. The control's outcome is
	// returned unchanged.
	Transaction(ctx context.Context, exec *ExecContext, cfg config.Source, control Control) (Outcome, error)

	// Partitions returns the number of independently runnable tasks.
	Partitions(exec *ExecContext, task TaskSource) (int, error)

	// RunInput produces the pages of one partition into out. It runs on a
	// PluginThread and must stop once out reports a closed channel.
	RunInput(ctx context.Context, exec *ExecContext, task TaskSource, partition int, out record.PageSink) (Report, error)
}

// FileInput is one decoded input file handed to a parser.
type FileInput interface {
	io.Reader
	// Name identifies the file in logs and errors.
	Name() string
}

// ParserPlugin decodes a byte stream into records for the file input.
type ParserPlugin interface {
	// Configure validates the parser section, declares the schema on exec
	// and returns the parser's task state.
	Configure(exec *ExecContext, cfg config.Source) (TaskSource, error)

	// Parse decodes input into pages pushed to out.
	Parse(ctx context.Context, exec *ExecContext, task TaskSource, partition int, input FileInput, out record.PageSink) (Report, error)
}

// Plugins resolves plugin type names.
type Plugins interface {
	Input(name string) (InputPlugin, error)
	Parser(name string) (ParserPlugin, error)
}
