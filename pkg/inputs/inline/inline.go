// Package inline implements the "inline" input plugin: records written
// directly in the job file. It is used for demos and tests.
//
//	in:
//	  type: inline
//	  partitions: 2
//	  columns:
//	    - {name: id, type: long}
//	    - {name: name, type: string}
//	  rows:
//	    - [1, alice]
//	    - {id: 2, name: bob}
package inline

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/json"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const pluginName = "inline"

// Task is the serialized state of an inline input. Rows stay raw JSON so
// that integers survive the task round trip exactly.
type Task struct {
	Schema     config.SchemaConfig `json:"schema"`
	Formats    []string            `json:"formats"`
	Rows       []json.RawMessage   `json:"rows"`
	Partitions int                 `json:"partitions"`
	FailAfter  int                 `json:"fail_after,omitempty"`
}

// LoadTask validates the "in" section.
func LoadTask(src config.Source) (Task, error) {
	var (
		t   Task
		err error
	)
	if t.Schema, err = config.LoadSchemaConfig(src, "columns"); err != nil {
		return t, err
	}
	t.Formats = t.Schema.Formats("")

	rows, err := src.GetSlice("rows")
	if err != nil {
		return t, err
	}
	t.Rows = make([]json.RawMessage, len(rows))
	for i, row := range rows {
		switch row.(type) {
		case []interface{}, map[string]interface{}:
		default:
			return t, errors.Newf(errors.ErrorTypeConfig, "rows[%d]: expected list or map, got %T", i, row).
				WithDetail("key", src.Path()+".rows")
		}
		if t.Rows[i], err = json.Marshal(row); err != nil {
			return t, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("rows[%d] is not serializable", i))
		}
	}

	if t.Partitions, err = src.GetInt("partitions", 1); err != nil {
		return t, err
	}
	if t.Partitions < 1 {
		return t, errors.New(errors.ErrorTypeConfig, "partitions must be at least 1").
			WithDetail("key", src.Path()+".partitions")
	}
	if t.FailAfter, err = src.GetInt("fail_after", 0); err != nil {
		return t, err
	}
	return t, nil
}

// Plugin is the inline input plugin.
type Plugin struct{}

var _ spi.InputPlugin = Plugin{}

// Transaction declares the schema and runs control with the rows.
func (Plugin) Transaction(ctx context.Context, exec *spi.ExecContext, src config.Source, control spi.Control) (spi.Outcome, error) {
	task, err := LoadTask(src)
	if err != nil {
		return spi.Outcome{}, err
	}
	schema, err := task.Schema.Schema()
	if err != nil {
		return spi.Outcome{}, err
	}
	if err := exec.SetSchema(schema); err != nil {
		return spi.Outcome{}, err
	}
	ts, err := exec.DumpTask(task)
	if err != nil {
		return spi.Outcome{}, err
	}
	return control.Run(ctx, ts)
}

// Partitions implements spi.InputPlugin.
func (Plugin) Partitions(exec *spi.ExecContext, src spi.TaskSource) (int, error) {
	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return 0, err
	}
	return task.Partitions, nil
}

// RunInput produces every row whose position modulo the partition count is
// partition. With fail_after set it fails once that many records were
// added.
func (Plugin) RunInput(ctx context.Context, exec *spi.ExecContext, src spi.TaskSource, partition int, out record.PageSink) (spi.Report, error) {
	report := spi.Report{Partition: partition}

	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return report, err
	}
	schema, err := exec.RequireSchema()
	if err != nil {
		return report, err
	}
	builder, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer builder.Close()

	opts := make([]record.TextOptions, len(task.Formats))
	for i, f := range task.Formats {
		opts[i] = record.TextOptions{TimestampFormat: f}
	}

	added := 0
	for i := partition; i < len(task.Rows); i += task.Partitions {
		if task.FailAfter > 0 && added >= task.FailAfter {
			return report, errors.Newf(errors.ErrorTypeData, "inline input failed after %d records", added).
				WithDetail("partition", partition)
		}

		var row interface{}
		if err := json.UnmarshalNumbers(task.Rows[i], &row); err != nil {
			return report, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("rows[%d] is malformed", i))
		}
		if err := schema.Produce(builder, rowProducer(row, opts)); err != nil {
			builder.DiscardRecord()
			return report, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("rows[%d] is invalid", i)).
				WithDetail("row", i)
		}
		if err := builder.AddRecord(ctx); err != nil {
			return report, err
		}
		added++
	}
	return report, builder.Flush(ctx)
}

func rowProducer(row interface{}, opts []record.TextOptions) record.RecordProducer {
	return record.ProducerFunc(func(col record.Column) (record.Value, error) {
		var v interface{}
		switch r := row.(type) {
		case []interface{}:
			if col.Index < len(r) {
				v = r[col.Index]
			}
		case map[string]interface{}:
			v = r[col.Name]
		}
		return record.FromNative(col, v, opts[col.Index])
	})
}
