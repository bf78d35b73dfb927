// Package avro implements the "avro" parser plugin over Avro object
// container files. Columns are matched to record fields by name; nullable
// union values are unwrapped.
package avro

import (
	"context"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const pluginName = "avro"

// Task is the validated configuration of the avro parser.
type Task struct {
	Schema              config.SchemaConfig `json:"schema"`
	TimestampFormats    []string            `json:"timestamp_formats"`
	StopOnInvalidRecord bool                `json:"stop_on_invalid_record"`
}

// LoadTask validates the parser section.
func LoadTask(src config.Source) (Task, error) {
	var (
		t   Task
		err error
	)
	if t.Schema, err = config.LoadSchemaConfig(src, "columns"); err != nil {
		return t, err
	}
	def, err := src.GetString("default_timestamp_format", time.RFC3339Nano)
	if err != nil {
		return t, err
	}
	t.TimestampFormats = t.Schema.Formats(def)
	if t.StopOnInvalidRecord, err = src.GetBool("stop_on_invalid_record", false); err != nil {
		return t, err
	}
	return t, nil
}

// Parser is the avro parser plugin.
type Parser struct{}

var _ spi.ParserPlugin = Parser{}

// Configure validates the parser section and declares its schema.
func (Parser) Configure(exec *spi.ExecContext, src config.Source) (spi.TaskSource, error) {
	task, err := LoadTask(src)
	if err != nil {
		return nil, err
	}
	schema, err := task.Schema.Schema()
	if err != nil {
		return nil, err
	}
	if err := exec.SetSchema(schema); err != nil {
		return nil, err
	}
	return exec.DumpTask(task)
}

// Parse reads every datum of the container file.
func (Parser) Parse(ctx context.Context, exec *spi.ExecContext, src spi.TaskSource, partition int, input spi.FileInput, out record.PageSink) (spi.Report, error) {
	report := spi.Report{Partition: partition}

	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return report, err
	}
	schema, err := exec.RequireSchema()
	if err != nil {
		return report, err
	}

	ocf, err := goavro.NewOCFReader(input)
	if err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeData, "invalid avro container file").
			WithDetail("file", input.Name())
	}
	report.Set("avro_schema", ocf.Codec().CanonicalSchema())

	builder, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer builder.Close()

	prod := &producer{opts: make([]record.TextOptions, len(task.TimestampFormats))}
	for i, f := range task.TimestampFormats {
		prod.opts[i] = record.TextOptions{TimestampFormat: f}
	}

	n := 0
	for ocf.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return report, err
		}
		datum, err := ocf.Read()
		if err != nil {
			return report, errors.Wrap(err, errors.ErrorTypeData, "failed to decode avro datum").
				WithDetail("file", input.Name()).
				WithDetail("record", n)
		}
		fields, ok := datum.(map[string]interface{})
		if !ok {
			return report, errors.Newf(errors.ErrorTypeData, "avro datum is %T, expected a record", datum).
				WithDetail("file", input.Name())
		}

		prod.fields = fields
		if err := schema.Produce(builder, prod); err != nil {
			builder.DiscardRecord()
			if perr := record.ProducerFailure(err); perr != nil {
				return report, perr
			}
			if task.StopOnInvalidRecord {
				return report, err
			}
			fieldErrs := record.FieldErrors(err)
			metrics.FieldDecodeErrors.WithLabelValues(pluginName).Add(float64(len(fieldErrs)))
			metrics.RecordsSkipped.WithLabelValues(pluginName).Inc()
			report.Skipped++
			exec.Logger().Warn("skipped invalid avro record")
			continue
		}
		if err := builder.AddRecord(ctx); err != nil {
			return report, err
		}
	}
	if err := ocf.Err(); err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeData, "failed to read avro container file").
			WithDetail("file", input.Name())
	}
	return report, builder.Flush(ctx)
}

type producer struct {
	fields map[string]interface{}
	opts   []record.TextOptions
}

func (p *producer) Field(col record.Column) (record.Value, error) {
	return record.FromNative(col, unwrapUnion(p.fields[col.Name]), p.opts[col.Index])
}

// unwrapUnion turns goavro's {"type": value} union encoding into value.
func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}
