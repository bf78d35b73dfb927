// Package jsonl implements the "jsonl" parser plugin: one JSON object per
// line, with columns looked up by name.
//
//	parser:
//	  type: jsonl
//	  columns:
//	    - {name: id, type: long}
//	    - {name: user, type: string}   # nested values keep their JSON text
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/json"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/pool"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const (
	pluginName        = "jsonl"
	defaultMaxLineLen = 8 * 1024 * 1024
)

// Task is the validated configuration of the jsonl parser.
type Task struct {
	Schema              config.SchemaConfig `json:"schema"`
	TimestampFormats    []string            `json:"timestamp_formats"`
	StopOnInvalidRecord bool                `json:"stop_on_invalid_record"`
	MaxLineLength       int                 `json:"max_line_length"`
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
	if t.MaxLineLength, err = src.GetInt("max_line_length", defaultMaxLineLen); err != nil {
		return t, err
	}
	if t.MaxLineLength <= 0 {
		return t, errors.New(errors.ErrorTypeConfig, "max_line_length must be positive").
			WithDetail("key", src.Path()+".max_line_length")
	}
	return t, nil
}

// Parser is the jsonl parser plugin.
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

// Parse decodes one object per non-blank line.
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
	builder, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer builder.Close()

	buf := pool.GetBuffer(exec.System().Exec.ReadBufferSize)
	defer pool.PutBuffer(buf)
	sc := bufio.NewScanner(input)
	sc.Buffer(buf[:0], task.MaxLineLength)

	prod := &producer{opts: make([]record.TextOptions, len(task.TimestampFormats))}
	for i, f := range task.TimestampFormats {
		prod.opts[i] = record.TextOptions{TimestampFormat: f}
	}
	log := exec.Logger().With(zap.String("file", input.Name()))

	invalid := func(line int, err error) error {
		if task.StopOnInvalidRecord {
			return errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("invalid record at line %d", line)).
				WithDetail("file", input.Name()).
				WithDetail("line", line)
		}
		report.Skipped++
		metrics.RecordsSkipped.WithLabelValues(pluginName).Inc()
		log.Warn("skipped invalid record", zap.Int("line", line), zap.Error(err))
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}

		obj := make(map[string]interface{}, schema.Len())
		if err := json.UnmarshalNumbers(data, &obj); err != nil {
			if err := invalid(line, errors.Wrap(err, errors.ErrorTypeData, "malformed JSON object")); err != nil {
				return report, err
			}
			continue
		}

		prod.obj = obj
		if err := schema.Produce(builder, prod); err != nil {
			builder.DiscardRecord()
			if perr := record.ProducerFailure(err); perr != nil {
				return report, perr
			}
			fieldErrs := record.FieldErrors(err)
			metrics.FieldDecodeErrors.WithLabelValues(pluginName).Add(float64(len(fieldErrs)))
			if err := invalid(line, err); err != nil {
				return report, err
			}
			continue
		}
		if err := builder.AddRecord(ctx); err != nil {
			return report, err
		}
	}
	if err := sc.Err(); err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeFile, "failed to read jsonl input").
			WithDetail("file", input.Name()).
			WithDetail("line", line+1)
	}
	return report, builder.Flush(ctx)
}

// producer looks columns up by name in the current object. Missing keys
// are null.
type producer struct {
	obj  map[string]interface{}
	opts []record.TextOptions
}

func (p *producer) Field(col record.Column) (record.Value, error) {
	return record.FromNative(col, p.obj[col.Name], p.opts[col.Index])
}
