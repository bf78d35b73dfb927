// Package csv implements the "csv" parser plugin: delimited text decoded
// with encoding/csv and converted per column through record.ParseText.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/pool"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const pluginName = "csv"

// Parser is the csv parser plugin.
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

// Parse decodes input into pages. Invalid records are skipped and counted
// unless stop_on_invalid_record is set.
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
	loc, err := time.LoadLocation(task.Timezone)
	if err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeConfig, "invalid default_timezone")
	}

	builder, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer builder.Close()

	r := csv.NewReader(input)
	r.Comma, _ = utf8.DecodeRuneInString(task.Delimiter)
	if task.Comment != "" {
		r.Comment, _ = utf8.DecodeRuneInString(task.Comment)
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = task.LazyQuotes
	r.TrimLeadingSpace = task.TrimSpaces

	prod := newProducer(task, loc)
	defer prod.release()

	log := exec.Logger().With(zap.String("file", input.Name()))
	skipped := 0

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return report, errors.Wrap(err, errors.ErrorTypeFile, "failed to read csv input").
					WithDetail("file", input.Name())
			}
			if task.StopOnInvalidRecord {
				return report, invalidRecord(err, input.Name(), perr.Line)
			}
			skip(log, &report, perr.Line, err)
			continue
		}

		line, _ := r.FieldPos(0)
		if skipped < task.SkipHeaderLines {
			skipped++
			continue
		}

		if len(fields) > schema.Len() && !task.AllowExtraColumns {
			err := fmt.Errorf("record has %d fields, schema has %d columns", len(fields), schema.Len())
			if task.StopOnInvalidRecord {
				return report, invalidRecord(err, input.Name(), line)
			}
			skip(log, &report, line, err)
			continue
		}

		prod.set(fields)
		if err := schema.Produce(builder, prod); err != nil {
			builder.DiscardRecord()
			if perr := record.ProducerFailure(err); perr != nil {
				return report, perr
			}
			fieldErrs := record.FieldErrors(err)
			metrics.FieldDecodeErrors.WithLabelValues(pluginName).Add(float64(len(fieldErrs)))
			if task.StopOnInvalidRecord {
				return report, invalidRecord(err, input.Name(), line)
			}
			skip(log, &report, line, err)
			continue
		}

		if err := builder.AddRecord(ctx); err != nil {
			return report, err
		}
	}

	return report, builder.Flush(ctx)
}

func skip(log *zap.Logger, report *spi.Report, line int, err error) {
	report.Skipped++
	metrics.RecordsSkipped.WithLabelValues(pluginName).Inc()
	log.Warn("skipped invalid record", zap.Int("line", line), zap.Error(err))
}

func invalidRecord(err error, file string, line int) error {
	return errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("invalid record at line %d", line)).
		WithDetail("file", file).
		WithDetail("line", line)
}

// producer exposes the fields of the current record. It owns a copy of
// them, so nothing aliases the csv reader's buffers.
type producer struct {
	fields   []string
	opts     []record.TextOptions
	trim     bool
	optional bool
}

func newProducer(task Task, loc *time.Location) *producer {
	p := &producer{
		fields:   pool.GetStringSlice(),
		opts:     make([]record.TextOptions, len(task.TimestampFormats)),
		trim:     task.TrimSpaces,
		optional: task.AllowOptionalColumns,
	}
	for i, format := range task.TimestampFormats {
		p.opts[i] = record.TextOptions{
			NullString:      task.NullString,
			TimestampFormat: format,
			Location:        loc,
		}
	}
	return p
}

func (p *producer) set(fields []string) {
	p.fields = append(p.fields[:0], fields...)
}

func (p *producer) release() {
	pool.PutStringSlice(p.fields)
	p.fields = nil
}

func (p *producer) Field(col record.Column) (record.Value, error) {
	if col.Index >= len(p.fields) {
		if p.optional {
			return record.NullValue(col.Type), nil
		}
		return record.Value{}, record.NewFieldDecodeError(col, "",
			fmt.Errorf("record has only %d fields", len(p.fields)))
	}
	raw := p.fields[col.Index]
	if p.trim {
		raw = strings.TrimSpace(raw)
	}
	return record.ParseText(col, raw, p.opts[col.Index])
}
