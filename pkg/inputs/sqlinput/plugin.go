// Package sqlinput implements the "postgresql" and "mysql" input plugins,
// which load the result sets of SQL queries. PostgreSQL goes through pgx;
// MySQL through database/sql with go-sql-driver/mysql.
//
//	in:
//	  type: postgresql
//	  dsn: postgres://loader:${PG_PASSWORD}@db:5432/shop
//	  queries:
//	    - SELECT id, total, created_at FROM orders WHERE region = 'eu'
//	    - SELECT id, total, created_at FROM orders WHERE region = 'us'
//	  columns:            # optional, discovered from the first query
//	    - {name: id, type: long}
//	    - {name: total, type: double}
//	    - {name: created_at, type: timestamp}
package sqlinput

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// Plugin is a query input for one driver.
type Plugin struct {
	driver string
	open   func(ctx context.Context, driver, dsn string) (source, error)
}

var _ spi.InputPlugin = (*Plugin)(nil)

// New creates a query input for driver.
func New(driver string) *Plugin {
	return &Plugin{driver: driver, open: openSource}
}

// Transaction validates the configuration, discovers the schema if no
// columns were declared, and runs control with one partition per query.
func (p *Plugin) Transaction(ctx context.Context, exec *spi.ExecContext, src config.Source, control spi.Control) (spi.Outcome, error) {
	task, err := LoadTask(p.driver, src)
	if err != nil {
		return spi.Outcome{}, err
	}

	if len(task.Schema.Columns) == 0 {
		if task.Schema, err = p.discover(ctx, task); err != nil {
			return spi.Outcome{}, err
		}
		exec.Logger().Info("discovered query schema", zap.Int("columns", len(task.Schema.Columns)))
	}
	task.Formats = task.Schema.Formats("")

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

func (p *Plugin) discover(ctx context.Context, task Task) (config.SchemaConfig, error) {
	args, err := task.args()
	if err != nil {
		return config.SchemaConfig{}, err
	}
	src, err := p.connect(ctx, task)
	if err != nil {
		return config.SchemaConfig{}, err
	}
	defer src.Close()

	cols, err := src.Describe(ctx, task.Queries[0], args)
	if err != nil {
		return config.SchemaConfig{}, err
	}
	if len(cols) == 0 {
		return config.SchemaConfig{}, errors.New(errors.ErrorTypeConfig, "query returns no columns")
	}
	return config.SchemaConfig{Columns: cols}, nil
}

func (p *Plugin) connect(ctx context.Context, task Task) (source, error) {
	cctx, cancel := context.WithTimeout(ctx, task.ConnectTimeout)
	defer cancel()
	return p.open(cctx, task.Driver, task.DSN)
}

// Partitions returns the number of queries.
func (p *Plugin) Partitions(exec *spi.ExecContext, src spi.TaskSource) (int, error) {
	var task Task
	if err := exec.LoadTask(src, &task); err != nil {
		return 0, err
	}
	return len(task.Queries), nil
}

// RunInput runs the partition's query and produces its rows. Result
// columns are matched to schema columns by name.
func (p *Plugin) RunInput(ctx context.Context, exec *spi.ExecContext, ts spi.TaskSource, partition int, out record.PageSink) (spi.Report, error) {
	report := spi.Report{Partition: partition}

	var task Task
	if err := exec.LoadTask(ts, &task); err != nil {
		return report, err
	}
	if partition < 0 || partition >= len(task.Queries) {
		return report, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("partition %d out of range (%d queries)", partition, len(task.Queries)))
	}
	schema, err := exec.RequireSchema()
	if err != nil {
		return report, err
	}
	args, err := task.args()
	if err != nil {
		return report, err
	}

	src, err := p.connect(ctx, task)
	if err != nil {
		return report, err
	}
	defer src.Close()

	rows, err := src.Query(ctx, task.Queries[partition], args)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	positions, err := columnPositions(schema, rows.Columns())
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

	n := 0
	for rows.Next() {
		n++
		values, err := rows.Values()
		if err != nil {
			return report, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read row").
				WithDetail("row", n)
		}
		prod := record.ProducerFunc(func(col record.Column) (record.Value, error) {
			return record.FromNative(col, values[positions[col.Index]], opts[col.Index])
		})
		if err := schema.Produce(builder, prod); err != nil {
			builder.DiscardRecord()
			return report, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("row %d does not match the schema", n)).
				WithDetail("row", n)
		}
		if err := builder.AddRecord(ctx); err != nil {
			return report, err
		}
	}
	if err := rows.Err(); err != nil {
		return report, errors.Wrap(err, errors.ErrorTypeQuery, "query failed while reading rows")
	}
	report.Set("query", partition)
	return report, builder.Flush(ctx)
}

// columnPositions maps each schema column to its index in the result set.
func columnPositions(schema *record.Schema, names []string) ([]int, error) {
	byName := make(map[string]int, len(names))
	for i, n := range names {
		byName[n] = i
	}
	positions := make([]int, schema.Len())
	for _, col := range schema.Columns() {
		pos, ok := byName[col.Name]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeQuery, "query result has no column %q", col.Name).
				WithDetail("columns", names)
		}
		positions[col.Index] = pos
	}
	return positions, nil
}
