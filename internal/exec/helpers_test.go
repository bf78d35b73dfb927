package exec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/inputs/inline"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/registry"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

var idSchema = record.MustSchema(record.NewColumn("id", 0, record.Long))

// stubInput is an input plugin whose partitions run a test function.
type stubInput struct {
	schema      *record.Schema
	partitions  int
	skipControl bool
	run         func(ctx context.Context, exec *spi.ExecContext, partition int, out record.PageSink) (spi.Report, error)

	// continueAfter runs the control and answers Continue whatever it returned.
	continueAfter bool

	exited atomic.Int32
}

func (s *stubInput) Transaction(ctx context.Context, exec *spi.ExecContext, _ config.Source, control spi.Control) (spi.Outcome, error) {
	schema := s.schema
	if schema == nil {
		schema = idSchema
	}
	if err := exec.SetSchema(schema); err != nil {
		return spi.Outcome{}, err
	}
	if s.skipControl {
		return spi.Continue(nil), nil
	}
	ts, err := exec.DumpTask(struct{}{})
	if err != nil {
		return spi.Outcome{}, err
	}
	outcome, err := control.Run(ctx, ts)
	if err == nil && s.continueAfter {
		return spi.Continue(nil), nil
	}
	return outcome, err
}

func (s *stubInput) Partitions(*spi.ExecContext, spi.TaskSource) (int, error) {
	return s.partitions, nil
}

func (s *stubInput) RunInput(ctx context.Context, exec *spi.ExecContext, _ spi.TaskSource, partition int, out record.PageSink) (spi.Report, error) {
	defer s.exited.Add(1)
	return s.run(ctx, exec, partition, out)
}

// emit writes ids 0..n-1 (n < 0 means until the sink fails) and returns
// the first sink error.
func emit(ctx context.Context, exec *spi.ExecContext, out record.PageSink, n int) (spi.Report, error) {
	var report spi.Report
	b, err := exec.NewPageBuilder(out, &report)
	if err != nil {
		return report, err
	}
	defer b.Close()
	for i := 0; n < 0 || i < n; i++ {
		b.SetLong(0, int64(i))
		if err := b.AddRecord(ctx); err != nil {
			return report, err
		}
	}
	return report, b.Flush(ctx)
}

// onSinkError emits until the sink fails, then returns err instead.
func onSinkError(err error) func(ctx context.Context, exec *spi.ExecContext, partition int, out record.PageSink) (spi.Report, error) {
	return func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		report, _ := emit(ctx, exec, out, -1)
		return report, err
	}
}

type env struct {
	system  config.SystemConfig
	plugins *registry.Registry
	mem     *memory.CheckedAllocator
}

func newEnv(t *testing.T, pageSize int) *env {
	t.Helper()
	sys := config.DefaultSystemConfig()
	sys.Exec.PageSize = pageSize
	sys.Exec.ChannelCapacity = 2
	sys.Exec.JoinTimeout = 5 * time.Second

	r := registry.NewRegistry()
	require.NoError(t, r.RegisterInput("inline", "", func() (spi.InputPlugin, error) { return &inline.Plugin{}, nil }))

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return &env{system: sys, plugins: r, mem: mem}
}

func (e *env) register(t *testing.T, name string, in spi.InputPlugin) {
	t.Helper()
	require.NoError(t, e.plugins.RegisterInput(name, "", func() (spi.InputPlugin, error) { return in, nil }))
}

func (e *env) preview(t *testing.T) *PreviewExecutor {
	return NewPreviewExecutor(e.system, e.plugins, WithLogger(zaptest.NewLogger(t)), WithAllocator(e.mem))
}

func (e *env) local(t *testing.T, handler PageHandler) *LocalExecutor {
	return NewLocalExecutor(e.system, e.plugins, handler, WithLogger(zaptest.NewLogger(t)), WithAllocator(e.mem))
}

func (e *env) exec(t *testing.T) *spi.ExecContext {
	return spi.NewExecContext(e.system,
		spi.WithLogger(zaptest.NewLogger(t)),
		spi.WithAllocator(e.mem),
		spi.WithPluginName("test"))
}

func ids(rows [][]record.Value) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[0].Long()
	}
	return out
}
