// Package exec drives input-plugin transactions.
//
// Two executors share the same building blocks. PreviewExecutor samples the
// first partition of a job and stops the transaction early with a
// PreviewResult. LocalExecutor runs every partition to completion and
// returns the plugins' reports.
//
// Each partition runs as a scoped channel pair: a page channel feeding the
// executor's consumer from a plugin thread running RunInput. The pair is
// always torn down (consumer completed, channel joined, thread joined)
// before the executor returns, whatever way the consumer exits.
//
//	exe := exec.NewPreviewExecutor(system, registry.GetRegistry())
//	result, err := exe.Preview(ctx, job)
//	if err != nil {
//	    return err
//	}
//	defer result.Release()
package exec

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/logger"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// Option configures an executor.
type Option func(*executor)

// WithLogger sets the logger passed to every transaction.
func WithLogger(l *zap.Logger) Option {
	return func(e *executor) { e.log = l }
}

// WithAllocator sets the allocator page buffers come from.
func WithAllocator(mem memory.Allocator) Option {
	return func(e *executor) { e.mem = mem }
}

// WithJobID fixes the job id of the next transactions instead of generating
// one per transaction.
func WithJobID(id string) Option {
	return func(e *executor) { e.jobID = id }
}

// executor holds what both executors need to start a transaction.
type executor struct {
	mode    string
	system  config.SystemConfig
	plugins spi.Plugins
	log     *zap.Logger
	mem     memory.Allocator
	jobID   string
}

func newExecutor(mode string, system config.SystemConfig, plugins spi.Plugins, opts []Option) executor {
	e := executor{mode: mode, system: system, plugins: plugins}
	for _, opt := range opts {
		opt(&e)
	}
	if e.log == nil {
		e.log = logger.Get()
	}
	e.log = e.log.With(zap.String("component", mode+"_executor"))
	return e
}

// begin resolves the input plugin named by in.type and creates the
// transaction's ExecContext. Failures here are configuration errors and are
// returned as is.
func (e *executor) begin(in config.Source) (spi.InputPlugin, *spi.ExecContext, error) {
	typ, err := in.RequiredString("type")
	if err != nil {
		return nil, nil, err
	}
	if e.plugins == nil {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "no plugin registry configured")
	}
	input, err := e.plugins.Input(typ)
	if err != nil {
		return nil, nil, err
	}

	opts := []spi.Option{
		spi.WithLogger(e.log),
		spi.WithPlugins(e.plugins),
		spi.WithPluginName(typ),
	}
	if e.mem != nil {
		opts = append(opts, spi.WithAllocator(e.mem))
	}
	if e.jobID != "" {
		opts = append(opts, spi.WithJobID(e.jobID))
	}
	return input, spi.NewExecContext(e.system, opts...), nil
}

// finish records the transaction metrics.
func (e *executor) finish(timer *metrics.Timer, outcome string) time.Duration {
	d := timer.Stop()
	metrics.Transactions.WithLabelValues(e.mode, outcome).Inc()
	metrics.TransactionDuration.WithLabelValues(e.mode).Observe(d.Seconds())
	return d
}

// failure tells core-origin errors apart from plugin failures. Errors the
// executor raised itself are returned unchanged; everything else that came
// back through a plugin's Transaction is a plugin execution error.
type failure struct {
	mu   sync.Mutex
	core []error
}

func (f *failure) raise(err error) error {
	f.mu.Lock()
	f.core = append(f.core, err)
	f.mu.Unlock()
	return err
}

func (f *failure) propagate(err error) error {
	if err == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, core := range f.core {
		if errors.Is(err, core) {
			return core
		}
	}
	return spi.PropagatePluginError(err)
}

func outcomeLabel(o spi.Outcome, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case o.IsAbort():
		return metrics.OutcomeAbort
	default:
		return metrics.OutcomeContinue
	}
}

// partitionContext adds the partition to the logger fields carried by ctx.
func partitionContext(ctx context.Context, partition int) context.Context {
	return logger.ContextWithPartition(ctx, partition)
}
