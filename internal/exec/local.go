package exec

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// PageHandler receives every page a run consumes. It is called
// concurrently from different partitions. The page is released after the
// handler returns; a handler that keeps it must Retain it.
type PageHandler func(ctx context.Context, partition int, page *record.Page) error

// RunTask is the validated run job.
type RunTask struct {
	In config.Source
}

// LoadRunTask validates a run job document.
func LoadRunTask(src config.Source) (RunTask, error) {
	in, err := src.RequiredSub("in")
	if err != nil {
		return RunTask{}, err
	}
	return RunTask{In: in}, nil
}

// LocalExecutor runs every partition of a job in this process.
type LocalExecutor struct {
	executor
	handler PageHandler
}

// NewLocalExecutor returns a run executor resolving input plugins through
// plugins. handler may be nil, in which case pages are only counted.
func NewLocalExecutor(system config.SystemConfig, plugins spi.Plugins, handler PageHandler, opts ...Option) *LocalExecutor {
	return &LocalExecutor{executor: newExecutor("run", system, plugins, opts), handler: handler}
}

// Run executes the job's input transaction to completion. Partitions run
// concurrently, at most max_threads at a time; the first failure cancels
// the others.
func (e *LocalExecutor) Run(ctx context.Context, cfg config.Source) (*ExecResult, error) {
	timer := metrics.NewTimer("run")

	task, err := LoadRunTask(cfg)
	if err != nil {
		return nil, err
	}
	input, exec, err := e.begin(task.In)
	if err != nil {
		return nil, err
	}
	log := exec.Logger()

	ctx, span := exec.Tracer().StartSpan(exec.Context(ctx), "run")

	var records, pages atomic.Int64
	var f failure
	control := spi.ControlFunc(func(ctx context.Context, ts spi.TaskSource) (spi.Outcome, error) {
		return e.runAll(ctx, exec, input, ts, &records, &pages, &f)
	})
	outcome, err := input.Transaction(ctx, exec, task.In, control)
	err = f.propagate(err)
	if err == nil && outcome.IsAbort() {
		err = errors.Newf(errors.ErrorTypePluginExecution, "input plugin stopped the run early: %v", outcome.Payload())
	}

	duration := e.finish(timer, outcomeLabel(outcome, err))
	span.Finish(err)
	if err != nil {
		log.Warn("run failed", zap.Error(err))
		return nil, err
	}

	result := &ExecResult{
		JobID:    exec.JobID(),
		Schema:   exec.Schema(),
		Reports:  outcome.Reports(),
		Records:  records.Load(),
		Pages:    pages.Load(),
		Duration: duration,
	}
	log.Info("run finished",
		zap.Int("partitions", len(result.Reports)),
		zap.Int64("records", result.Records),
		zap.Int64("pages", result.Pages),
		zap.Duration("duration", duration))
	return result, nil
}

func (e *LocalExecutor) runAll(ctx context.Context, exec *spi.ExecContext, input spi.InputPlugin, ts spi.TaskSource, records, pages *atomic.Int64, f *failure) (spi.Outcome, error) {
	if _, err := exec.RequireSchema(); err != nil {
		return spi.Outcome{}, err
	}
	n, err := input.Partitions(exec, ts)
	if err != nil {
		return spi.Outcome{}, err
	}
	exec.Logger().Info("running partitions",
		zap.Int("partitions", n),
		zap.Int("max_threads", e.system.Exec.GetMaxThreads()))

	reports := make([]spi.Report, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.system.Exec.GetMaxThreads())
	for i := 0; i < n; i++ {
		partition := i
		g.Go(func() error {
			return exec.Tracer().TracePartition(gctx, partition, func(ctx context.Context) error {
				report, err := e.runPartition(partitionContext(ctx, partition), exec, input, ts, partition, records, pages, f)
				if err != nil {
					return err
				}
				report.Partition = partition
				reports[partition] = report
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return spi.Outcome{}, err
	}
	return spi.Continue(reports), nil
}

func (e *LocalExecutor) runPartition(ctx context.Context, exec *spi.ExecContext, input spi.InputPlugin, ts spi.TaskSource, partition int, records, pages *atomic.Int64, f *failure) (spi.Report, error) {
	var report spi.Report
	res, err := withChannel(ctx, exec, fmt.Sprintf("run-%d", partition),
		func(ctx context.Context, out record.PageSink) error {
			var err error
			report, err = input.RunInput(ctx, exec, ts, partition, out)
			return err
		},
		func(ctx context.Context, in *channel.Input) error {
			return in.Each(ctx, func(p *record.Page) error {
				defer p.Release()
				records.Add(int64(p.Records()))
				pages.Add(1)
				if e.handler != nil {
					return e.handler(ctx, partition, p)
				}
				return nil
			})
		})
	if err != nil {
		// the producer may still be running and own report
		return spi.Report{}, f.raise(err)
	}

	// a consumer failure makes the producer fail with a closed channel
	consumerFirst := res.consumed != nil && (res.produced == nil ||
		errors.IsChannelClosed(res.produced) || errors.Is(res.produced, context.Canceled))
	if res.produced != nil && !consumerFirst {
		return report, spi.PropagatePluginError(res.produced)
	}
	if res.consumed != nil {
		if errors.Is(res.consumed, context.Canceled) {
			return report, res.consumed
		}
		return report, f.raise(errors.Wrap(res.consumed, errors.ErrorTypeInternal, "page consumer failed").
			WithDetail("partition", partition))
	}
	exec.Logger().Debug("partition finished",
		zap.Int("partition", partition),
		zap.Int64("records", report.Records),
		zap.Int64("pages", report.Pages))
	return report, nil
}
