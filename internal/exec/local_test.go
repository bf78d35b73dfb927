package exec

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

const runJob = `
in:
  type: inline
  partitions: 3
  columns: [{name: id, type: long}]
  rows: [[0], [1], [2], [3], [4], [5], [6]]
`

func TestRunAllPartitions(t *testing.T) {
	e := newEnv(t, 2)
	e.system.Exec.MaxThreads = 2

	var mu sync.Mutex
	var seen []int64
	handler := func(_ context.Context, _ int, p *record.Page) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ids(p.Rows())...)
		return nil
	}

	before := testutil.ToFloat64(metrics.Transactions.WithLabelValues("run", metrics.OutcomeContinue))
	result, err := e.local(t, handler).Run(context.Background(), config.MustYAML(runJob))
	require.NoError(t, err)

	require.Len(t, result.Reports, 3)
	for i, r := range result.Reports {
		assert.Equal(t, i, r.Partition, "reports are ordered by partition")
	}
	assert.Equal(t, int64(3), result.Reports[0].Records)
	assert.Equal(t, int64(2), result.Reports[1].Records)
	assert.Equal(t, int64(2), result.Reports[2].Records)
	assert.Equal(t, int64(7), result.Records)
	assert.Equal(t, int64(7), result.Total().Records)
	assert.Equal(t, result.Total().Pages, result.Pages)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, "[id:long]", result.Schema.String())

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, seen)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Transactions.WithLabelValues("run", metrics.OutcomeContinue)))
}

func TestRunRespectsMaxThreads(t *testing.T) {
	e := newEnv(t, 4)
	e.system.Exec.MaxThreads = 2

	var running, peak atomic.Int32
	in := &stubInput{partitions: 6, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return emit(ctx, exec, out, 5)
	}}
	e.register(t, "slow", in)

	result, err := e.local(t, nil).Run(context.Background(), config.MustYAML("in: {type: slow}"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), result.Records)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(6), in.exited.Load())
}

func TestRunPartitionFailure(t *testing.T) {
	e := newEnv(t, 1)
	_, err := e.local(t, nil).Run(context.Background(), config.MustYAML(`
in:
  type: inline
  columns: [{name: id, type: long}]
  rows: [[1], [2], [3]]
  fail_after: 2
`))
	require.Error(t, err)
	assert.True(t, errors.IsPluginExecution(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestRunHandlerFailure(t *testing.T) {
	e := newEnv(t, 1)
	e.register(t, "endless", &stubInput{partitions: 1, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		return emit(ctx, exec, out, -1)
	}})

	cause := errors.New(errors.ErrorTypeFile, "sink full")
	handler := func(context.Context, int, *record.Page) error { return cause }
	_, err := e.local(t, handler).Run(context.Background(), config.MustYAML("in: {type: endless}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.IsPluginExecution(err), "consumer failures are not plugin failures")
	assert.False(t, errors.IsChannelClosed(err))
}

func TestRunRejectsEarlyAbort(t *testing.T) {
	e := newEnv(t, 1)
	e.register(t, "aborting", abortingInput{})
	_, err := e.local(t, nil).Run(context.Background(), config.MustYAML("in: {type: aborting}"))
	assert.True(t, errors.IsPluginExecution(err))
}

func TestRunMissingInput(t *testing.T) {
	e := newEnv(t, 1)
	_, err := e.local(t, nil).Run(context.Background(), config.MustYAML("exec: {}"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

// abortingInput stops its transaction without running the control.
type abortingInput struct{}

func (abortingInput) Transaction(_ context.Context, exec *spi.ExecContext, _ config.Source, _ spi.Control) (spi.Outcome, error) {
	if err := exec.SetSchema(idSchema); err != nil {
		return spi.Outcome{}, err
	}
	return spi.AbortEarly("nothing to do"), nil
}

func (abortingInput) Partitions(*spi.ExecContext, spi.TaskSource) (int, error) { return 0, nil }

func (abortingInput) RunInput(context.Context, *spi.ExecContext, spi.TaskSource, int, record.PageSink) (spi.Report, error) {
	return spi.Report{}, nil
}

func TestRunJoinTimeoutIsCoreError(t *testing.T) {
	e := newEnv(t, 2)
	e.system.Exec.JoinTimeout = 100 * time.Millisecond

	release := make(chan struct{})
	in := &stubInput{partitions: 1, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		report, _ := emit(ctx, exec, out, 20)
		<-release
		return report, nil
	}}
	e.register(t, "stuck", in)

	stop := errors.New(errors.ErrorTypeFile, "sink full")
	handler := func(context.Context, int, *record.Page) error { return stop }
	_, err := e.local(t, handler).Run(context.Background(), config.MustYAML("in: {type: stuck}"))
	close(release)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.False(t, errors.IsPluginExecution(err))
	assert.Contains(t, err.Error(), "run-0")

	assert.Eventually(t, func() bool { return in.exited.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return e.mem.CurrentAlloc() == 0 }, 5*time.Second, 10*time.Millisecond)
}
