package exec

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

func inlineJob(sampleRows int, rows ...string) config.Source {
	doc := fmt.Sprintf(`
preview_sample_rows: %d
in:
  type: inline
  columns:
    - {name: id, type: long}
    - {name: score, type: double}
    - {name: name, type: string}
  rows: [%s]
`, sampleRows, strings.Join(rows, ", "))
	return config.MustYAML(doc)
}

func TestPreviewTypedRecords(t *testing.T) {
	e := newEnv(t, 1)
	result, err := e.preview(t).Preview(context.Background(),
		inlineJob(30, `["1", "2.5", "a"]`, `["2", "3.5", "b"]`))
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, "[id:long, score:double, name:string]", result.Schema.String())
	rows := result.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][0].Long())
	assert.Equal(t, 2.5, rows[0][1].Double())
	assert.Equal(t, "a", rows[0][2].Text())
	assert.Equal(t, int64(2), rows[1][0].Long())
	assert.Equal(t, 3.5, rows[1][1].Double())
	assert.Equal(t, "b", rows[1][2].Text())
	assert.Len(t, result.Pages, 2)
}

func TestPreviewSourceSmallerThanSample(t *testing.T) {
	e := newEnv(t, 3)
	var rows []string
	for i := 0; i < 10; i++ {
		rows = append(rows, fmt.Sprintf("[%d, 0.5, r%d]", i, i))
	}
	result, err := e.preview(t).Preview(context.Background(), inlineJob(30, rows...))
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, 10, result.Records())
	assert.Len(t, result.Pages, 4)
}

func TestPreviewStopsAtThreshold(t *testing.T) {
	e := newEnv(t, 4)
	in := &stubInput{partitions: 3, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		return emit(ctx, exec, out, -1)
	}}
	e.register(t, "endless", in)

	before := testutil.ToFloat64(metrics.Transactions.WithLabelValues("preview", metrics.OutcomeAbort))
	result, err := e.preview(t).Preview(context.Background(),
		config.MustYAML("preview_sample_rows: 10\nin: {type: endless}"))
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, 12, result.Records(), "smallest page-aligned count reaching the threshold")
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, ids(result.Rows()))
	assert.Equal(t, int32(1), in.exited.Load(), "only partition 0 ran and it was joined")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Transactions.WithLabelValues("preview", metrics.OutcomeAbort)))
}

func TestPreviewEmptyInput(t *testing.T) {
	e := newEnv(t, 2)
	_, err := e.preview(t).Preview(context.Background(), inlineJob(30))
	require.Error(t, err)
	assert.True(t, errors.IsEmptyInput(err))
	assert.False(t, errors.IsPluginExecution(err), "raised by the executor, not a plugin")
}

func TestPreviewNoPartitions(t *testing.T) {
	e := newEnv(t, 2)
	e.register(t, "none", &stubInput{partitions: 0})
	_, err := e.preview(t).Preview(context.Background(), config.MustYAML("in: {type: none}"))
	assert.True(t, errors.IsEmptyInput(err))
}

func TestPreviewFieldDecodeError(t *testing.T) {
	e := newEnv(t, 2)
	_, err := e.preview(t).Preview(context.Background(), inlineJob(30, `["1", "x.5", "a"]`))
	require.Error(t, err)
	assert.True(t, errors.IsPluginExecution(err))

	fe, ok := errors.Find(err, errors.ErrorTypeFieldDecode)
	require.True(t, ok, err)
	idx, _ := fe.Detail("column_index")
	raw, _ := fe.Detail("raw")
	assert.Equal(t, 1, idx)
	assert.Equal(t, "x.5", raw)
}

func TestPreviewProducerFailureBeforeStop(t *testing.T) {
	e := newEnv(t, 1)
	in := &stubInput{partitions: 1, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		report, err := emit(ctx, exec, out, 2)
		if err != nil {
			return report, err
		}
		return report, errors.New(errors.ErrorTypeFile, "disk gone")
	}}
	e.register(t, "failing", in)

	_, err := e.preview(t).Preview(context.Background(), config.MustYAML("in: {type: failing}"))
	require.Error(t, err)
	assert.True(t, errors.IsPluginExecution(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestPreviewSuppressionPolicy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		strict   bool
		surfaces bool
	}{
		{"closed channel is expected", errors.New(errors.ErrorTypeChannelClosed, "closed"), true, false},
		{"cancellation is expected", context.Canceled, true, false},
		{"other errors are logged", errors.New(errors.ErrorTypeFile, "disk gone"), false, false},
		{"strict surfaces other errors", errors.New(errors.ErrorTypeFile, "disk gone"), true, true},
		{"protocol violations always surface", errors.New(errors.ErrorTypeChannelProtocol, "double complete"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, 1)
			in := &stubInput{partitions: 1, run: onSinkError(tc.err)}
			e.register(t, "stub", in)

			job := config.MustYAML(fmt.Sprintf("preview_sample_rows: 3\nstrict: %t\nin: {type: stub}", tc.strict))
			result, err := e.preview(t).Preview(context.Background(), job)
			assert.Equal(t, int32(1), in.exited.Load())
			if !tc.surfaces {
				require.NoError(t, err)
				assert.Equal(t, 3, result.Records())
				result.Release()
				return
			}
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.IsPluginExecution(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestPreviewSuppressedErrorsAreCounted(t *testing.T) {
	e := newEnv(t, 1)
	e.register(t, "stub", &stubInput{partitions: 1, run: onSinkError(errors.New(errors.ErrorTypeFile, "disk gone"))})

	counter := metrics.SuppressedProducerErrors.WithLabelValues(string(errors.ErrorTypeFile))
	before := testutil.ToFloat64(counter)
	result, err := e.preview(t).Preview(context.Background(), config.MustYAML("preview_sample_rows: 1\nin: {type: stub}"))
	require.NoError(t, err)
	result.Release()
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestPreviewWithoutControl(t *testing.T) {
	e := newEnv(t, 1)
	e.register(t, "lazy", &stubInput{skipControl: true})
	result, err := e.preview(t).Preview(context.Background(), config.MustYAML("in: {type: lazy}"))
	require.NoError(t, err)
	assert.Same(t, idSchema, result.Schema)
	assert.Empty(t, result.Pages)
}

func TestPreviewConfigErrors(t *testing.T) {
	e := newEnv(t, 1)
	exe := e.preview(t)

	_, err := exe.Preview(context.Background(), config.MustYAML("preview_sample_rows: 3"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = exe.Preview(context.Background(), config.MustYAML("in: {type: nope}"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.False(t, errors.IsPluginExecution(err))

	// raised inside the plugin's Transaction
	_, err = exe.Preview(context.Background(), config.MustYAML("in: {type: inline, rows: [[1]]}"))
	assert.True(t, errors.IsPluginExecution(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadPreviewTask(t *testing.T) {
	task, err := LoadPreviewTask(config.MustYAML("in: {type: inline}"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRows, task.SampleRows)
	assert.False(t, task.Strict)
	typ, _ := task.In.GetString("type", "")
	assert.Equal(t, "inline", typ)

	_, err = LoadPreviewTask(config.MustYAML("in: {type: inline}\npreview_sample_rows: 0"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

// feed pushes pages of the given sizes into a channel from a goroutine.
func feed(t *testing.T, e *env, sizes []int) (*channel.PageChannel, chan struct{}) {
	t.Helper()
	ch := channel.New(len(sizes) + 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ch.CompleteProducer()
		out := ch.Output()
		next := int64(0)
		for _, n := range sizes {
			b := record.NewPageBuilder(e.mem, idSchema, out, n)
			for i := 0; i < n; i++ {
				b.SetLong(0, next)
				next++
				if err := b.AddRecord(context.Background()); err != nil {
					break
				}
			}
			b.Close()
		}
	}()
	return ch, done
}

func TestSampleThresholdProperty(t *testing.T) {
	layouts := [][]int{{}, {1}, {5}, {1, 1, 1}, {2, 3, 4}, {10, 1}, {3, 3, 3, 3}}
	for _, sizes := range layouts {
		total := 0
		for _, n := range sizes {
			total += n
		}
		for k := 1; k <= 12; k++ {
			e := newEnv(t, 1)
			ch, done := feed(t, e, sizes)

			pages, err := Sample(context.Background(), ch.Input(), k)
			ch.CompleteConsumer()
			<-done
			require.NoError(t, ch.Join(context.Background()))

			if total == 0 {
				assert.True(t, errors.IsEmptyInput(err), "layout %v", sizes)
				continue
			}
			require.NoError(t, err)
			want, acc := total, 0
			for _, n := range sizes {
				acc += n
				if acc >= k {
					want = acc
					break
				}
			}
			assert.Equal(t, want, countRecords(pages), "layout %v threshold %d", sizes, k)
			releaseAll(pages)
		}
	}
}

func TestPreviewReleasesSampleWhenPluginContinues(t *testing.T) {
	e := newEnv(t, 2)
	in := &stubInput{partitions: 1, continueAfter: true, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		return emit(ctx, exec, out, -1)
	}}
	e.register(t, "forgetful", in)

	result, err := e.preview(t).Preview(context.Background(), config.MustYAML("preview_sample_rows: 3\nin: {type: forgetful}"))
	require.NoError(t, err)
	assert.Same(t, idSchema, result.Schema)
	assert.Empty(t, result.Pages)
	assert.Equal(t, 0, e.mem.CurrentAlloc(), "sampled pages dropped by the plugin are released")
}

func TestPreviewJoinTimeoutIsCoreError(t *testing.T) {
	e := newEnv(t, 4)
	e.system.Exec.JoinTimeout = 100 * time.Millisecond

	release := make(chan struct{})
	in := &stubInput{partitions: 1, run: func(ctx context.Context, exec *spi.ExecContext, _ int, out record.PageSink) (spi.Report, error) {
		report, _ := emit(ctx, exec, out, 40)
		<-release
		return report, nil
	}}
	e.register(t, "stuck", in)

	result, err := e.preview(t).Preview(context.Background(), config.MustYAML("preview_sample_rows: 4\nin: {type: stuck}"))
	close(release)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.False(t, errors.IsPluginExecution(err), "the timeout is raised by the executor")
	assert.Contains(t, err.Error(), "preview-0")

	assert.Eventually(t, func() bool { return in.exited.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return e.mem.CurrentAlloc() == 0 }, 5*time.Second, 10*time.Millisecond,
		"queued pages are released once the producer exits")
}
