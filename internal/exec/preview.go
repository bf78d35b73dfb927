package exec

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// DefaultSampleRows is the number of records a preview samples when the job
// does not set preview_sample_rows.
const DefaultSampleRows = 30

// PreviewTask is the validated preview job.
type PreviewTask struct {
	// In is the input plugin section; its "type" selects the plugin.
	In config.Source
	// SampleRows is the record count after which sampling stops.
	SampleRows int
	// Strict surfaces producer failures raised after sampling stopped,
	// except closed-channel errors caused by the stop itself.
	Strict bool
}

// LoadPreviewTask validates a preview job document.
func LoadPreviewTask(src config.Source) (PreviewTask, error) {
	var t PreviewTask
	var err error

	if t.In, err = src.RequiredSub("in"); err != nil {
		return t, err
	}
	if t.SampleRows, err = src.GetInt("preview_sample_rows", DefaultSampleRows); err != nil {
		return t, err
	}
	if t.SampleRows <= 0 {
		return t, errors.New(errors.ErrorTypeConfig, "preview_sample_rows must be positive").
			WithDetail("key", "preview_sample_rows").
			WithDetail("value", t.SampleRows)
	}
	if t.Strict, err = src.GetBool("strict", false); err != nil {
		return t, err
	}
	return t, nil
}

// PreviewExecutor samples the first partition of a job.
type PreviewExecutor struct {
	executor
}

// NewPreviewExecutor returns a preview executor resolving input plugins
// through plugins.
func NewPreviewExecutor(system config.SystemConfig, plugins spi.Plugins, opts ...Option) *PreviewExecutor {
	return &PreviewExecutor{executor: newExecutor("preview", system, plugins, opts)}
}

// Preview runs the job's input transaction until SampleRows records were
// read from partition 0, then stops it early. The returned result owns its
// pages; the caller must Release it.
//
// A source that yields no record fails with an EmptyInputError. Failures of
// the input plugin surface as plugin execution errors, with the exceptions
// described on the suppression policy of PreviewTask.Strict.
func (e *PreviewExecutor) Preview(ctx context.Context, cfg config.Source) (*PreviewResult, error) {
	timer := metrics.NewTimer("preview")

	task, err := LoadPreviewTask(cfg)
	if err != nil {
		return nil, err
	}
	input, exec, err := e.begin(task.In)
	if err != nil {
		return nil, err
	}
	log := exec.Logger()

	ctx, span := exec.Tracer().StartSpan(exec.Context(ctx), "preview")
	span.SetAttribute("preview.sample_rows", task.SampleRows)

	var f failure
	var sampled *PreviewResult
	control := spi.ControlFunc(func(ctx context.Context, ts spi.TaskSource) (spi.Outcome, error) {
		outcome, err := e.samplePartition(ctx, exec, input, ts, task, &f)
		if err == nil {
			sampled, _ = spi.PayloadAs[*PreviewResult](outcome)
		}
		return outcome, err
	})
	outcome, err := input.Transaction(ctx, exec, task.In, control)
	err = f.propagate(err)

	duration := e.finish(timer, outcomeLabel(outcome, err))
	span.Finish(err)

	var result *PreviewResult
	if outcome.IsAbort() {
		var ok bool
		if result, ok = spi.PayloadAs[*PreviewResult](outcome); !ok {
			if err == nil {
				err = errors.Newf(errors.ErrorTypeInternal, "unexpected preview payload %T", outcome.Payload())
			}
		}
	}
	if sampled != result {
		// the plugin dropped the sampled pages instead of returning them
		sampled.Release()
	}
	if err != nil {
		result.Release()
		log.Warn("preview failed", zap.Error(err))
		return nil, err
	}
	if result == nil {
		// the plugin finished its transaction with Continue
		result = &PreviewResult{Schema: exec.Schema()}
	}

	log.Info("preview finished",
		zap.Int("records", result.Records()),
		zap.Int("pages", len(result.Pages)),
		zap.Duration("duration", duration))
	return result, nil
}

// samplePartition is the preview control: it runs partition 0 and returns the
// sampled pages as an AbortEarly outcome.
func (e *PreviewExecutor) samplePartition(ctx context.Context, exec *spi.ExecContext, input spi.InputPlugin, ts spi.TaskSource, task PreviewTask, f *failure) (spi.Outcome, error) {
	schema, err := exec.RequireSchema()
	if err != nil {
		return spi.Outcome{}, err
	}
	n, err := input.Partitions(exec, ts)
	if err != nil {
		return spi.Outcome{}, err
	}
	if n == 0 {
		return spi.Outcome{}, f.raise(emptyInput(task.SampleRows))
	}

	var pages []*record.Page
	var exhausted bool
	err = exec.Tracer().TracePartition(ctx, 0, func(ctx context.Context) error {
		ctx = partitionContext(ctx, 0)
		res, err := withChannel(ctx, exec, "preview-0",
			func(ctx context.Context, out record.PageSink) error {
				_, err := input.RunInput(ctx, exec, ts, 0, out)
				return err
			},
			func(ctx context.Context, in *channel.Input) error {
				var err error
				pages, exhausted, err = sample(ctx, in, task.SampleRows)
				return err
			})
		if err != nil {
			return f.raise(err)
		}
		return e.settle(exec, res, task.Strict, f)
	})
	if err != nil {
		releaseAll(pages)
		return spi.Outcome{}, err
	}

	total := countRecords(pages)
	exec.Logger().Debug("sampled partition",
		zap.Int("records", total),
		zap.Int("pages", len(pages)),
		zap.Bool("exhausted", exhausted))
	return spi.AbortEarly(&PreviewResult{Schema: schema, Pages: pages}), nil
}

// settle applies the suppression policy to a torn-down preview scope.
//
// A producer that finished before sampling stopped failed on its own, so
// its error surfaces. After an early stop, channel protocol violations always
// surface, closed-channel errors and context cancellation are the expected
// result of the stop and are discarded, and anything else is logged and
// discarded unless strict is set.
func (e *PreviewExecutor) settle(exec *spi.ExecContext, res scopeResult, strict bool, f *failure) error {
	produced := res.produced
	switch {
	case produced == nil:
	case !res.stopped:
		return spi.PropagatePluginError(produced)
	case errors.IsChannelProtocol(produced):
		return spi.PropagatePluginError(produced)
	case errors.IsChannelClosed(produced), errors.Is(produced, context.Canceled):
		metrics.SuppressedProducerErrors.WithLabelValues(string(errors.TypeOf(produced))).Inc()
		exec.Logger().Debug("discarded producer error after early stop", zap.Error(produced))
	case strict:
		return spi.PropagatePluginError(produced)
	default:
		metrics.SuppressedProducerErrors.WithLabelValues(string(errors.TypeOf(produced))).Inc()
		exec.Logger().Warn("discarded producer error after early stop", zap.Error(produced))
	}
	if res.consumed != nil {
		return f.raise(res.consumed)
	}
	return nil
}

// Sample reads pages from in until their total record count reaches
// maxRows or in is exhausted. It fails with an EmptyInputError when in
// yields no record at all. The caller owns the returned pages.
func Sample(ctx context.Context, in *channel.Input, maxRows int) ([]*record.Page, error) {
	pages, _, err := sample(ctx, in, maxRows)
	return pages, err
}

func sample(ctx context.Context, in *channel.Input, maxRows int) ([]*record.Page, bool, error) {
	var pages []*record.Page
	rows := 0
	for {
		page, err := in.Next(ctx)
		if err == io.EOF {
			if rows == 0 {
				releaseAll(pages)
				return nil, true, emptyInput(maxRows)
			}
			return pages, true, nil
		}
		if err != nil {
			releaseAll(pages)
			return nil, false, err
		}
		pages = append(pages, page)
		rows += page.Records()
		if rows > 0 && rows >= maxRows {
			return pages, false, nil
		}
	}
}

func emptyInput(maxRows int) error {
	return errors.New(errors.ErrorTypeEmptyInput, "no input records to preview").
		WithDetail("sample_rows", maxRows)
}
