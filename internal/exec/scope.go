package exec

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
	"github.com/ajitpratap0/quickload/pkg/spi"
)

// produceFunc writes the pages of one partition into out.
type produceFunc func(ctx context.Context, out record.PageSink) error

// consumeFunc reads pages from in until it has enough or in is exhausted.
type consumeFunc func(ctx context.Context, in *channel.Input) error

// scopeResult is what is left of a channel pair after teardown.
type scopeResult struct {
	// produced is the raw failure of the producer work, nil on success.
	produced error
	// consumed is the failure returned by the consumer.
	consumed error
	// stopped is true when the consumer completed before the producer did.
	stopped bool
}

// withChannel opens a page channel, runs produce on a plugin thread feeding
// it and consume on the calling goroutine. On every exit path, including a
// panic in consume, the consumer side is completed, the producer's context
// is cancelled, the channel is joined and the thread is waited for.
//
// By default the join waits as long as the producer runs. With
// exec.join_timeout set, a producer still running after the timeout is
// reported as an internal error and left to a background join, which
// releases the queued pages once the thread exits.
func withChannel(ctx context.Context, exec *spi.ExecContext, name string, produce produceFunc, consume consumeFunc) (res scopeResult, err error) {
	ch := exec.NewPageChannel()
	pctx, cancel := context.WithCancel(ctx)

	thread := exec.StartPluginThread(pctx, name, func(ctx context.Context) error {
		defer ch.CompleteProducer()
		return produce(ctx, ch.Output())
	})
	ch.AttachProducer(thread)

	defer func() {
		res.stopped = ch.State() != channel.ProducerDone
		ch.CompleteConsumer()
		cancel()
		if jerr := join(exec, ch, thread); jerr != nil {
			err = jerr
			return
		}
		res.produced = thread.Err()
		exec.Logger().Debug("channel joined",
			zap.String("thread", name),
			zap.Int64("delivered", ch.Delivered()),
			zap.Int64("dropped", ch.Dropped()),
			zap.Bool("stopped_early", res.stopped))
	}()

	res.consumed = consume(ctx, ch.Input())
	return res, nil
}

func join(exec *spi.ExecContext, ch *channel.PageChannel, thread *spi.PluginThread) error {
	ctx := context.Background()
	timeout := exec.System().Exec.JoinTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ch.Join(ctx); err != nil {
		exec.Logger().Error("producer thread did not exit",
			zap.String("thread", thread.Name()),
			zap.Duration("timeout", timeout))
		go func() {
			_ = ch.Join(context.Background())
			thread.Wait()
		}()
		return errors.Wrap(err, errors.ErrorTypeInternal,
			"producer thread "+thread.Name()+" did not exit within "+timeout.Round(time.Millisecond).String()).
			WithDetail("thread", thread.Name())
	}
	thread.Wait()
	return nil
}
