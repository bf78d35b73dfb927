package exec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quickload/pkg/channel"
	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
)

func TestWithChannelRunsToCompletion(t *testing.T) {
	e := newEnv(t, 2)
	exec := e.exec(t)
	require.NoError(t, exec.SetSchema(idSchema))

	var got []int64
	res, err := withChannel(context.Background(), exec, "complete",
		func(ctx context.Context, out record.PageSink) error {
			_, err := emit(ctx, exec, out, 5)
			return err
		},
		func(ctx context.Context, in *channel.Input) error {
			return in.Each(ctx, func(p *record.Page) error {
				defer p.Release()
				got = append(got, ids(p.Rows())...)
				return nil
			})
		})
	require.NoError(t, err)
	assert.NoError(t, res.produced)
	assert.NoError(t, res.consumed)
	assert.False(t, res.stopped)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, got, "pages arrive in FIFO order")
}

func TestWithChannelEarlyStop(t *testing.T) {
	e := newEnv(t, 1)
	exec := e.exec(t)
	require.NoError(t, exec.SetSchema(idSchema))

	var exited atomic.Bool
	res, err := withChannel(context.Background(), exec, "endless",
		func(ctx context.Context, out record.PageSink) error {
			defer exited.Store(true)
			_, err := emit(ctx, exec, out, -1)
			return err
		},
		func(ctx context.Context, in *channel.Input) error {
			p, err := in.Next(ctx)
			if err != nil {
				return err
			}
			p.Release()
			return nil
		})
	require.NoError(t, err)
	assert.True(t, exited.Load(), "producer joined before return")
	assert.True(t, res.stopped)
	require.Error(t, res.produced)
	assert.True(t, errors.IsChannelClosed(res.produced) || errors.Is(res.produced, context.Canceled), res.produced)
}

func TestWithChannelConsumerPanic(t *testing.T) {
	e := newEnv(t, 1)
	exec := e.exec(t)
	require.NoError(t, exec.SetSchema(idSchema))

	var exited atomic.Bool
	assert.PanicsWithValue(t, "consumer bug", func() {
		_, _ = withChannel(context.Background(), exec, "panic",
			func(ctx context.Context, out record.PageSink) error {
				defer exited.Store(true)
				_, err := emit(ctx, exec, out, -1)
				return err
			},
			func(ctx context.Context, in *channel.Input) error {
				p, err := in.Next(ctx)
				if err == nil {
					p.Release()
				}
				panic("consumer bug")
			})
	})
	assert.True(t, exited.Load(), "producer joined while unwinding")
}

func TestWithChannelProducerPanic(t *testing.T) {
	e := newEnv(t, 1)
	exec := e.exec(t)
	require.NoError(t, exec.SetSchema(idSchema))

	res, err := withChannel(context.Background(), exec, "producer-panic",
		func(context.Context, record.PageSink) error { panic("plugin bug") },
		func(ctx context.Context, in *channel.Input) error {
			return in.Each(ctx, func(p *record.Page) error { p.Release(); return nil })
		})
	require.NoError(t, err)
	require.Error(t, res.produced)
	assert.True(t, errors.IsPluginExecution(res.produced))
	assert.Contains(t, res.produced.Error(), "plugin bug")
}

func TestWithChannelJoinTimeout(t *testing.T) {
	e := newEnv(t, 1)
	e.system.Exec.JoinTimeout = 50 * time.Millisecond
	exec := e.exec(t)

	release := make(chan struct{})
	defer close(release)
	_, err := withChannel(context.Background(), exec, "stuck",
		func(context.Context, record.PageSink) error {
			<-release
			return nil
		},
		func(context.Context, *channel.Input) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.Contains(t, err.Error(), "stuck")
}
