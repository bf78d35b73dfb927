package spi

import (
	"context"
	"runtime/debug"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// PluginThread is a goroutine running plugin code on behalf of a
// transaction. It starts immediately and outlives the caller's stack frame
// until it is joined.
type PluginThread struct {
	name string
	done chan struct{}
	err  error
}

// StartPluginThread runs work on a new goroutine. A panic inside work is
// recovered and reported by Join as a plugin execution error.
func StartPluginThread(ctx context.Context, name string, work func(ctx context.Context) error) *PluginThread {
	t := &PluginThread{name: name, done: make(chan struct{})}
	go t.run(ctx, work)
	return t
}

func (t *PluginThread) run(ctx context.Context, work func(ctx context.Context) error) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = errors.Newf(errors.ErrorTypePluginExecution, "plugin thread %q panicked: %v", t.name, r).
				WithDetail("thread", t.name).
				WithDetail("stack", string(debug.Stack()))
		}
	}()
	t.err = work(ctx)
}

// Name returns the thread name.
func (t *PluginThread) Name() string { return t.name }

// Done is closed when the work function has returned.
func (t *PluginThread) Done() <-chan struct{} { return t.done }

// Join waits for the thread and returns its failure as a plugin execution
// error. The original error stays reachable through the cause chain.
func (t *PluginThread) Join() error {
	<-t.done
	return PropagatePluginError(t.err)
}

// Wait waits for the thread and discards its result.
func (t *PluginThread) Wait() { <-t.done }

// Err returns the unwrapped failure of a finished thread, or nil while it
// is still running.
func (t *PluginThread) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// PropagatePluginError converts a failure raised by plugin code into a
// plugin execution error. Nil stays nil and plugin execution errors pass
// through unchanged; anything else, including typed core errors, is wrapped
// so that the original remains reachable with errors.Find and errors.As.
func PropagatePluginError(err error) error {
	if err == nil {
		return nil
	}
	if errors.TypeOf(err) == errors.ErrorTypePluginExecution {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypePluginExecution, "plugin execution failed")
}
