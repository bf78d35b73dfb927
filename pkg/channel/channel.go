// Package channel implements the bounded page hand-off between one producer
// goroutine and one consumer.
//
// A PageChannel moves through four states:
//
//	Open -> ProducerDone / ConsumerDone -> Joined
//
// The producer pushes pages through Output() and signals CompleteProducer
// when it has nothing more to send. The consumer pulls pages through Input()
// until io.EOF, or stops early with CompleteConsumer. Join waits for both
// signals and for the attached producer goroutine, then releases any page
// that was never delivered. Both completion signals are idempotent.
package channel

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/metrics"
	"github.com/ajitpratap0/quickload/pkg/record"
)

// DefaultCapacity is the number of pages a channel buffers when no capacity
// is configured.
const DefaultCapacity = 16

// State is the lifecycle state of a PageChannel.
type State int32

const (
	Open State = iota
	ProducerDone
	ConsumerDone
	Joined
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case ProducerDone:
		return "producer_done"
	case ConsumerDone:
		return "consumer_done"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Thread is the producer goroutine a channel waits for on Join.
type Thread interface {
	Done() <-chan struct{}
}

// PageChannel is a bounded FIFO of pages with explicit completion signals.
type PageChannel struct {
	pages chan *record.Page

	producerDone chan struct{}
	consumerDone chan struct{}
	joined       chan struct{}

	producerOnce sync.Once
	consumerOnce sync.Once
	joinOnce     sync.Once

	mu       sync.Mutex
	producer Thread

	delivered atomic.Int64
	dropped   atomic.Int64
}

// New returns an open channel buffering up to capacity pages. Values below
// one select DefaultCapacity.
func New(capacity int) *PageChannel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &PageChannel{
		pages:        make(chan *record.Page, capacity),
		producerDone: make(chan struct{}),
		consumerDone: make(chan struct{}),
		joined:       make(chan struct{}),
	}
}

// Output returns the producer side of the channel.
func (c *PageChannel) Output() *Output { return &Output{c: c} }

// Input returns the consumer side of the channel.
func (c *PageChannel) Input() *Input { return &Input{c: c} }

// AttachProducer records the goroutine that feeds the channel. Join waits
// for it to exit.
func (c *PageChannel) AttachProducer(t Thread) {
	c.mu.Lock()
	c.producer = t
	c.mu.Unlock()
}

// CompleteProducer signals that no further page will be added. Calling it
// more than once has no additional effect.
func (c *PageChannel) CompleteProducer() {
	c.producerOnce.Do(func() { close(c.producerDone) })
}

// CompleteConsumer signals that the consumer will read no further page.
// A producer blocked in Add is released with a ChannelClosed error. Calling
// it more than once has no additional effect.
func (c *PageChannel) CompleteConsumer() {
	c.consumerOnce.Do(func() { close(c.consumerDone) })
}

// State reports the current lifecycle state.
func (c *PageChannel) State() State {
	switch {
	case isClosed(c.joined):
		return Joined
	case isClosed(c.consumerDone):
		return ConsumerDone
	case isClosed(c.producerDone):
		return ProducerDone
	default:
		return Open
	}
}

// Queued returns the number of pages waiting for the consumer.
func (c *PageChannel) Queued() int { return len(c.pages) }

// Delivered returns the number of pages handed to the consumer.
func (c *PageChannel) Delivered() int64 { return c.delivered.Load() }

// Dropped returns the number of undelivered pages released by Join.
func (c *PageChannel) Dropped() int64 { return c.dropped.Load() }

// Join waits until both sides have completed and the attached producer has
// exited, then releases every undelivered page. It never reports the
// producer's own failure; that is the producer thread's to return. Join is
// safe to call more than once.
func (c *PageChannel) Join(ctx context.Context) error {
	for _, done := range []<-chan struct{}{c.producerDone, c.consumerDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	producer := c.producer
	c.mu.Unlock()
	if producer != nil {
		select {
		case <-producer.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.joinOnce.Do(func() {
		c.drain()
		close(c.joined)
	})
	return nil
}

func (c *PageChannel) drain() {
	for {
		select {
		case p := <-c.pages:
			metrics.ChannelQueueDepth.Dec()
			metrics.ChannelPagesDropped.Inc()
			c.dropped.Add(1)
			p.Release()
		default:
			return
		}
	}
}

func (c *PageChannel) add(ctx context.Context, page *record.Page) error {
	if isClosed(c.producerDone) {
		page.Release()
		return errors.New(errors.ErrorTypeChannelProtocol, "page added after producer completion")
	}
	if isClosed(c.consumerDone) {
		page.Release()
		return closedError()
	}

	select {
	case c.pages <- page:
		metrics.ChannelQueueDepth.Inc()
		return nil
	case <-c.consumerDone:
		page.Release()
		return closedError()
	case <-ctx.Done():
		page.Release()
		return ctx.Err()
	}
}

func (c *PageChannel) next(ctx context.Context) (*record.Page, error) {
	if isClosed(c.consumerDone) {
		return nil, errors.New(errors.ErrorTypeChannelProtocol, "page requested after consumer completion")
	}

	select {
	case p := <-c.pages:
		return c.deliver(p), nil
	default:
	}

	select {
	case p := <-c.pages:
		return c.deliver(p), nil
	case <-c.producerDone:
		// pages added before completion are already buffered
		select {
		case p := <-c.pages:
			return c.deliver(p), nil
		default:
			return nil, io.EOF
		}
	case <-c.consumerDone:
		return nil, errors.New(errors.ErrorTypeChannelProtocol, "consumer completed while waiting for a page")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *PageChannel) deliver(p *record.Page) *record.Page {
	metrics.ChannelQueueDepth.Dec()
	c.delivered.Add(1)
	return p
}

func closedError() error {
	return errors.New(errors.ErrorTypeChannelClosed, "consumer completed; page discarded")
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Output is the producer side of a PageChannel. It implements
// record.PageSink.
type Output struct {
	c *PageChannel
}

var _ record.PageSink = (*Output)(nil)

// Add enqueues page, blocking while the channel is full. Ownership of the
// page always passes to the channel: when the consumer has already completed
// the page is released and a ChannelClosed error is returned.
func (o *Output) Add(ctx context.Context, page *record.Page) error {
	return o.c.add(ctx, page)
}

// Complete is shorthand for CompleteProducer.
func (o *Output) Complete() { o.c.CompleteProducer() }

// Input is the consumer side of a PageChannel.
type Input struct {
	c *PageChannel
}

// Next returns the next page in FIFO order. It returns io.EOF once the
// producer has completed and every queued page was delivered. The caller
// owns the returned page and must Release it.
func (in *Input) Next(ctx context.Context) (*record.Page, error) {
	return in.c.next(ctx)
}

// Each calls fn for every page until end of input or until fn returns an
// error. fn owns the page it receives. io.EOF is not reported.
func (in *Input) Each(ctx context.Context, fn func(*record.Page) error) error {
	for {
		p, err := in.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

// Complete is shorthand for CompleteConsumer.
func (in *Input) Complete() { in.c.CompleteConsumer() }
