// Package pool provides typed object pooling for the hot paths of quickload:
// read buffers for file decoding and field slices for text parsers.
//
// Example usage:
//
//	buf := pool.GetBuffer(64 * 1024)
//	defer pool.PutBuffer(buf)
//
//	fields := pool.GetStringSlice()
//	defer pool.PutStringSlice(fields)
//
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
//	obj := myPool.Get()
//	defer myPool.Put(obj)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset
// function. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, if any, is called before an object goes back to the
// pool.
//
//	pool := New(
//	    func() *Buffer { return &Buffer{data: make([]byte, 0, 1024)} },
//	    func(b *Buffer) { b.data = b.data[:0] },
//	)
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the number of objects created by the pool, the number
// currently checked out, and the number of Get calls. Gets minus allocated
// is the number of reuses.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.gets)
}

// stringSlice is pooled by pointer so Put does not allocate.
type stringSlice struct{ s []string }

var (
	stringSlicePool = New(
		func() *stringSlice { return &stringSlice{s: make([]string, 0, 32)} },
		func(v *stringSlice) {
			clear(v.s)
			v.s = v.s[:0]
		},
	)

	globalBufferPool = NewBufferPool()
)

// GetStringSlice retrieves an empty string slice from the global pool.
func GetStringSlice() []string {
	return stringSlicePool.Get().s
}

// PutStringSlice returns a string slice to the global pool. Nil slices are
// ignored.
func PutStringSlice(s []string) {
	if s == nil {
		return
	}
	stringSlicePool.Put(&stringSlice{s: s})
}

// GetBuffer returns a buffer of length size from the global buffer pool.
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}

// BufferPool manages byte buffer pooling with size-based buckets.
// It selects the bucket from the requested size, which keeps file read
// buffers of different sizes from evicting each other.
type BufferPool struct {
	pools []*Pool[*[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with power-of-4 buckets from 4KB to
// 16MB. Larger buffers are allocated directly without pooling.
func NewBufferPool() *BufferPool {
	sizes := []int{
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
	}

	pools := make([]*Pool[*[]byte], len(sizes))
	for i, size := range sizes {
		pools[i] = New(
			func() *[]byte {
				b := make([]byte, size)
				return &b
			},
			nil,
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of length size. Its capacity is the bucket size.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := *p.pools[i].Get()
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to the bucket matching its capacity. Buffers that
// match no bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			buf = buf[:size]
			p.pools[i].Put(&buf)
			return
		}
	}
}
