// Package bufpool provides the generic object pool and size-bucketed byte
// buffer pool; the store uses it for the header scratch buffer of meta.bin
// serialization. It is a trimmed port of the teacher's pkg/pool: the generic
// Pool[T] and BufferPool shapes are kept verbatim in spirit, but the
// ETL/CDC-specific Record pooling that made up most of that package is
// dropped since nothing in this store ever pools a CDC record.
package bufpool

import (
	"sync"
	"sync/atomic"
)

// Pool is a generic, statistics-tracking wrapper over sync.Pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a typed pool. newFn is called whenever the pool is empty;
// reset, if non-nil, is called on an object just before it returns to the
// pool via Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating a new one if empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool after running the configured reset func.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats reports total allocations and objects currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// BufferPool pools []byte slices in power-of-2 size buckets, so a request
// for N bytes reuses a slice sized for the smallest bucket >= N instead of
// allocating fresh each time.
type BufferPool struct {
	buckets []*Pool[[]byte]
	sizes   []int
}

// NewBufferPool builds a BufferPool with buckets at each power of two from
// minSize up to and including maxSize.
func NewBufferPool(minSize, maxSize int) *BufferPool {
	bp := &BufferPool{}
	for size := minSize; size <= maxSize; size *= 2 {
		sz := size
		bp.sizes = append(bp.sizes, sz)
		bp.buckets = append(bp.buckets, New(
			func() []byte { return make([]byte, 0, sz) },
			func(b []byte) { _ = b[:0] },
		))
	}
	return bp
}

// Get returns a []byte with capacity >= n, length 0, taken from the
// smallest bucket that fits; if n exceeds every bucket, it allocates
// directly rather than growing pool footprint unboundedly.
func (bp *BufferPool) Get(n int) []byte {
	for i, sz := range bp.sizes {
		if n <= sz {
			buf := bp.buckets[i].Get()
			return buf[:0]
		}
	}
	return make([]byte, 0, n)
}

// Put returns buf to the bucket matching its capacity, if any; buffers
// whose capacity doesn't match a configured bucket size are dropped.
func (bp *BufferPool) Put(buf []byte) {
	c := cap(buf)
	for i, sz := range bp.sizes {
		if c == sz {
			bp.buckets[i].Put(buf)
			return
		}
	}
}
