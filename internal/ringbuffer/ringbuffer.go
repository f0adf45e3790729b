package ringbuffer

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("write to closed ring buffer")

// RingBuffer is a single-producer, single-consumer ring of float32 samples.
// The consumer side never blocks, never locks and never allocates, so it can
// be drained from an audio callback. The producer side blocks when full.
type RingBuffer struct {
	buf    []float32
	size   uint64
	read   atomic.Uint64 // total samples consumed
	write  atomic.Uint64 // total samples produced
	closed atomic.Bool
	space  chan struct{} // consumer -> producer wakeup
}

// New creates a new RingBuffer of a given size.
func New(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		buf:   make([]float32, size),
		size:  uint64(size),
		space: make(chan struct{}, 1),
	}
}

// AvailableWrite returns the number of samples that can be written to the buffer.
func (rb *RingBuffer) AvailableWrite() int {
	return int(rb.size - (rb.write.Load() - rb.read.Load()))
}

// AvailableRead returns the number of samples available for reading.
func (rb *RingBuffer) AvailableRead() int {
	return int(rb.write.Load() - rb.read.Load())
}

// Close marks the buffer as closed, indicating no more writes will occur.
// Samples already written stay readable.
func (rb *RingBuffer) Close() {
	rb.closed.Store(true)
}

// Closed reports whether Close has been called.
func (rb *RingBuffer) Closed() bool {
	return rb.closed.Load()
}

// Write adds data to the buffer, blocking until space is available or ctx
// is done.
func (rb *RingBuffer) Write(ctx context.Context, data []float32) error {
	for len(data) > 0 {
		if rb.closed.Load() {
			return ErrClosed
		}

		w := rb.write.Load()
		free := rb.size - (w - rb.read.Load())
		if free == 0 {
			select {
			case <-rb.space:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		n := min(uint64(len(data)), free)
		idx := w % rb.size
		// Copy in one or two chunks.
		first := uint64(copy(rb.buf[idx:], data[:n]))
		if first < n {
			copy(rb.buf, data[first:n])
		}
		rb.write.Store(w + n)
		data = data[n:]
	}
	return nil
}

// Read copies up to len(dst) samples into dst and returns how many were
// copied. It returns immediately, with 0 when the buffer is empty.
func (rb *RingBuffer) Read(dst []float32) int {
	r := rb.read.Load()
	avail := rb.write.Load() - r
	n := min(uint64(len(dst)), avail)
	if n == 0 {
		return 0
	}

	idx := r % rb.size
	first := uint64(copy(dst[:n], rb.buf[idx:]))
	if first < n {
		copy(dst[first:n], rb.buf)
	}
	rb.read.Store(r + n)

	select {
	case rb.space <- struct{}{}:
	default:
	}
	return int(n)
}
