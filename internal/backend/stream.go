package backend

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"go-fir-filter/internal/ringbuffer"
)

// FrameBytes is the size of one interleaved stereo float32 frame.
const FrameBytes = 8

// Stream is the pull side of live playback. Each Read drains input samples
// from a ring buffer, runs them through a Processor in fixed-size blocks,
// and returns interleaved little-endian float32 frames with the filtered
// signal on the left channel and the passthrough signal on the right.
//
// Read never blocks and never allocates. Missing input is replaced with
// silence. Once the input has been closed and fully consumed, Read returns
// io.EOF so the player can finish.
type Stream struct {
	proc  Processor
	input *ringbuffer.RingBuffer

	// Pre-allocated block buffers
	in       []float32
	filtered []float32
	pass     []float32

	frames    atomic.Uint64
	underruns atomic.Uint64
	drained   atomic.Bool
}

// NewStream creates a stream that processes blockSize frames at a time.
func NewStream(proc Processor, input *ringbuffer.RingBuffer, blockSize int) *Stream {
	if blockSize < 1 {
		blockSize = 1
	}
	return &Stream{
		proc:     proc,
		input:    input,
		in:       make([]float32, blockSize),
		filtered: make([]float32, blockSize),
		pass:     make([]float32, blockSize),
	}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.drained.Load() {
		return 0, io.EOF
	}

	total := len(p) / FrameBytes
	blockSize := len(s.in)

	for base := 0; base < total; base += blockSize {
		n := min(blockSize, total-base)
		in := s.in[:n]

		closed := s.input.Closed()
		got := s.input.Read(in)
		if got < n {
			clear(in[got:])
			if closed && s.input.AvailableRead() == 0 {
				s.drained.Store(true)
			} else {
				s.underruns.Add(uint64(n - got))
			}
		}

		s.proc.ProcessBlock(in, s.filtered[:n], s.pass[:n])

		out := p[base*FrameBytes:]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(out[i*FrameBytes:], math.Float32bits(s.filtered[i]))
			binary.LittleEndian.PutUint32(out[i*FrameBytes+4:], math.Float32bits(s.pass[i]))
		}
	}

	clear(p[total*FrameBytes:])
	s.frames.Add(uint64(total))
	return len(p), nil
}

// Frames returns the number of frames delivered so far.
func (s *Stream) Frames() uint64 {
	return s.frames.Load()
}

// Underruns returns the number of input samples replaced by silence while
// the input was still open.
func (s *Stream) Underruns() uint64 {
	return s.underruns.Load()
}

// Drained reports whether the input has been closed and fully consumed.
func (s *Stream) Drained() bool {
	return s.drained.Load()
}
