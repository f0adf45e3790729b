package dsp

import (
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"go-fir-filter/internal/coeff"
)

// Engine is a single-channel FIR filter with an unfiltered passthrough
// output that can be switched on and off while audio is running.
//
// ProcessBlock is meant to be called from the audio callback and must not
// block or allocate. The passthrough flag may be changed from any goroutine.
type Engine struct {
	taps  [coeff.MaxCoeff]float64
	count int

	// delay[0] holds the newest input sample. It is never reset.
	delay [coeff.MaxCoeff]float64

	passthrough atomic.Bool

	blocks  atomic.Uint64
	samples atomic.Uint64
	clipped atomic.Uint64
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Blocks  uint64
	Samples uint64
	Clipped uint64
}

// New creates an engine for the given coefficient set. A nil or empty set
// yields an engine whose filtered output is always silent.
func New(set *coeff.Set) *Engine {
	e := &Engine{}
	e.count = copy(e.taps[:], set.Taps())
	// Resolve the vecmath implementation now instead of on the first audio callback.
	_ = vecmath.DotProduct(e.taps[:1], e.delay[:1])
	return e
}

// Taps returns the number of active taps.
func (e *Engine) Taps() int {
	return e.count
}

// ProcessBlock filters in into filtered and copies in into passthrough when
// the passthrough flag is on (silence otherwise). Only the common prefix of
// the three slices is processed.
func (e *Engine) ProcessBlock(in, filtered, passthrough []float32) {
	n := min(len(in), len(filtered), len(passthrough))
	pass := e.passthrough.Load()

	taps := e.taps[:e.count]
	line := e.delay[:e.count]
	var clipped uint64

	for i := 0; i < n; i++ {
		x := in[i]

		// The newest sample is stored before the sum, so tap 0 weights x itself.
		e.delay[0] = float64(x)
		y := vecmath.DotProduct(taps, line)
		if e.count > 1 {
			copy(line[1:], line[:e.count-1])
		}

		if y > 1 || y < -1 {
			clipped++
		}
		filtered[i] = float32(y)

		if pass {
			passthrough[i] = x
		} else {
			passthrough[i] = 0
		}
	}

	e.blocks.Add(1)
	e.samples.Add(uint64(n))
	if clipped > 0 {
		e.clipped.Add(clipped)
	}
}

// SetPassthrough sets the passthrough flag.
func (e *Engine) SetPassthrough(on bool) {
	e.passthrough.Store(on)
}

// Passthrough reports the passthrough flag.
func (e *Engine) Passthrough() bool {
	return e.passthrough.Load()
}

// TogglePassthrough flips the passthrough flag and returns the new state.
func (e *Engine) TogglePassthrough() bool {
	for {
		old := e.passthrough.Load()
		if e.passthrough.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Blocks:  e.blocks.Load(),
		Samples: e.samples.Load(),
		Clipped: e.clipped.Load(),
	}
}
