package coeff

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// MaxCoeff is the number of slots in a coefficient set and in the filter's
// delay line. One slot is held in reserve, so at most MaxCoeff-1 taps load.
const MaxCoeff = 50

var (
	// ErrCapacityExceeded is returned when a source holds more than MaxCoeff-1 taps.
	ErrCapacityExceeded = errors.New("maximum coefficients reached")
	// ErrSourceUnavailable is returned when a source cannot be opened or read.
	ErrSourceUnavailable = errors.New("cannot open coefficient source")
)

// Set is a fixed-capacity, ordered sequence of FIR taps.
// Tap 0 weights the most recent input sample.
type Set struct {
	taps  [MaxCoeff]float64
	count int
}

// NewSet builds a Set from taps given in tap order.
func NewSet(taps ...float64) (*Set, error) {
	if len(taps) > MaxCoeff-1 {
		return nil, fmt.Errorf("%w: %d taps, limit %d", ErrCapacityExceeded, len(taps), MaxCoeff-1)
	}
	s := &Set{count: len(taps)}
	copy(s.taps[:], taps)
	return s, nil
}

// Len returns the number of loaded taps.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Cap returns the fixed slot capacity.
func (s *Set) Cap() int {
	return MaxCoeff
}

// Tap returns tap i, or 0 when i is outside the loaded range.
func (s *Set) Tap(i int) float64 {
	if s == nil || i < 0 || i >= s.count {
		return 0
	}
	return s.taps[i]
}

// Taps returns a view of the loaded taps. Callers must not modify it.
func (s *Set) Taps() []float64 {
	if s == nil {
		return nil
	}
	return s.taps[:s.count:s.count]
}

// Load reads a coefficient source: one header line that is ignored, then
// whitespace-separated numbers in tap order. The first token that is not a
// number ends the data.
func Load(r io.Reader) (*Set, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		if err == io.EOF {
			return &Set{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	s := &Set{}
	sc := bufio.NewScanner(br)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			break
		}
		if s.count >= MaxCoeff-1 {
			return nil, fmt.Errorf("%w: limit %d", ErrCapacityExceeded, MaxCoeff-1)
		}
		s.taps[s.count] = v
		s.count++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return s, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()
	return Load(f)
}
