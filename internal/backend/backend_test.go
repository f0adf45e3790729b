package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"go-fir-filter/internal/coeff"
	"go-fir-filter/internal/config"
	"go-fir-filter/internal/dsp"
	"go-fir-filter/internal/ringbuffer"
)

func newEngine(t *testing.T, passthrough bool, taps ...float64) *dsp.Engine {
	t.Helper()
	set, err := coeff.NewSet(taps...)
	if err != nil {
		t.Fatal(err)
	}
	e := dsp.New(set)
	e.SetPassthrough(passthrough)
	return e
}

// writeWAV writes 16-bit PCM samples to a new file in dir.
func writeWAV(t *testing.T, dir string, sampleRate, chans int, samples []int) string {
	t.Helper()
	return writeWAVFormat(t, dir, sampleRate, chans, 16, 1, samples)
}

func writeWAVFormat(t *testing.T, dir string, sampleRate, chans, depth, format int, samples []int) string {
	t.Helper()
	path := filepath.Join(dir, "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, depth, chans, format)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: chans, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeFrames(p []byte) (left, right []float32) {
	for i := 0; i+FrameBytes <= len(p); i += FrameBytes {
		left = append(left, math.Float32frombits(binary.LittleEndian.Uint32(p[i:])))
		right = append(right, math.Float32frombits(binary.LittleEndian.Uint32(p[i+4:])))
	}
	return left, right
}

func TestStream_InterleavesFilteredAndPassthrough(t *testing.T) {
	rb := ringbuffer.New(64)
	input := []float32{1, 1, 0, 0, 0.5, -0.5, 0.25}
	if err := rb.Write(context.Background(), input); err != nil {
		t.Fatal(err)
	}
	rb.Close()

	s := NewStream(newEngine(t, true, 0.5, 0.5), rb, 3)
	p := make([]byte, len(input)*FrameBytes+3) // trailing partial frame
	n, err := s.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read returned %d, %v", n, err)
	}

	left, right := decodeFrames(p)
	wantLeft := []float32{0.5, 1, 0.5, 0, 0.25, 0, -0.125}
	for i := range input {
		if math.Abs(float64(left[i]-wantLeft[i])) > 1e-6 {
			t.Errorf("Filtered frame %d: expected %f, got %f", i, wantLeft[i], left[i])
		}
		if right[i] != input[i] {
			t.Errorf("Passthrough frame %d: expected %f, got %f", i, input[i], right[i])
		}
	}
	for _, b := range p[len(input)*FrameBytes:] {
		if b != 0 {
			t.Fatal("Trailing partial frame should be zeroed")
		}
	}
	if s.Frames() != uint64(len(input)) {
		t.Errorf("Expected %d frames, got %d", len(input), s.Frames())
	}
	if s.Underruns() != 0 {
		t.Errorf("Expected no underruns, got %d", s.Underruns())
	}
}

func TestStream_UnderrunAndDrain(t *testing.T) {
	rb := ringbuffer.New(16)
	if err := rb.Write(context.Background(), []float32{0.5, 0.5}); err != nil {
		t.Fatal(err)
	}

	s := NewStream(newEngine(t, true, 1), rb, 4)
	p := make([]byte, 4*FrameBytes)
	s.Read(p)

	_, right := decodeFrames(p)
	want := []float32{0.5, 0.5, 0, 0}
	for i := range want {
		if right[i] != want[i] {
			t.Errorf("Frame %d: expected %f, got %f", i, want[i], right[i])
		}
	}
	if s.Underruns() != 2 {
		t.Errorf("Expected 2 underrun samples, got %d", s.Underruns())
	}
	if s.Drained() {
		t.Fatal("Open input should not be drained")
	}

	rb.Close()
	s.Read(p)
	if !s.Drained() {
		t.Error("Closed and empty input should be drained")
	}
	if s.Underruns() != 2 {
		t.Errorf("End of input should not count as underrun, got %d", s.Underruns())
	}

	// Later reads report end of stream so the player stops pulling.
	for i := 0; i < 2; i++ {
		n, err := s.Read(p)
		if n != 0 || err != io.EOF {
			t.Fatalf("Read after drain returned %d, %v; expected 0, io.EOF", n, err)
		}
	}
}

func TestStream_ReturnsEOFOnceInputIsConsumed(t *testing.T) {
	rb := ringbuffer.New(16)
	if err := rb.Write(context.Background(), []float32{0.25, -0.25}); err != nil {
		t.Fatal(err)
	}
	rb.Close()

	s := NewStream(newEngine(t, true, 1), rb, 256)
	p := make([]byte, 4096)
	var total, reads int
	for {
		n, err := s.Read(p)
		total += n
		if err == io.EOF {
			if n != 0 {
				t.Errorf("Expected 0 bytes with io.EOF, got %d", n)
			}
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if reads++; reads > 4 {
			t.Fatal("Read never returned io.EOF after the input was closed")
		}
	}
	if total != len(p) {
		t.Errorf("Expected one full buffer before io.EOF, got %d bytes", total)
	}
	if !s.Drained() {
		t.Error("Stream should report drained")
	}
}

func TestStream_ReadDoesNotAllocate(t *testing.T) {
	rb := ringbuffer.New(1024)
	s := NewStream(newEngine(t, true, 0.25, 0.5, 0.25), rb, 128)
	p := make([]byte, 512*FrameBytes)

	allocs := testing.AllocsPerRun(50, func() {
		s.Read(p)
	})
	if allocs != 0 {
		t.Errorf("Expected 0 allocations per Read, got %f", allocs)
	}
}

func TestFeed_FillsRingFromWAV(t *testing.T) {
	// Stereo input: only channel 0 is fed.
	path := writeWAV(t, t.TempDir(), 8000, 2, []int{16384, -1, -16384, -1, 8192, -1})
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rb := ringbuffer.New(16)
	if err := Feed(context.Background(), f, rb, 2); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if !rb.Closed() {
		t.Fatal("Feed should close the ring buffer")
	}

	got := make([]float32, 8)
	n := rb.Read(got)
	want := []float32{0.5, -0.5, 0.25}
	if n != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), n)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestFeed_InvalidFile(t *testing.T) {
	rb := ringbuffer.New(4)
	err := Feed(context.Background(), strings.NewReader("definitely not RIFF data"), rb, 4)
	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("Expected ErrInvalidWAV, got %v", err)
	}
	if !rb.Closed() {
		t.Error("Feed should close the ring buffer on error")
	}
}

func TestFeed_RejectsFloatWAV(t *testing.T) {
	// IEEE float (format 3) data must not be decoded as integer PCM.
	path := writeWAVFormat(t, t.TempDir(), 8000, 1, 32, 3, []int{1, 2, 3, 4})
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rb := ringbuffer.New(16)
	err = Feed(context.Background(), f, rb, 4)
	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("Expected ErrInvalidWAV, got %v", err)
	}
	if rb.AvailableRead() != 0 {
		t.Errorf("Expected no samples fed, got %d", rb.AvailableRead())
	}
}

func TestRender_RejectsFloatWAV(t *testing.T) {
	path := writeWAVFormat(t, t.TempDir(), 8000, 1, 32, 3, []int{1, 2, 3, 4})
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	out, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	_, err = Render(f, out, newEngine(t, true, 1), config.New())
	if !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("Expected ErrInvalidWAV, got %v", err)
	}
}

func TestRender_ImpulseResponseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	samples := make([]int, 40)
	samples[0] = 16384 // 0.5
	inPath := writeWAV(t, dir, 48000, 1, samples)

	src, err := os.Open(inPath)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	cfg := config.New()
	cfg.BlockSize = 16
	taps := []float64{0.5, 0.25, -0.5}
	info, err := Render(src, dst, newEngine(t, true, taps...), cfg)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if info.Frames != len(samples) || info.SampleRate != 48000 || info.Clipped != 0 {
		t.Fatalf("Unexpected render info: %+v", info)
	}

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	dec := wav.NewDecoder(dst)
	out, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Decoding render output failed: %v", err)
	}
	if dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("Expected 2ch 16-bit output, got %dch %d-bit", dec.NumChans, dec.BitDepth)
	}
	if len(out.Data) != 2*len(samples) {
		t.Fatalf("Expected %d interleaved samples, got %d", 2*len(samples), len(out.Data))
	}

	const lsb = 2
	for i := 0; i < len(samples); i++ {
		wantFiltered := 0.0
		if i < len(taps) {
			wantFiltered = 0.5 * taps[i] * 32767
		}
		wantPass := 0.0
		if i == 0 {
			wantPass = 0.5 * 32767
		}
		if math.Abs(float64(out.Data[2*i])-wantFiltered) > lsb {
			t.Errorf("Filtered frame %d: expected %.0f, got %d", i, wantFiltered, out.Data[2*i])
		}
		if math.Abs(float64(out.Data[2*i+1])-wantPass) > lsb {
			t.Errorf("Passthrough frame %d: expected %.0f, got %d", i, wantPass, out.Data[2*i+1])
		}
	}
}

func TestRender_ClipsOutOfRangeSamples(t *testing.T) {
	dir := t.TempDir()
	inPath := writeWAV(t, dir, 8000, 1, []int{30000, 30000, 30000})
	src, err := os.Open(inPath)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	info, err := Render(src, dst, newEngine(t, false, 1, 1), config.New())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	// 1 + 1 taps over a ~0.92 input clips every sample after the first.
	if info.Clipped != 2 {
		t.Errorf("Expected 2 clipped samples, got %d", info.Clipped)
	}
}

func TestRender_RejectsUnsupportedOutputDepth(t *testing.T) {
	dir := t.TempDir()
	src, err := os.Open(writeWAV(t, dir, 8000, 1, []int{0}))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(dir, "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	cfg := config.New()
	cfg.OutputBitDepth = 12
	if _, err := Render(src, dst, newEngine(t, false, 1), cfg); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Fatalf("Expected ErrUnsupportedBitDepth, got %v", err)
	}
}

func TestSampleRate_ReadsHeaderAndRewinds(t *testing.T) {
	f, err := os.Open(writeWAV(t, t.TempDir(), 22050, 1, []int{16384}))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rate, err := SampleRate(f)
	if err != nil || rate != 22050 {
		t.Fatalf("Expected 22050, got %d (%v)", rate, err)
	}

	rb := ringbuffer.New(4)
	if err := Feed(context.Background(), f, rb, 4); err != nil {
		t.Fatalf("Feed after SampleRate failed: %v", err)
	}
	if rb.AvailableRead() != 1 {
		t.Errorf("Expected 1 sample after rewind, got %d", rb.AvailableRead())
	}
}
