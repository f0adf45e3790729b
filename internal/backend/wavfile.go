package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"go-fir-filter/internal/config"
	"go-fir-filter/internal/ringbuffer"
)

const wavFormatPCM = 1

// pcmReader decodes channel 0 of a PCM WAV stream into float32 blocks.
type pcmReader struct {
	dec   *wav.Decoder
	buf   *audio.IntBuffer
	chans int
	scale float32
	bias  int
}

func newPCMReader(src io.ReadSeeker, blockSize int) (*pcmReader, error) {
	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	// Move to start of PCM data
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seek to PCM data: %w", err)
	}
	// Only integer PCM is decoded; IEEE float data would be misread as ints.
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d", ErrInvalidWAV, dec.WavAudioFormat)
	}

	r := &pcmReader{dec: dec, chans: max(int(dec.NumChans), 1)}
	switch dec.BitDepth {
	case 8:
		// 8-bit WAV samples are unsigned.
		r.bias = 128
		r.scale = 1.0 / 128
	case 16, 24, 32:
		r.scale = 1.0 / float32(int64(1)<<(dec.BitDepth-1))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, dec.BitDepth)
	}

	// Preallocate reusable buffer for streamed PCM data
	r.buf = &audio.IntBuffer{
		Format:         dec.Format(),
		Data:           make([]int, blockSize*r.chans),
		SourceBitDepth: int(dec.BitDepth),
	}
	return r, nil
}

// read fills dst with up to len(dst) samples and returns how many were
// decoded. It returns io.EOF once the data chunk is exhausted.
func (r *pcmReader) read(dst []float32) (int, error) {
	r.buf.Data = r.buf.Data[:cap(r.buf.Data)]
	if want := len(dst) * r.chans; want < len(r.buf.Data) {
		r.buf.Data = r.buf.Data[:want]
	}

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("decode PCM: %w", err)
	}
	frames := n / r.chans
	for i := 0; i < frames; i++ {
		dst[i] = float32(r.buf.Data[i*r.chans]-r.bias) * r.scale
	}
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, nil
}

func (r *pcmReader) sampleRate() int {
	return int(r.dec.SampleRate)
}

// Feed decodes channel 0 of a WAV stream into rb until the end of the data
// or until ctx is done. rb is closed on return.
func Feed(ctx context.Context, src io.ReadSeeker, rb *ringbuffer.RingBuffer, blockSize int) error {
	defer rb.Close()

	r, err := newPCMReader(src, blockSize)
	if err != nil {
		return err
	}
	block := make([]float32, blockSize)
	for {
		n, err := r.read(block)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := rb.Write(ctx, block[:n]); err != nil {
			return err
		}
	}
}

// RenderInfo describes a finished offline render.
type RenderInfo struct {
	SampleRate int
	Frames     int
	Clipped    int
}

// Render runs every sample of a WAV stream through proc in blocks of
// cfg.BlockSize and writes a two-channel PCM WAV to dst: filtered signal on
// channel 0, passthrough on channel 1.
func Render(src io.ReadSeeker, dst io.WriteSeeker, proc Processor, cfg *config.Config) (RenderInfo, error) {
	var info RenderInfo

	r, err := newPCMReader(src, cfg.BlockSize)
	if err != nil {
		return info, err
	}
	switch cfg.OutputBitDepth {
	case 16, 24, 32:
	default:
		return info, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, cfg.OutputBitDepth)
	}
	info.SampleRate = r.sampleRate()

	enc := wav.NewEncoder(dst, info.SampleRate, cfg.OutputBitDepth, 2, 1)
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: info.SampleRate},
		SourceBitDepth: cfg.OutputBitDepth,
	}
	interleaved := make([]int, 2*cfg.BlockSize)
	in := make([]float32, cfg.BlockSize)
	filtered := make([]float32, cfg.BlockSize)
	pass := make([]float32, cfg.BlockSize)

	fullScale := float64(int64(1)<<(cfg.OutputBitDepth-1) - 1)
	quantize := func(v float32) int {
		if v > 1 {
			info.Clipped++
			v = 1
		} else if v < -1 {
			info.Clipped++
			v = -1
		}
		return int(float64(v) * fullScale)
	}

	for {
		n, err := r.read(in)
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, err
		}

		proc.ProcessBlock(in[:n], filtered[:n], pass[:n])
		for i := 0; i < n; i++ {
			interleaved[2*i] = quantize(filtered[i])
			interleaved[2*i+1] = quantize(pass[i])
		}
		out.Data = interleaved[:2*n]
		if err := enc.Write(out); err != nil {
			return info, fmt.Errorf("encode PCM: %w", err)
		}
		info.Frames += n
	}

	if err := enc.Close(); err != nil {
		return info, fmt.Errorf("finalize WAV: %w", err)
	}
	return info, nil
}

// SampleRate reads the WAV header of src and rewinds it.
func SampleRate(src io.ReadSeeker) (int, error) {
	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return 0, ErrInvalidWAV
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind input: %w", err)
	}
	return int(dec.SampleRate), nil
}
