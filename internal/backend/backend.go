// Package backend connects a block processor to audio I/O: live playback
// through oto, and offline rendering between WAV files.
package backend

import "errors"

// Processor transforms one block of input into a filtered and a
// passthrough block. It is called from the audio callback.
type Processor interface {
	ProcessBlock(in, filtered, passthrough []float32)
}

var (
	// ErrInvalidWAV is returned when an input is not a readable WAV file.
	ErrInvalidWAV = errors.New("not a valid WAV file")
	// ErrUnsupportedBitDepth is returned for PCM bit depths other than 8, 16, 24 or 32.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	// ErrShutdown is reported when the audio device stops the stream.
	ErrShutdown = errors.New("audio backend shut down")
)
