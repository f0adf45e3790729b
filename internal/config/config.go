package config

import "time"

// Config holds all the configuration parameters for the application.
type Config struct {
	SampleRate        int
	BlockSize         int
	RingBufferSize    int
	OutputBitDepth    int
	ToggleKey         byte
	Passthrough       bool // initial passthrough state for live playback
	RenderPassthrough bool
	StatsInterval     time.Duration
	ShutdownPoll      time.Duration
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		SampleRate:        48_000,
		BlockSize:         256,
		RingBufferSize:    48_000, // 1s of mono input
		OutputBitDepth:    16,
		ToggleKey:         'f',
		Passthrough:       false,
		RenderPassthrough: true,
		StatsInterval:     5 * time.Second,
		ShutdownPoll:      100 * time.Millisecond,
	}
}
