//go:build headless

package backend

import (
	"errors"

	"go-fir-filter/internal/config"
)

// Player is unavailable in headless builds; use Render instead.
type Player struct{}

// NewPlayer always fails in headless builds.
func NewPlayer(cfg *config.Config, stream *Stream) (*Player, error) {
	return nil, errors.New("audio output not available in headless build")
}

// Start begins playback and the shutdown monitor.
func (p *Player) Start() {}

// Done delivers a backend shutdown. Callers must treat it as fatal.
func (p *Player) Done() <-chan error {
	return nil
}

// IsPlaying reports whether the device player is still consuming the stream.
func (p *Player) IsPlaying() bool {
	return false
}

// Buffered returns the number of bytes queued in the device player.
func (p *Player) Buffered() int {
	return 0
}

// Close stops playback and the monitor.
func (p *Player) Close() error {
	return nil
}
