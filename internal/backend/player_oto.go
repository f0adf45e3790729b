//go:build !headless

package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"go-fir-filter/internal/config"
)

// Player plays a Stream through the default audio device. oto pulls the
// stream from its own goroutine, which acts as the real-time callback.
type Player struct {
	ctx    *oto.Context
	player *oto.Player
	stream *Stream
	poll   time.Duration

	done    chan error
	stop    chan struct{}
	started bool
	mutex   sync.Mutex // Only for setup/control operations
}

// NewPlayer opens a two-channel float32 output context at the configured
// sample rate and attaches stream to it.
func NewPlayer(cfg *config.Config, stream *Stream) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(cfg.BlockSize) * time.Second / time.Duration(cfg.SampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("open audio context: %w", err)
	}
	<-ready

	p := &Player{
		ctx:    ctx,
		stream: stream,
		poll:   cfg.ShutdownPoll,
		done:   make(chan error, 1),
		stop:   make(chan struct{}),
	}
	p.player = ctx.NewPlayer(stream)
	p.player.SetBufferSize(cfg.BlockSize * FrameBytes * 2)
	return p, nil
}

// Start begins playback and the shutdown monitor.
func (p *Player) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		return
	}
	p.player.Play()
	p.started = true
	go p.monitor()
}

// monitor reports the first device or player error on Done.
func (p *Player) monitor() {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			err := p.ctx.Err()
			if err == nil {
				err = p.player.Err()
			}
			if err != nil {
				p.done <- fmt.Errorf("%w: %v", ErrShutdown, err)
				return
			}
		}
	}
}

// Done delivers a backend shutdown. Callers must treat it as fatal.
func (p *Player) Done() <-chan error {
	return p.done
}

// IsPlaying reports whether the device player is still consuming the stream.
// It turns false once the stream has returned io.EOF and its buffer is empty.
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Buffered returns the number of bytes queued in the device player.
func (p *Player) Buffered() int {
	return p.player.BufferedSize()
}

// Close stops playback and the monitor.
func (p *Player) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		close(p.stop)
		p.started = false
	}
	return p.player.Close()
}
