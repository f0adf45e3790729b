package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-fir-filter/internal/backend"
	"go-fir-filter/internal/coeff"
	"go-fir-filter/internal/config"
	"go-fir-filter/internal/dsp"
	"go-fir-filter/internal/ringbuffer"
	"go-fir-filter/internal/toggle"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: firfilter <coefficients.txt> <input.wav> [output.wav]")
		os.Exit(2)
	}

	// Get default configuration
	cfg := config.New()

	fmt.Println("Loading coefficients...")
	set, err := coeff.LoadFile(os.Args[1])
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	fmt.Printf("[INFO] Loaded %d filter taps (capacity %d)\n", set.Len(), set.Cap()-1)

	engine := dsp.New(set)
	engine.SetPassthrough(cfg.Passthrough)

	fmt.Println("Opening file...")
	file, err := os.Open(os.Args[2])
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer file.Close()

	if len(os.Args) > 3 {
		renderFile(cfg, engine, file, os.Args[3])
		return
	}
	runLive(cfg, engine, file)
}

// renderFile filters the whole input into a stereo WAV file. The
// passthrough channel follows cfg.RenderPassthrough since nobody can toggle it.
func renderFile(cfg *config.Config, engine *dsp.Engine, file *os.File, path string) {
	out, err := os.Create(path)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer out.Close()

	engine.SetPassthrough(cfg.RenderPassthrough)

	fmt.Println("Rendering...")
	info, err := backend.Render(file, out, engine, cfg)
	if err != nil {
		log.Fatalf("FATAL: render failed: %v", err)
	}
	fmt.Printf("[INFO] Wrote %d frames at %d Hz to %s\n", info.Frames, info.SampleRate, path)
	if info.Clipped > 0 {
		fmt.Printf("[STATS] Total clipped samples: %d\n", info.Clipped)
	}
}

// runLive plays the input through the default audio device until the input
// ends, the process is interrupted, or the device goes away.
func runLive(cfg *config.Config, engine *dsp.Engine, file *os.File) {
	rate, err := backend.SampleRate(file)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	cfg.SampleRate = rate
	fmt.Printf("[INFO] engine sample rate: %d\n", cfg.SampleRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Creating ring buffer...")
	rb := ringbuffer.New(cfg.RingBufferSize)

	feedErr := make(chan error, 1)
	go func(done chan<- error) {
		done <- backend.Feed(ctx, file, rb, cfg.BlockSize)
	}(feedErr)

	fmt.Println("Setting up audio...")
	stream := backend.NewStream(engine, rb, cfg.BlockSize)
	player, err := backend.NewPlayer(cfg, stream)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer player.Close()
	player.Start()

	listener := toggle.New(engine, cfg.ToggleKey)
	go func() {
		if err := listener.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %v\n", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "Enter %c to toggle passthrough ...  \n", cfg.ToggleKey)
	fmt.Fprint(os.Stderr, "Running ... press CTRL-C to exit ...   ")
	if listener.Prompt {
		listener.PrintPrompt()
	}

	statsTicker := time.NewTicker(cfg.StatsInterval)
	defer statsTicker.Stop()
	pollTicker := time.NewTicker(cfg.ShutdownPoll)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return

		case err := <-player.Done():
			log.Fatalf("FATAL: %v", err)

		case err := <-feedErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Fatalf("FATAL: input: %v", err)
			}
			feedErr = nil

		case <-statsTicker.C:
			st := engine.Stats()
			fmt.Printf("\n[STATS] Blocks: %d, frames: %d, clipped: %d, underruns: %d\n",
				st.Blocks, stream.Frames(), st.Clipped, stream.Underruns())

		case <-pollTicker.C:
			if stream.Drained() && (!player.IsPlaying() || player.Buffered() == 0) {
				fmt.Println("\nProcessor: End of stream, exiting.")
				return
			}
		}
	}
}
