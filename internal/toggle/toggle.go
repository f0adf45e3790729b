// Package toggle reads operator key presses from a console stream and
// flips the engine's passthrough flag.
package toggle

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Switch is implemented by anything with a toggleable passthrough flag.
type Switch interface {
	TogglePassthrough() bool
}

// Listener flips a Switch each time Key is read from In.
type Listener struct {
	In     io.Reader
	Out    io.Writer
	Key    byte
	Switch Switch

	// Prompt controls whether the input prompt is printed after each toggle.
	Prompt bool
}

// New returns a listener on stdin that reports to stderr. The prompt is
// only shown when stdin is a terminal.
func New(sw Switch, key byte) *Listener {
	return &Listener{
		In:     os.Stdin,
		Out:    os.Stderr,
		Key:    key,
		Switch: sw,
		Prompt: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// PrintPrompt writes the toggle instructions.
func (l *Listener) PrintPrompt() {
	fmt.Fprintf(l.Out, "Please enter a lower case %q to toggle:   ", string(rune(l.Key)))
}

// Run blocks reading In until it ends or fails. Every occurrence of Key
// toggles the switch; all other bytes are ignored. io.EOF is not an error.
func (l *Listener) Run() error {
	r := bufio.NewReader(l.In)
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read toggle input: %w", err)
		}
		if b != l.Key {
			continue
		}

		state := "OFF"
		if l.Switch.TogglePassthrough() {
			state = "ON"
		}
		fmt.Fprintf(l.Out, "\nPASSTHROUGH %s . . .   \n", state)
		if l.Prompt {
			l.PrintPrompt()
		}
	}
}
