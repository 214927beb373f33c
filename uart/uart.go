// Package uart provides an optional stdio-backed debug console for an
// emulated chip, standing in for the hardware UART a real Tock board
// would expose. It is not part of the syscall transport; an app that
// wants debug output writes to it directly, outside the core unyield
// protocol.
package uart

import (
	"io"
	"os"

	"golang.org/x/term"

	"tockhost/hosterrors"
)

// Console is a raw-mode terminal console wired to the process's own
// stdin/stdout, or a plain passthrough when stdin is not a terminal
// (e.g. under a test harness or CI).
type Console struct {
	out      io.Writer
	raw      bool
	oldState *term.State
	fd       int
}

// Open prepares a debug console. If stdin is a terminal it is put into
// raw mode so single-byte writes from the emulated chip are not
// line-buffered by the driving shell; Restore must be called to return
// the terminal to its previous state.
func Open() (*Console, error) {
	fd := int(os.Stdin.Fd())
	c := &Console{out: os.Stdout, fd: fd}

	if !term.IsTerminal(fd) {
		return c, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.IOError, "enter raw terminal mode")
	}

	c.raw = true
	c.oldState = oldState
	return c, nil
}

// Write emits bytes to the console, implementing io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	n, err := c.out.Write(p)
	if err != nil {
		return n, hosterrors.Wrap(err, hosterrors.IOError, "write console")
	}
	return n, nil
}

// Size returns the console's current width and height in characters, or
// an error if stdin is not a terminal.
func (c *Console) Size() (width, height int, err error) {
	w, h, err := term.GetSize(c.fd)
	if err != nil {
		return 0, 0, hosterrors.Wrap(err, hosterrors.IOError, "get terminal size")
	}
	return w, h, nil
}

// Restore returns the terminal to the mode it was in before Open, if it
// was put into raw mode at all.
func (c *Console) Restore() error {
	if !c.raw {
		return nil
	}
	if err := term.Restore(c.fd, c.oldState); err != nil {
		return hosterrors.Wrap(err, hosterrors.IOError, "restore terminal mode")
	}
	return nil
}
