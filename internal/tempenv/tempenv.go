// Package tempenv allocates the per-run scratch directory that holds the
// Unix-domain socket files the kernel and its app processes rendezvous
// on. Keeping them under a fresh temp directory means two concurrent
// runs never collide on socket paths.
package tempenv

import (
	"os"
	"path/filepath"
	"strconv"

	"tockhost/hosterrors"
)

// Env is one run's scratch directory and the fixed socket paths within
// it.
type Env struct {
	dir string
}

// New creates a fresh temp directory for one emulator run.
func New() (*Env, error) {
	dir, err := os.MkdirTemp("", "tockhost-*")
	if err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.IOError, "create run directory")
	}
	return &Env{dir: dir}, nil
}

// Dir returns the run's scratch directory.
func (e *Env) Dir() string { return e.dir }

// ExtIRQPath is the socket path the external interrupt channel binds.
func (e *Env) ExtIRQPath() string { return filepath.Join(e.dir, "ext_irq") }

// KernelRXPath is the socket path the kernel binds to receive syscalls
// from a given process.
func (e *Env) KernelRXPath(processID int) string {
	return filepath.Join(e.dir, "kernel_rx_"+strconv.Itoa(processID))
}

// KernelTXPath is the socket path the kernel connects to in order to
// send to a given process.
func (e *Env) KernelTXPath(processID int) string {
	return filepath.Join(e.dir, "kernel_tx_"+strconv.Itoa(processID))
}

// Cleanup removes the run's scratch directory and everything in it.
func (e *Env) Cleanup() error {
	return os.RemoveAll(e.dir)
}
