// Package process implements the app-process half of the unyield
// protocol: spawning the app's executable, tracking the buffers it has
// allowed to the kernel, and driving one scheduling quantum's round trip
// over the syscall transport.
package process

import (
	"os"
	"os/exec"
	"strconv"
	"unsafe"

	"tockhost/hosterrors"
	"tockhost/logging"
	"tockhost/transport"
	"tockhost/wire"
)

// allowSlice is the kernel's shadow copy of one app-allowed buffer, keyed
// by the app-side address it was allowed at. valid gates whether the
// buffer has ever been populated from the app; a slice must not be sent
// back to the app until it has.
type allowSlice struct {
	data  []byte
	valid bool
}

// UnixProcess is one app process: its executable path, its child handle
// once started, and the set of buffers it has allowed to the kernel.
type UnixProcess struct {
	id         int
	name       string
	execPath   string
	cmd        *exec.Cmd
	wasStarted bool

	// allowOrder preserves insertion order so transferAllowRegions sends a
	// stable sequence of preambles across quanta.
	allowOrder []uintptr
	allowMap   map[uintptr]*allowSlice
}

// New creates a process bound to execPath, not yet started.
func New(execPath, name string, id int) *UnixProcess {
	return &UnixProcess{
		id:       id,
		name:     name,
		execPath: execPath,
		allowMap: make(map[uintptr]*allowSlice),
	}
}

// ID returns the process's numeric id, used to address it on the
// transport and in log fields.
func (p *UnixProcess) ID() int { return p.id }

// Name returns the process's display name.
func (p *UnixProcess) Name() string { return p.name }

// WasStarted reports whether Start has been called successfully.
func (p *UnixProcess) WasStarted() bool { return p.wasStarted }

// Start spawns the app's executable, passing it the id and the two
// socket paths it will use to reach the kernel. It is idempotent: a
// second call is a no-op.
func (p *UnixProcess) Start(socketRX, socketTX string) error {
	if p.wasStarted {
		return nil
	}

	logging.Info("starting process", "process", p.name, "exec", p.execPath)

	cmd := exec.Command(p.execPath,
		"--id", strconv.Itoa(p.id),
		"--socket_send", socketRX,
		"--socket_recv", socketTX,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return hosterrors.Wrap(err, hosterrors.IOError, "start process")
	}

	p.cmd = cmd
	p.wasStarted = true
	return nil
}

// Wait blocks until the process exits, once it has been started.
func (p *UnixProcess) Wait() error {
	if p.cmd == nil {
		return hosterrors.ErrProcessNotStarted
	}
	return p.cmd.Wait()
}

// Allow registers a len-byte buffer at appAddr in the allow map and
// returns the kernel-side address of its shadow copy — a pointer into
// the freshly allocated buffer, not the app's own address, matching the
// original reference's allow() returning slice.as_mut_ptr(). A null
// appAddr (zero) is passed through unchanged, matching the app's
// convention for "no buffer".
func (p *UnixProcess) Allow(appAddr uintptr, length int) uintptr {
	if appAddr == 0 {
		return 0
	}

	slice := &allowSlice{data: make([]byte, length)}
	if _, exists := p.allowMap[appAddr]; !exists {
		p.allowOrder = append(p.allowOrder, appAddr)
	}
	p.allowMap[appAddr] = slice

	return uintptr(unsafe.Pointer(unsafe.SliceData(slice.data)))
}

// Unyield passes liveness to the process for one scheduling quantum:
//
//  1. If ret is non-nil, send it (a return value or a callback dispatch)
//     followed by every valid allowed buffer back to the app.
//  2. Block reading the syscall socket for the app's next syscall.
//  3. Read every allowed buffer's latest contents back from the app.
//
// An allow syscall's newly-registered buffer is not copied from the app
// on this call — only on the next one, once command() has had a chance
// to run against the old contents.
func (p *UnixProcess) Unyield(t *transport.SyscallTransport, ret *wire.KernelReturn) (wire.Syscall, error) {
	var zero wire.Syscall

	if ret != nil {
		if err := t.TxConnectIfNeeded(); err != nil {
			return zero, err
		}
		if err := t.Send(p.id, *ret); err != nil {
			return zero, err
		}
		if err := p.transferAllowRegions(t, true); err != nil {
			return zero, err
		}
	}

	buf := make([]byte, wire.SyscallSize)
	var syscall wire.Syscall
	if err := t.Recv(buf, &syscall); err != nil {
		return zero, err
	}

	if err := t.TxConnectIfNeeded(); err != nil {
		return zero, err
	}
	if err := p.transferAllowRegions(t, false); err != nil {
		return zero, err
	}

	return syscall, nil
}

// transferAllowRegions walks the allow map in insertion order. When send
// is true the kernel ships its shadow copy of each valid buffer to the
// app; when false it asks the app for each buffer's current contents and
// marks it valid once received. Either direction ends with a null
// preamble so the app knows when the sequence is complete.
func (p *UnixProcess) transferAllowRegions(t *transport.SyscallTransport, send bool) error {
	for _, addr := range p.allowOrder {
		slice := p.allowMap[addr]

		if send && !slice.valid {
			continue
		}

		preamble := wire.AllowedRegionPreamble{Address: uint64(addr), Length: uint64(len(slice.data))}
		if err := t.Send(p.id, preamble); err != nil {
			return err
		}

		if send {
			if err := t.SendBytes(p.id, slice.data); err != nil {
				return err
			}
		} else {
			if err := t.RecvBytes(slice.data); err != nil {
				return err
			}
			slice.valid = true
		}
	}

	return t.Send(p.id, wire.NullPreamble())
}
