// Package boundary implements the scheduler's userspace-kernel boundary
// contract on top of one process's unyield exchange: stashing the return
// value (or callback) to ship on the next switch, decoding the syscall
// frame that comes back, and rewriting ALLOW addresses from app space
// into the kernel's shadow-buffer space.
package boundary

import (
	"tockhost/logging"
	"tockhost/process"
	"tockhost/transport"
	"tockhost/wire"
)

// SyscallClass is the coarse syscall family encoded in a Syscall frame's
// Number field, mirroring the classic Tock ABI class numbering.
type SyscallClass uint64

const (
	ClassYield SyscallClass = iota
	ClassSubscribe
	ClassCommand
	ClassAllow
	ClassMemop
)

// DecodedSyscall is a Syscall frame interpreted according to its class.
// For ClassAllow, AllowAddress has already been rewritten from the app's
// address to the kernel's shadow-buffer address by the time callers see
// it via SwitchToProcess.
type DecodedSyscall struct {
	Class           SyscallClass
	DriverNumber    uint64
	SubdriverNumber uint64
	AllowAddress    uintptr
	AllowSize       uint64
	Args            [wire.NumArgs]uint64
}

// decodeSyscall interprets a wire.Syscall's Number/Args into a
// DecodedSyscall, matching the field layout conventions of command- and
// allow-class syscalls.
func decodeSyscall(s wire.Syscall) DecodedSyscall {
	d := DecodedSyscall{
		Class: SyscallClass(s.Number),
		Args:  s.Args,
	}

	switch d.Class {
	case ClassSubscribe, ClassCommand:
		d.DriverNumber = s.Args[0]
		d.SubdriverNumber = s.Args[1]
	case ClassAllow:
		d.DriverNumber = s.Args[0]
		d.SubdriverNumber = s.Args[1]
		d.AllowAddress = uintptr(s.Args[2])
		d.AllowSize = s.Args[3]
	}

	return d
}

// ContextSwitchReason is the outcome the scheduler sees after one
// switch_to_process call.
type ContextSwitchReason int

const (
	// SyscallFired reports that the process yielded control with a
	// decoded syscall request.
	SyscallFired ContextSwitchReason = iota
	// Fault reports that the switch failed unrecoverably: a transport
	// error, an undecodable frame, or a spawn failure.
	Fault
)

// StoredState is the per-process boundary state: which process this is
// (looked up by id rather than held as a pointer, since the process
// registry and the boundary driver would otherwise each need a live
// reference to the other) and the most recent return value or callback
// queued to ship on the next switch.
type StoredState struct {
	ProcessID  int
	SyscallRet wire.KernelReturn
	hasRet     bool
}

// SetSyscallReturnValue stashes a plain return value to be shipped on the
// process's next switch.
func (s *StoredState) SetSyscallReturnValue(v int64) {
	s.SyscallRet = wire.NewRet(v)
	s.hasRet = true
}

// SetProcessFunction stashes a callback dispatch to be shipped on the
// process's next switch.
func (s *StoredState) SetProcessFunction(cb wire.Callback) {
	s.SyscallRet = wire.NewCallback(cb)
	s.hasRet = true
}

// ProcessLookup resolves a StoredState's process id to the live process
// object. The boundary driver is built against this interface rather
// than a concrete registry type so tests can supply a single process
// directly.
type ProcessLookup interface {
	Lookup(id int) (*process.UnixProcess, bool)
}

// Boundary drives the syscall transport side of the userspace-kernel
// boundary. It is named Boundary, not Syscall, to avoid colliding with
// the wire.Syscall frame type it decodes.
type Boundary struct {
	transport *transport.SyscallTransport
	processes ProcessLookup
}

// New builds a boundary driver over an already-open transport.
func New(t *transport.SyscallTransport, processes ProcessLookup) *Boundary {
	return &Boundary{transport: t, processes: processes}
}

// InitializeProcess is a no-op: the boundary contract has a slot for
// process setup here, but this driver performs all real initialization
// lazily on a process's first SwitchToProcess call.
func (b *Boundary) InitializeProcess(id int) {}

// SwitchToProcess implements one scheduling quantum's worth of the
// userspace-kernel boundary contract:
//
//  1. If the process has not yet been started, start it and pass no
//     return value; otherwise pass the state's stashed return value.
//  2. Run the unyield exchange.
//  3. Decode the resulting Syscall frame.
//  4. If it is an ALLOW, rewrite its address into kernel-shadow space.
//
// Any transport failure or decode error yields Fault; Tock's boundary
// contract has no resync point, so these are fatal to the process, never
// retried.
func (b *Boundary) SwitchToProcess(state *StoredState) (DecodedSyscall, ContextSwitchReason) {
	proc, ok := b.processes.Lookup(state.ProcessID)
	if !ok {
		return DecodedSyscall{}, Fault
	}

	var ret *wire.KernelReturn
	if !proc.WasStarted() {
		if err := proc.Start(b.transport.RXPath(), b.transport.TXPath()); err != nil {
			logging.Error("failed to start process", "process", proc.ID(), "error", err)
			return DecodedSyscall{}, Fault
		}
	} else if state.hasRet {
		ret = &state.SyscallRet
	}

	syscall, err := proc.Unyield(b.transport, ret)
	if err != nil {
		logging.Error("failed to resume process", "process", proc.ID(), "error", err)
		return DecodedSyscall{}, Fault
	}

	decoded := decodeSyscall(syscall)
	if decoded.Class == ClassAllow {
		decoded.AllowAddress = uintptr(proc.Allow(decoded.AllowAddress, int(decoded.AllowSize)))
	}

	return decoded, SyscallFired
}
