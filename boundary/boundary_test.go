package boundary

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"tockhost/process"
	"tockhost/transport"
	"tockhost/wire"
)

// singleProcessRegistry resolves every lookup to one preconfigured
// process, standing in for the kernel's process registry in these tests.
type singleProcessRegistry struct {
	proc *process.UnixProcess
}

func (r *singleProcessRegistry) Lookup(id int) (*process.UnixProcess, bool) {
	if r.proc == nil || id != r.proc.ID() {
		return nil, false
	}
	return r.proc, true
}

func TestSwitchToProcessRewritesAllowAddress(t *testing.T) {
	dir := t.TempDir()
	kernelRX := filepath.Join(dir, "kernel_rx")
	kernelTX := filepath.Join(dir, "kernel_tx")

	kernelSide, err := transport.Open(kernelRX, kernelTX)
	if err != nil {
		t.Fatalf("open kernel transport: %v", err)
	}
	defer kernelSide.Close()

	appSide, err := transport.Open(kernelTX, kernelRX)
	if err != nil {
		t.Fatalf("open app transport: %v", err)
	}
	defer appSide.Close()
	if err := appSide.TxConnectIfNeeded(); err != nil {
		t.Fatalf("app connect: %v", err)
	}

	proc := process.New("/bin/true", "allow-rewrite", 3)
	registry := &singleProcessRegistry{proc: proc}
	b := New(kernelSide, registry)

	// Drive the app side manually: send an ALLOW syscall, matching what a
	// real app would emit. With no region allowed yet, the inbound
	// allow-region exchange is only the null preamble the kernel sends.
	go func() {
		allow := wire.Syscall{
			Number: uint64(ClassAllow),
			Args:   [wire.NumArgs]uint64{2, 0, 0xDEADBEEF, 16},
		}
		appSide.Send(0, allow)
	}()

	state := &StoredState{ProcessID: 3}
	// Process has never been started; Start execs /bin/true, which
	// succeeds immediately, then Unyield proceeds with no prior return.
	decoded, reason := b.SwitchToProcess(state)
	if reason != SyscallFired {
		t.Fatalf("expected SyscallFired, got %v", reason)
	}
	if decoded.Class != ClassAllow {
		t.Fatalf("expected ClassAllow, got %v", decoded.Class)
	}
	if decoded.AllowAddress == 0xDEADBEEF {
		t.Fatalf("AllowAddress was not rewritten from the app address")
	}
}

func TestSwitchToProcessDispatchesCallback(t *testing.T) {
	dir := t.TempDir()
	kernelRX := filepath.Join(dir, "kernel_rx")
	kernelTX := filepath.Join(dir, "kernel_tx")

	kernelSide, err := transport.Open(kernelRX, kernelTX)
	if err != nil {
		t.Fatalf("open kernel transport: %v", err)
	}
	defer kernelSide.Close()

	appSide, err := transport.Open(kernelTX, kernelRX)
	if err != nil {
		t.Fatalf("open app transport: %v", err)
	}
	defer appSide.Close()
	if err := appSide.TxConnectIfNeeded(); err != nil {
		t.Fatalf("app connect: %v", err)
	}

	proc := process.New("/bin/true", "already-started", 4)
	// Start the process up front (/bin/true, which exits at once) so
	// SwitchToProcess takes the already-started path and ships the
	// stashed callback instead of starting the process; the app side
	// below reads that KernelReturn frame before sending its own syscall.
	if err := proc.Start(kernelRX, kernelTX); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer proc.Wait()

	registry := &singleProcessRegistry{proc: proc}
	b := New(kernelSide, registry)

	go func() {
		// The callback's KernelReturn precedes this: drain it before
		// sending our own syscall so the exchange stays in lockstep.
		buf := make([]byte, wire.KernelReturnSize)
		appSide.RecvBytes(buf)

		preamble := make([]byte, wire.AllowedRegionPreambleSize)
		appSide.RecvBytes(preamble)

		command := wire.Syscall{
			Number: uint64(ClassCommand),
			Args:   [wire.NumArgs]uint64{9, 0, 0, 0},
		}
		appSide.Send(0, command)
	}()

	state := &StoredState{ProcessID: 4}
	state.SetProcessFunction(wire.Callback{PC: 0x2000, Args: [wire.NumArgs]uint64{1, 2, 3, 4}})

	decoded, reason := b.SwitchToProcess(state)
	if reason != SyscallFired {
		t.Fatalf("expected SyscallFired, got %v", reason)
	}
	if decoded.Class != ClassCommand {
		t.Fatalf("expected ClassCommand, got %v", decoded.Class)
	}
}

func TestSwitchToProcessFaultsOnShortFrame(t *testing.T) {
	dir := t.TempDir()
	kernelRX := filepath.Join(dir, "kernel_rx")
	kernelTX := filepath.Join(dir, "kernel_tx")

	kernelSide, err := transport.Open(kernelRX, kernelTX)
	if err != nil {
		t.Fatalf("open kernel transport: %v", err)
	}
	defer kernelSide.Close()

	proc := process.New("/bin/true", "short-frame", 5)
	if err := proc.Start(kernelRX, kernelTX); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer proc.Wait()

	registry := &singleProcessRegistry{proc: proc}
	b := New(kernelSide, registry)

	// Send a datagram shorter than sizeof(Syscall) directly on the rx
	// socket kernelSide is bound to, bypassing the KernelReturn leg
	// entirely since state has no stashed return yet.
	go func() {
		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
		if err != nil {
			return
		}
		defer unix.Close(fd)
		if err := unix.Connect(fd, &unix.SockaddrUnix{Name: kernelRX}); err != nil {
			return
		}
		unix.Write(fd, []byte{1, 2, 3})
	}()

	state := &StoredState{ProcessID: 5}
	_, reason := b.SwitchToProcess(state)
	if reason != Fault {
		t.Fatalf("expected Fault on short frame, got %v", reason)
	}
}
