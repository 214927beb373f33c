package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"tockhost/hosterrors"
	"tockhost/transport"
	"tockhost/wire"
)

// TestMain lets this test binary double as the "app" side of an
// end-to-end scenario: when invoked with the sentinel environment
// variable set, it runs as a standalone helper process instead of the
// test suite, matching the os/exec package's own re-exec test idiom.
func TestMain(m *testing.M) {
	if os.Getenv("TOCKHOST_TEST_HELPER_PROCESS") == "1" {
		runHelperProcess()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runHelperProcess connects to the kernel-chosen sockets, performs a
// single syscall round trip, and exits. It stands in for a real app
// binary in process_test.go's end-to-end scenarios.
func runHelperProcess() {
	rx := os.Getenv("TOCKHOST_TEST_SOCKET_RECV")
	tx := os.Getenv("TOCKHOST_TEST_SOCKET_SEND")
	if rx == "" || tx == "" {
		fmt.Fprintln(os.Stderr, "helper process: missing socket env")
		os.Exit(1)
	}

	t, err := transport.Open(rx, tx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper process: open transport:", err)
		os.Exit(1)
	}
	defer t.Close()

	if err := t.TxConnectIfNeeded(); err != nil {
		fmt.Fprintln(os.Stderr, "helper process: connect:", err)
		os.Exit(1)
	}

	s := wire.Syscall{Number: 99, Args: [wire.NumArgs]uint64{1, 2, 3, 4}}
	if err := t.Send(0, s); err != nil {
		fmt.Fprintln(os.Stderr, "helper process: send:", err)
		os.Exit(1)
	}

	// The kernel is authoritative over allow regions: even with none
	// allowed, it still ships the terminating null preamble after
	// reading our syscall. Drain it so our socket stays open for the
	// kernel's write.
	buf := make([]byte, wire.AllowedRegionPreambleSize)
	if err := t.RecvBytes(buf); err != nil {
		fmt.Fprintln(os.Stderr, "helper process: recv preamble:", err)
		os.Exit(1)
	}
}

func TestAllowWithNullAddressPassesThrough(t *testing.T) {
	p := New("/bin/true", "nullcheck", 1)
	if got := p.Allow(0, 16); got != 0 {
		t.Fatalf("Allow(0, ...) = %d, want 0", got)
	}
}

func TestAllowRegistersBufferOnce(t *testing.T) {
	p := New("/bin/true", "allowcheck", 1)

	addr := uintptr(0x1000)
	p.Allow(addr, 8)
	p.Allow(addr, 16)

	if len(p.allowOrder) != 1 {
		t.Fatalf("allowOrder length = %d, want 1 (re-allow at same address should not duplicate)", len(p.allowOrder))
	}
	if got := len(p.allowMap[addr].data); got != 16 {
		t.Fatalf("buffer length = %d, want 16 (last Allow wins)", got)
	}
	if p.allowMap[addr].valid {
		t.Fatalf("freshly allowed buffer should not be valid until received from the app")
	}
}

func TestUnyieldEndToEndWithHelperProcess(t *testing.T) {
	dir := t.TempDir()
	kernelRX := filepath.Join(dir, "kernel_rx")
	kernelTX := filepath.Join(dir, "kernel_tx")

	kernelSide, err := transport.Open(kernelRX, kernelTX)
	if err != nil {
		t.Fatalf("open kernel transport: %v", err)
	}
	defer kernelSide.Close()

	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	cmd := exec.Command(self, "-test.run=TestMain")
	cmd.Env = append(os.Environ(),
		"TOCKHOST_TEST_HELPER_PROCESS=1",
		"TOCKHOST_TEST_SOCKET_RECV="+kernelTX,
		"TOCKHOST_TEST_SOCKET_SEND="+kernelRX,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	defer cmd.Wait()

	p := New(self, "helper", 7)
	p.wasStarted = true
	p.cmd = cmd

	syscall, err := p.Unyield(kernelSide, nil)
	if err != nil {
		t.Fatalf("Unyield: %v", err)
	}
	if syscall.Number != 99 {
		t.Fatalf("syscall.Number = %d, want 99", syscall.Number)
	}
}

func TestWaitBeforeStartIsProcessNotStarted(t *testing.T) {
	p := New("/bin/true", "unstarted", 1)
	err := p.Wait()
	if !hosterrors.Is(err, hosterrors.ErrProcessNotStarted) {
		t.Fatalf("expected ErrProcessNotStarted, got %v", err)
	}
}
