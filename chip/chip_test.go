package chip

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"tockhost/boundary"
	"tockhost/interrupt"
	"tockhost/wire"
)

func sendInterrupt(t *testing.T, path string, source uint32) {
	t.Helper()

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(fd)

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	frame := wire.Interrupt{Source: source}
	if _, err := unix.Write(fd, frame.Encode()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSleepWakesOnInterruptBeforeDeadline(t *testing.T) {
	dir := t.TempDir()
	irqPath := filepath.Join(dir, "irq")

	upper, lower, err := interrupt.NewChannel(irqPath)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer upper.Close()
	interrupt.Serve(upper)

	c := New(&boundary.Boundary{}, lower)

	c.Systick().SetTimer(10_000) // 10ms

	go func() {
		time.Sleep(3 * time.Millisecond)
		sendInterrupt(t, irqPath, 7)
	}()

	start := time.Now()
	c.Sleep()
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Fatalf("Sleep took %v, expected to wake promptly on interrupt", elapsed)
	}
	if !c.HasPendingInterrupts() {
		t.Fatalf("expected a pending interrupt after wake")
	}
}

func TestServicePendingInterruptsDispatchesToHandler(t *testing.T) {
	dir := t.TempDir()
	irqPath := filepath.Join(dir, "irq")

	upper, lower, err := interrupt.NewChannel(irqPath)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer upper.Close()
	interrupt.Serve(upper)

	c := New(&boundary.Boundary{}, lower)

	var dispatched []uint32
	c.RegisterInterruptHandler(7, func(source uint32) {
		dispatched = append(dispatched, source)
	})

	sendInterrupt(t, irqPath, 7)

	deadline := 500 * time.Millisecond
	for i := 0; i < 20 && !c.HasPendingInterrupts() && len(dispatched) == 0; i++ {
		time.Sleep(deadline / 20)
	}

	c.ServicePendingInterrupts()

	if len(dispatched) != 1 || dispatched[0] != 7 {
		t.Fatalf("dispatched = %v, want [7]", dispatched)
	}
}

func TestAtomicPanicsOnReentrance(t *testing.T) {
	dir := t.TempDir()
	irqPath := filepath.Join(dir, "irq")

	upper, lower, err := interrupt.NewChannel(irqPath)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	defer upper.Close()

	c := New(&boundary.Boundary{}, lower)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic on nested Atomic call")
		}
	}()

	c.Atomic(func() {
		c.Atomic(func() {})
	})
}
