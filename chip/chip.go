// Package chip bundles the emulator's systick, userspace-kernel
// boundary, and interrupt lower half behind the scheduler's Chip
// contract: the object the scheduler loop polls between running
// processes.
package chip

import (
	"tockhost/boundary"
	"tockhost/interrupt"
	"tockhost/logging"
	"tockhost/systick"
)

// InterruptHandler handles one dispatched interrupt. The original design
// left interrupt dispatch as a no-op hook; this type gives callers a
// concrete place to plug one in instead of leaving it silently
// unimplemented.
type InterruptHandler func(source uint32)

// Chip is the host emulator's Chip implementation: a systick, a
// userspace-kernel boundary driver, and the consumer side of the
// interrupt channel.
type Chip struct {
	systick  *systick.SysTick
	boundary *boundary.Boundary
	irqLower *interrupt.LowerHalf

	handlers map[uint32]InterruptHandler
	inAtomic bool
}

// New bundles a systick, boundary driver, and interrupt lower half into
// one Chip.
func New(b *boundary.Boundary, irqLower *interrupt.LowerHalf) *Chip {
	return &Chip{
		systick:  systick.New(),
		boundary: b,
		irqLower: irqLower,
		handlers: make(map[uint32]InterruptHandler),
	}
}

// Mpu is a no-op: this host emulator has no memory protection unit to
// configure, but the Chip contract reserves a slot for one.
func (c *Chip) Mpu() {}

// Systick returns the chip's systick timer.
func (c *Chip) Systick() *systick.SysTick { return c.systick }

// UserspaceKernelBoundary returns the chip's boundary driver.
func (c *Chip) UserspaceKernelBoundary() *boundary.Boundary { return c.boundary }

// RegisterInterruptHandler binds a handler for a specific interrupt
// source. Dispatching an interrupt with no registered handler logs and
// drops it rather than panicking, since a missing handler is a
// configuration gap, not a protocol violation.
func (c *Chip) RegisterInterruptHandler(source uint32, handler InterruptHandler) {
	c.handlers[source] = handler
}

// ServicePendingInterrupts drains every currently pending interrupt and
// dispatches each to its registered handler, if any. It does nothing while
// an Atomic call is running.
func (c *Chip) ServicePendingInterrupts() {
	if c.inAtomic {
		return
	}
	for {
		in, ok := c.irqLower.Next()
		if !ok {
			return
		}
		c.dispatchInterrupt(in.Source)
	}
}

func (c *Chip) dispatchInterrupt(source uint32) {
	handler, ok := c.handlers[source]
	if !ok {
		logging.Warn("no handler registered for interrupt", "source", source)
		return
	}
	handler(source)
}

// HasPendingInterrupts delegates to the interrupt lower half.
func (c *Chip) HasPendingInterrupts() bool {
	return c.irqLower.HasPendingInterrupts()
}

// Sleep blocks until the systick deadline elapses or an interrupt
// arrives, whichever comes first. If the systick is disabled or already
// overflowed, it returns without blocking.
func (c *Chip) Sleep() {
	deadline := c.systick.RemainingDeadline()
	c.irqLower.WaitForInterrupt(deadline)
}

// Atomic runs f with a re-entrance guard: nested Atomic calls from
// within f panic rather than silently nesting, since this chip has no
// real interrupt-masking primitive to fall back on. While f runs,
// ServicePendingInterrupts returns without dispatching.
func (c *Chip) Atomic(f func()) {
	if c.inAtomic {
		panic("chip: nested Atomic call")
	}
	c.inAtomic = true
	defer func() { c.inAtomic = false }()
	f()
}
