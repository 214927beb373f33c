// Package systick implements the chip's wall-clock-backed systick timer:
// a single deadline relative to when it was last set, queried in
// microseconds.
package systick

import (
	"time"

	"tockhost/hosterrors"
)

// SysTick is a wall-clock systick. It is not safe for concurrent use: it
// holds no internal locks and relies on the scheduler thread's
// single-threaded access, as the original design likewise did.
type SysTick struct {
	startTime     time.Time
	setDurationUs uint32
	enabled       bool
}

// New returns a SysTick enabled from the moment of construction, with no
// deadline set.
func New() *SysTick {
	return &SysTick{
		startTime: time.Now(),
		enabled:   true,
	}
}

func (s *SysTick) elapsedUs() time.Duration {
	return time.Since(s.startTime)
}

// SetTimer arms the timer for us microseconds from now.
func (s *SysTick) SetTimer(us uint32) {
	s.startTime = time.Now()
	s.setDurationUs = us
}

// GreaterThan reports whether the timer is enabled and has at least us
// microseconds remaining.
func (s *SysTick) GreaterThan(us uint32) bool {
	if !s.enabled {
		return false
	}

	elapsed := s.elapsedUs().Microseconds()
	remaining := int64(s.setDurationUs) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining >= int64(us)
}

// Overflowed reports whether the armed duration has fully elapsed. A
// disabled timer is always considered overflowed.
func (s *SysTick) Overflowed() bool {
	if !s.enabled {
		return true
	}
	return s.elapsedUs().Microseconds() > int64(s.setDurationUs)
}

// Reset disables the timer and clears its armed duration.
func (s *SysTick) Reset() {
	s.enabled = false
	s.SetTimer(0)
}

// Enable re-arms the timer. withInterrupt is rejected: timer interrupts
// are not implemented by this emulator.
func (s *SysTick) Enable(withInterrupt bool) error {
	s.enabled = true
	if withInterrupt {
		return hosterrors.ErrTimerInterruptUnimplemented
	}
	return nil
}

// RemainingDeadline returns the time left on the armed duration, or nil
// if the timer is disabled or has already overflowed. The chip's Sleep
// passes nil on to WaitForInterrupt, which then only performs a
// non-blocking drain.
func (s *SysTick) RemainingDeadline() *time.Duration {
	if !s.enabled {
		return nil
	}

	elapsed := s.elapsedUs()
	total := time.Duration(s.setDurationUs) * time.Microsecond
	if elapsed >= total {
		return nil
	}

	remaining := total - elapsed
	return &remaining
}
