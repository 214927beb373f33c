package hosterrors

import "errors"

// Sentinel errors for conditions that do not need Kind classification.
var (
	// ErrProcessNotStarted is returned when an operation requires a
	// started child process but none has been spawned yet.
	ErrProcessNotStarted = errors.New("process has not been started")

	// ErrProcessAlreadyStarted reports a process that has already spawned
	// its child. UnixProcess.Start does not return it: a repeated Start is
	// a no-op.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrNoChip is returned when a scheduler operation is attempted
	// before a chip has been installed.
	ErrNoChip = errors.New("no chip installed")

	// ErrUnknownProcess reports a process id with no entry in the registry.
	// Registry.Get and Registry.Lookup signal that case with a false
	// result, not this error.
	ErrUnknownProcess = errors.New("unknown process id")

	// ErrNotActive reports a task offered to a process in a terminal
	// state. Process.EnqueueTask signals that case with a false result,
	// not this error.
	ErrNotActive = errors.New("process is not active")

	// ErrGrantIndex reports a grant index out of range. Process.GrantPointer
	// signals a missing grant with a false result, not this error.
	ErrGrantIndex = errors.New("grant index out of range")

	// ErrTimerInterruptUnimplemented is returned by SysTick.Enable when
	// asked for an interrupt-driven timer.
	ErrTimerInterruptUnimplemented = errors.New("timer interrupts not implemented")
)
