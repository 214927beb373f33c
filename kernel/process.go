// Package kernel adapts one app's unyield-protocol process object (see
// package process) to the scheduler-visible contract the rest of the
// kernel expects: a task queue, a state machine, a grant region, debug
// counters, and allow-slice construction.
package kernel

import (
	"unsafe"

	"tockhost/process"
	"tockhost/wire"
)

// State is one process's position in the scheduler's state machine.
type State int

const (
	Unstarted State = iota
	Running
	Yielded
	StoppedRunning
	StoppedYielded
	Fault
	StoppedFaulted
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "Unstarted"
	case Running:
		return "Running"
	case Yielded:
		return "Yielded"
	case StoppedRunning:
		return "StoppedRunning"
	case StoppedYielded:
		return "StoppedYielded"
	case Fault:
		return "Fault"
	case StoppedFaulted:
		return "StoppedFaulted"
	default:
		return "Unknown"
	}
}

// TaskSource distinguishes a kernel-originated task from one raised by a
// specific driver's callback id, which matters when filtering pending
// callbacks for a specific driver.
type TaskSource struct {
	FromKernel bool
	DriverID   uint32
}

// FunctionCall is one pending task: a callback entrypoint plus its
// arguments, and the driver (or kernel) that raised it.
type FunctionCall struct {
	Source TaskSource
	PC     uint64
	Args   [wire.NumArgs]uint64
}

// ProcessDebug tracks monotonically increasing diagnostic counters for
// one process.
type ProcessDebug struct {
	TimesliceExpirationCount int
	DroppedCallbackCount     int
	SyscallCount             int
	LastSyscallNumber        uint64
	HasLastSyscall           bool
}

// Process wraps a process.UnixProcess as a scheduler-visible process:
// task queue, state machine, grant region, and debug counters.
type Process struct {
	name  string
	unix  *process.UnixProcess
	state State

	tasks []FunctionCall

	grantIndex    int
	hasGrant      bool
	restartCount  int
	debug         ProcessDebug
	onWorkChanged func(delta int)
}

// NewProcess wraps unix as a scheduler-visible process, enqueuing the
// special "exec the process" bootstrap task (pc=0) and reporting one unit
// of work via onWorkChanged.
func NewProcess(name string, unix *process.UnixProcess, onWorkChanged func(delta int)) *Process {
	p := &Process{
		name:          name,
		unix:          unix,
		state:         Unstarted,
		onWorkChanged: onWorkChanged,
	}

	p.tasks = append(p.tasks, FunctionCall{Source: TaskSource{FromKernel: true}})
	p.reportWork(1)

	return p
}

// Unix returns the underlying unyield-protocol process object.
func (p *Process) Unix() *process.UnixProcess { return p.unix }

// Name returns the process's display name.
func (p *Process) Name() string { return p.name }

// State returns the process's current scheduler state.
func (p *Process) State() State { return p.state }

func (p *Process) reportWork(delta int) {
	if p.onWorkChanged != nil {
		p.onWorkChanged(delta)
	}
}

// isActive reports whether the process can still accept enqueued tasks:
// anything other than Fault or StoppedFaulted.
func (p *Process) isActive() bool {
	return p.state != Fault && p.state != StoppedFaulted
}

// EnqueueTask appends a task to the FIFO and reports one unit of work,
// unless the process is no longer active, in which case the task is
// dropped and the dropped-callback counter is bumped.
func (p *Process) EnqueueTask(task FunctionCall) bool {
	if !p.isActive() {
		p.debug.DroppedCallbackCount++
		return false
	}

	p.tasks = append(p.tasks, task)
	p.reportWork(1)
	return true
}

// DequeueTask pops the oldest pending task, reporting one unit of
// completed work, or reports ok=false if the queue is empty.
func (p *Process) DequeueTask() (FunctionCall, bool) {
	if len(p.tasks) == 0 {
		return FunctionCall{}, false
	}

	task := p.tasks[0]
	p.tasks = p.tasks[1:]
	p.reportWork(-1)
	return task, true
}

// RemovePendingCallbacks filters the task queue, retaining kernel-
// originated tasks and driver-originated tasks raised by a different
// driver id.
func (p *Process) RemovePendingCallbacks(driverID uint32) {
	kept := p.tasks[:0]
	for _, task := range p.tasks {
		if task.Source.FromKernel || task.Source.DriverID != driverID {
			kept = append(kept, task)
		}
	}
	p.tasks = kept
}

// SetYieldedState transitions Running -> Yielded, reporting one unit of
// completed work. Any other state is left unchanged.
func (p *Process) SetYieldedState() {
	if p.state == Running {
		p.state = Yielded
		p.reportWork(-1)
	}
}

// Stop transitions Running -> StoppedRunning or Yielded -> StoppedYielded.
func (p *Process) Stop() {
	switch p.state {
	case Running:
		p.state = StoppedRunning
	case Yielded:
		p.state = StoppedYielded
	}
}

// Resume reverses Stop.
func (p *Process) Resume() {
	switch p.state {
	case StoppedRunning:
		p.state = Running
	case StoppedYielded:
		p.state = Yielded
	}
}

// SetFaultState transitions the process to Fault, its terminal error
// state. Once faulted a process accepts no more tasks.
func (p *Process) SetFaultState() {
	p.state = Fault
}

// SetProcessFunction records that the scheduler is dispatching a
// callback, incrementing work and transitioning to Running.
func (p *Process) SetProcessFunction() {
	p.reportWork(1)
	p.state = Running
}

// RestartCount returns how many times this process has restarted.
func (p *Process) RestartCount() int { return p.restartCount }

// GrantPointer returns the process's single grant-region arena index,
// substituting for the raw pointer cell the original design stored: an
// index is always valid to copy and compare, where a pointer value
// would need unsafe reinterpretation to move across this boundary.
func (p *Process) GrantPointer() (int, bool) {
	if !p.isActive() || !p.hasGrant {
		return 0, false
	}
	return p.grantIndex, true
}

// SetGrantPointer records the process's grant-region arena index.
func (p *Process) SetGrantPointer(index int) {
	p.grantIndex = index
	p.hasGrant = true
}

// DebugCounters returns a copy of the process's diagnostic counters.
func (p *Process) DebugCounters() ProcessDebug { return p.debug }

// DebugSyscallCalled records that a syscall of the given number just
// completed, for diagnostics.
func (p *Process) DebugSyscallCalled(number uint64) {
	p.debug.SyscallCount++
	p.debug.LastSyscallNumber = number
	p.debug.HasLastSyscall = true
}

// DebugTimesliceExpired bumps the timeslice-expiration counter.
func (p *Process) DebugTimesliceExpired() {
	p.debug.TimesliceExpirationCount++
}

// AllowSlice is the scheduler-visible view of an allowed buffer: a
// length-bounded window into the kernel pointer C4's process.Allow
// already translated, handed to driver code in place of a raw pointer.
type AllowSlice struct {
	ptr uintptr
	len int
}

// Bytes reinterprets the slice's kernel pointer as a []byte of its
// allowed length. It returns nil for a null or zero-length allow.
func (s AllowSlice) Bytes() []byte {
	if s.ptr == 0 || s.len == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(s.ptr)), s.len)
}

// Allow builds the scheduler-visible shared-slice wrapper around addr,
// a kernel pointer already translated by C4's process.Allow, and size.
// It performs no further translation of its own.
func (p *Process) Allow(addr uintptr, size uint64) AllowSlice {
	return AllowSlice{ptr: addr, len: int(size)}
}
