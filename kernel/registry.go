package kernel

import (
	"sync"
	"sync/atomic"

	"tockhost/hosterrors"
	"tockhost/process"
)

// Registry is the kernel's process table: every process, keyed by id,
// plus the shared "external work" counter the scheduler uses to decide
// whether there is anything left to run. It answers the original
// design's process-object-holds-a-reference-to-its-own-stored-state
// cycle by having callers look processes up by id instead of embedding a
// pointer each side must keep alive.
//
// The work counter is incremented and decremented from the scheduler
// thread today, but is kept atomic because the design explicitly leaves
// room for future non-scheduler callers (SPEC_FULL.md §4.6).
type Registry struct {
	mu        sync.RWMutex
	processes map[int]*Process

	externalWork atomic.Int64
}

// NewRegistry returns an empty process registry.
func NewRegistry() *Registry {
	return &Registry{processes: make(map[int]*Process)}
}

// CreateProcess builds a UnixProcess bound to execPath, wraps it as a
// scheduler-visible Process wired to this registry's work counter, and
// registers it under id. This mirrors the original design's
// EmulatedProcess::create, which both constructs the process and
// performs its initial work-counter bump in one step.
func (r *Registry) CreateProcess(execPath, name string, id int) (*Process, error) {
	unix := process.New(execPath, name, id)
	p := NewProcess(name, unix, func(delta int) {
		if delta > 0 {
			r.IncrementWorkExternal()
		} else {
			r.DecrementWorkExternal()
		}
	})

	if err := r.Register(id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Register adds a process to the table. It is an error to register two
// processes under the same id.
func (r *Registry) Register(id int, p *Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processes[id]; exists {
		return hosterrors.New(hosterrors.Custom, "register process", "duplicate process id")
	}
	r.processes[id] = p
	return nil
}

// Get returns the kernel-side Process wrapper for id.
func (r *Registry) Get(id int) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processes[id]
	return p, ok
}

// Lookup returns the unyield-protocol process object for id, satisfying
// boundary.ProcessLookup.
func (r *Registry) Lookup(id int) (*process.UnixProcess, bool) {
	p, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return p.Unix(), true
}

// All returns every registered process, in no particular order.
func (r *Registry) All() []*Process {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Process, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p)
	}
	return out
}

// IncrementWorkExternal reports that one more unit of work has been
// enqueued somewhere in the system.
func (r *Registry) IncrementWorkExternal() {
	r.externalWork.Add(1)
}

// DecrementWorkExternal reports that one unit of previously-enqueued
// work has completed.
func (r *Registry) DecrementWorkExternal() {
	r.externalWork.Add(-1)
}

// HasWork reports whether any external work is currently outstanding.
func (r *Registry) HasWork() bool {
	return r.externalWork.Load() > 0
}

// WorkCount returns the current external-work counter value, primarily
// for tests and diagnostics.
func (r *Registry) WorkCount() int64 {
	return r.externalWork.Load()
}
