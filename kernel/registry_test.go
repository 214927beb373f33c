package kernel

import "testing"

func TestRegisterRejectsDuplicateID(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.CreateProcess("/bin/true", "a", 1); err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	if _, err := registry.CreateProcess("/bin/true", "b", 1); err == nil {
		t.Fatalf("expected error registering duplicate id")
	}
}

func TestLookupResolvesUnderlyingUnixProcess(t *testing.T) {
	registry := NewRegistry()
	p, err := registry.CreateProcess("/bin/true", "a", 9)
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}

	unix, ok := registry.Lookup(9)
	if !ok {
		t.Fatalf("expected Lookup(9) to succeed")
	}
	if unix != p.Unix() {
		t.Fatalf("Lookup returned a different UnixProcess than the registered one")
	}

	if _, ok := registry.Lookup(404); ok {
		t.Fatalf("expected Lookup of unknown id to fail")
	}
}

func TestWorkCounterBalancesAcrossEnqueueDequeue(t *testing.T) {
	registry := NewRegistry()
	p, err := registry.CreateProcess("/bin/true", "work", 1)
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	p.DequeueTask() // drain bootstrap task, counter back to 0

	for i := 0; i < 5; i++ {
		p.EnqueueTask(FunctionCall{})
	}
	if got := registry.WorkCount(); got != 5 {
		t.Fatalf("WorkCount = %d, want 5", got)
	}

	for i := 0; i < 5; i++ {
		if _, ok := p.DequeueTask(); !ok {
			t.Fatalf("expected task %d to be present", i)
		}
	}
	if got := registry.WorkCount(); got != 0 {
		t.Fatalf("WorkCount = %d, want 0 after draining", got)
	}
	if registry.HasWork() {
		t.Fatalf("expected HasWork to be false with zero outstanding work")
	}
}
