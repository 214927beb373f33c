package tempenv

import (
	"os"
	"testing"
)

func TestNewCreatesDirAndDistinctPaths(t *testing.T) {
	env, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer env.Cleanup()

	if _, err := os.Stat(env.Dir()); err != nil {
		t.Fatalf("expected run directory to exist: %v", err)
	}

	if env.KernelRXPath(1) == env.KernelRXPath(2) {
		t.Fatalf("expected distinct rx paths per process id")
	}
	if env.KernelRXPath(1) == env.KernelTXPath(1) {
		t.Fatalf("expected distinct rx/tx paths for the same process")
	}
}

func TestCleanupRemovesDir(t *testing.T) {
	env, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := env.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(env.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected run directory to be removed")
	}
}
