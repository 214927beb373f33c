package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tockhost/boundary"
	"tockhost/chip"
	"tockhost/interrupt"
	"tockhost/internal/tempenv"
	"tockhost/kernel"
	"tockhost/logging"
	"tockhost/transport"
)

var runApps []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the emulated kernel against one or more app binaries",
	Long: `run starts the emulated kernel, spawns the given app binaries as
child processes, and drives the scheduler loop until the process
terminates or the run is interrupted. At most one app is currently
exercised by the scheduler; additional paths are accepted for forward
compatibility and logged as ignored.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runApps, "apps", nil, "comma-delimited or repeatable list of app binary paths")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	if len(runApps) == 0 {
		return fmt.Errorf("no app binaries given: use --apps PATH[,PATH...]")
	}
	if len(runApps) > 1 {
		logging.Warn("multiple apps given; only the first is exercised", "ignored", strings.Join(runApps[1:], ","))
	}

	env, err := tempenv.New()
	if err != nil {
		return fmt.Errorf("create run environment: %w", err)
	}
	defer env.Cleanup()

	upper, lower, err := interrupt.NewChannel(env.ExtIRQPath())
	if err != nil {
		return fmt.Errorf("create interrupt channel: %w", err)
	}
	defer upper.Close()
	interrupt.Serve(upper)

	const processID = 0
	kernelRX := env.KernelRXPath(processID)
	kernelTX := env.KernelTXPath(processID)

	t, err := transport.Open(kernelRX, kernelTX)
	if err != nil {
		return fmt.Errorf("open syscall transport: %w", err)
	}
	defer t.Close()

	registry := kernel.NewRegistry()
	proc, err := registry.CreateProcess(runApps[0], "app", processID)
	if err != nil {
		return fmt.Errorf("create process: %w", err)
	}

	defer proc.Unix().Wait()

	b := boundary.New(t, registry)
	c := chip.New(b, lower)

	return schedulerLoop(ctx, c, registry, proc)
}

// schedulerLoop repeatedly switches to proc, applies the resulting
// syscall to its scheduler-visible state, and services any pending
// interrupts between quanta. It runs until ctx is cancelled or the
// process faults.
func schedulerLoop(ctx context.Context, c *chip.Chip, registry *kernel.Registry, proc *kernel.Process) error {
	state := &boundary.StoredState{ProcessID: proc.Unix().ID()}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		decoded, reason := c.UserspaceKernelBoundary().SwitchToProcess(state)
		if reason == boundary.Fault {
			proc.SetFaultState()
			logging.Error("process faulted", "process", proc.Name())
			return nil
		}

		proc.DebugSyscallCalled(uint64(decoded.Class))

		switch decoded.Class {
		case boundary.ClassYield:
			proc.SetYieldedState()
			state.SetSyscallReturnValue(0)
		case boundary.ClassAllow:
			slice := proc.Allow(decoded.AllowAddress, decoded.AllowSize)
			logging.Debug("allow registered", "process", proc.Name(), "len", len(slice.Bytes()))
			state.SetSyscallReturnValue(0)
		default:
			state.SetSyscallReturnValue(0)
		}

		c.ServicePendingInterrupts()

		if !registry.HasWork() && !c.HasPendingInterrupts() {
			c.Sleep()
		}
	}
}
