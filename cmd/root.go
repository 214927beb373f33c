// Package cmd implements the emulator's command-line interface.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tockhost/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "tockhost",
	Short: "Host-based emulator for a Tock-style embedded kernel",
	Long: `tockhost runs a kernel process and one or more app processes as
separate OS processes, communicating over Unix-domain datagram sockets to
emulate the privilege boundary a real microcontroller enforces in
hardware.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM, so a run
// can tear down its spawned app processes on interrupt.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}
