// Package main implements the cargoscan CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cargoscan/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "cargoscan",
	Short: "Cargo project scanner and build driver",
	Long: `cargoscan keeps track of a Cargo project's binary targets and source tree,
and runs cargo builds with their compiler diagnostics parsed into structured form.`,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return cli.init(cmd) },
	PersistentPostRun: func(*cobra.Command, []string) { cli.close() },
}

// main registers subcommands and persistent flags and executes the root
// command. A failing command exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(excludeCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "extra config file merged over user and project config")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("cargo", "", "path to the cargo executable")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.Bool("no-cache", false, "do not read or write the project cache")
	flags.Bool("timings", false, "print stage timings after build and clean")

	flags.String("cpu-profile", "", "write a CPU profile to file")
	flags.String("mem-profile", "", "write a heap profile to file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to file")

	flags.String("trace", "", "write trace events to file (\"-\" for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
