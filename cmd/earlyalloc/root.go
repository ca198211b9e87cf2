package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/earlyalloc/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
	logFile  string
)

// closeLog releases the log file opened by initLogging.
var closeLog = func() error { return nil }

// numbers groups digits in human-readable output.
var numbers = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "earlyalloc",
	Short: "Replay and inspect early-boot allocation sequences",
	Long: `earlyalloc drives the early-boot memory allocator outside of a kernel.
It replays allocation plans written in YAML, checks their expected outcomes,
and reports the byte and page statistics and the handoff state that the real
allocators would receive.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogging()
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log allocator events to stderr at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().
		StringVar(&logFile, "log-file", "", "Append allocator events to this file instead of stderr")
}

func execute() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	if cerr := closeLogging(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging enables the allocator log when --log-level or --log-file is
// given, or at info level with --verbose. Records are JSON lines with --json.
func initLogging() error {
	opts := logger.Options{Writer: os.Stderr, JSON: jsonOut, LogFile: logFile}
	switch {
	case logLevel != "":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
		opts.Enabled, opts.Level = true, lvl
	case verbose, logFile != "":
		opts.Enabled, opts.Level = true, slog.LevelInfo
	}
	closer, err := logger.Init(opts)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	closeLog = closer
	return nil
}

// closeLogging closes the log file, if any, and reverts to discarding. Safe
// to call more than once.
func closeLogging() error {
	closer := closeLog
	closeLog = func() error { return nil }
	logger.L = logger.Discard()
	return closer()
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// parseAddr parses an address flag in any Go integer base (0x1000, 4096, 0o10000).
func parseAddr(name, s string) (uintptr, error) {
	n, err := strconv.ParseUint(s, 0, strconv.IntSize)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return uintptr(n), nil
}

func formatNumber(n uint64) string {
	return numbers.Sprintf("%d", n)
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
