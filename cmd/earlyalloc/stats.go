package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/earlyalloc/internal/format"
	"github.com/joshuapare/earlyalloc/internal/logger"
	"github.com/joshuapare/earlyalloc/mem/alloc"
	"github.com/joshuapare/earlyalloc/mem/boot"
)

var (
	statsStart    string
	statsSize     string
	statsPageSize string
	statsPages    string
	statsBytes    string
)

func init() {
	cmd := newStatsCmd()
	cmd.Flags().StringVar(&statsStart, "start", "0x1000", "First address of the region")
	cmd.Flags().StringVar(&statsSize, "size", "0x4000", "Size of the region in bytes")
	cmd.Flags().StringVar(&statsPageSize, "page-size", fmt.Sprintf("%#x", format.DefaultPageSize), "Page size in bytes")
	cmd.Flags().StringVar(&statsBytes, "bytes", "0", "Bytes to allocate (8-byte aligned) before reporting")
	cmd.Flags().StringVar(&statsPages, "pages", "0", "Pages to allocate before reporting")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show allocator statistics for a region",
		Long: `The stats command initializes an early allocator over a region,
optionally allocates bytes and pages from it, and prints the resulting byte
and page statistics.

Example:
  earlyalloc stats --start 0x100000 --size 0x400000
  earlyalloc stats --size 0x4000 --bytes 16 --pages 1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
	return cmd
}

func runStats() error {
	var (
		vals  [5]uintptr
		names = [5]string{"start", "size", "page-size", "bytes", "pages"}
		raw   = [5]string{statsStart, statsSize, statsPageSize, statsBytes, statsPages}
	)
	for i := range vals {
		v, err := parseAddr(names[i], raw[i])
		if err != nil {
			return err
		}
		vals[i] = v
	}
	start, size, pageSize, nBytes, nPages := vals[0], vals[1], vals[2], vals[3], vals[4]

	b, err := boot.New(boot.Options{Start: start, Size: size, PageSize: pageSize, Logger: logger.L})
	if err != nil {
		return err
	}
	// A zero --page-size selects the default.
	pageSize = b.Early().PageSize()

	if nBytes > 0 {
		if _, err := b.Alloc(alloc.Layout{Size: nBytes, Align: 8}); err != nil {
			return fmt.Errorf("allocate %d bytes: %w", nBytes, err)
		}
	}
	if nPages > 0 {
		if _, err := b.AllocPages(nPages, pageSize); err != nil {
			return fmt.Errorf("allocate %d pages: %w", nPages, err)
		}
	}

	stats := b.Stats()
	if jsonOut {
		return printJSON(stats)
	}

	printInfo("\nRegion: [%#x, %#x) page size %#x\n\n", start, start+size, pageSize)
	printStats(stats)
	return nil
}
