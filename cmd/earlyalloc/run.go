package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/earlyalloc/internal/arena"
	"github.com/joshuapare/earlyalloc/internal/format"
	"github.com/joshuapare/earlyalloc/internal/logger"
	"github.com/joshuapare/earlyalloc/internal/plan"
	"github.com/joshuapare/earlyalloc/mem/boot"
)

var (
	runMmap bool
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().BoolVar(&runMmap, "mmap", false, "Back the region with real memory and verify allocations do not overlap")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Replay an allocation plan",
		Long: `The run command replays every step of a plan against a fresh early
allocator, checks each step's expected outcome, and hands the allocator off
at the end.

Example:
  earlyalloc run boot.yaml
  earlyalloc run boot.yaml --mmap
  earlyalloc run boot.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return runRun(ctx, args)
		},
	}
	return cmd
}

func runRun(ctx context.Context, args []string) error {
	planPath := args[0]

	printVerbose("Loading plan: %s\n", planPath)

	p, err := plan.Load(planPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	logger.Debug("plan loaded", "path", planPath, "steps", len(p.Steps), "align_mode", p.AlignMode)

	opts := plan.Options{Logger: logger.L}
	if runMmap {
		backing, err := arena.Map(int(p.Region.Size))
		if err != nil {
			return fmt.Errorf("failed to map backing memory: %w", err)
		}
		defer backing.Close()
		opts.Backing = backing
		printVerbose("Backing memory at %#x (%s)\n", backing.Base(), formatBytes(uint64(backing.Len())))
	}

	rep, runErr := plan.Run(ctx, p, opts)
	if rep == nil {
		return runErr
	}
	switch {
	case errors.Is(runErr, plan.ErrUnexpected):
		logger.Warn("plan diverged", "path", planPath, "steps_run", len(rep.Steps), "error", runErr)
	case runErr != nil:
		logger.Error("plan run failed", "path", planPath, "steps_run", len(rep.Steps), "error", runErr)
	default:
		logger.Info("plan completed", "path", planPath, "steps", len(rep.Steps), "verified", rep.Verified)
	}

	if jsonOut {
		if err := printJSON(rep); err != nil {
			return err
		}
		return runErr
	}

	printReport(planPath, p, rep)
	return runErr
}

func printReport(planPath string, p *plan.Plan, rep *plan.Report) {
	printInfo("\n%s\n", headerStyle.Render("Plan: "+planPath))
	printInfo("%s\n\n", strings.Repeat("=", 40))

	printInfo("Region: [%#x, %#x) page size %#x, %s alignment\n\n",
		uint64(p.Region.Start), uint64(p.Region.Start+p.Region.Size), uint64(pageSizeOf(p)), rep.AlignMode)

	printInfo("%s\n", headerStyle.Render("Steps:"))
	for _, s := range rep.Steps {
		name := s.Name
		if name == "" {
			name = s.Op
		}
		printInfo("  %3d  %-14s %-24s addr=%#-10x size=%-8s %s\n",
			s.Index, s.Op, name, s.Addr, formatNumber(s.Size), renderOutcome(s.Result))
	}
	printInfo("\n")

	printStats(rep.Stats)

	if rep.Handoff != nil {
		lines := []string{
			headerStyle.Render("Handoff"),
			fmt.Sprintf("Free gap: %s (%s)", rep.Handoff.Free, formatBytes(uint64(rep.Handoff.Free.Len))),
			fmt.Sprintf("Free pages: %s (%s pages)", rep.Handoff.FreePages,
				formatNumber(uint64(rep.Handoff.FreePages.Len/rep.Handoff.PageSize))),
		}
		for _, r := range rep.Handoff.Reserved {
			lines = append(lines, fmt.Sprintf("Reserved: %s", r))
		}
		printInfo("%s\n", handoffStyle.Render(strings.Join(lines, "\n")))
	}
	if rep.Verified {
		printInfo("\nBacking memory verified: no overlapping allocations\n")
	}
}

func printStats(s boot.Stats) {
	printInfo("%s\n", headerStyle.Render("Bytes:"))
	printInfo("  Total: %s (%s)\n", formatNumber(uint64(s.TotalBytes)), formatBytes(uint64(s.TotalBytes)))
	printInfo("  Used: %s\n", formatNumber(uint64(s.UsedBytes)))
	printInfo("  Available: %s\n\n", formatNumber(uint64(s.AvailableBytes)))
	printInfo("%s\n", headerStyle.Render("Pages:"))
	printInfo("  Total: %s\n", formatNumber(uint64(s.TotalPages)))
	printInfo("  Used: %s\n", formatNumber(uint64(s.UsedPages)))
	printInfo("  Available: %s\n\n", formatNumber(uint64(s.AvailablePages)))
}

func pageSizeOf(p *plan.Plan) plan.Addr {
	if p.Region.PageSize == 0 {
		return plan.Addr(format.DefaultPageSize)
	}
	return p.Region.PageSize
}
