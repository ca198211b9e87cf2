// Package boot owns the early allocator for the duration of early boot and
// hands the remaining memory to the real allocators.
//
// There is no package-level allocator. The bootstrap routine holds a
// *Bootstrap, allocates through it while the kernel comes up, and finally
// calls Handoff with the constructor of the real byte and page allocators.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/earlyalloc/internal/format"
	"github.com/joshuapare/earlyalloc/internal/logger"
	"github.com/joshuapare/earlyalloc/mem/alloc"
	"github.com/joshuapare/earlyalloc/mem/reserve"
)

// ErrHandedOff indicates the early stage is over.
var ErrHandedOff = errors.New("boot: early allocator already handed off")

// Options configures a Bootstrap.
type Options struct {
	Start    uintptr // First address of the early region
	Size     uintptr // Size of the early region in bytes
	PageSize uintptr // Default: format.DefaultPageSize

	AlignMode alloc.PageAlignMode
	Logger    *slog.Logger // Default: discard
}

// Stats is a snapshot of both allocator disciplines.
type Stats struct {
	TotalBytes     uintptr `json:"total_bytes"`
	UsedBytes      uintptr `json:"used_bytes"`
	AvailableBytes uintptr `json:"available_bytes"`
	TotalPages     uintptr `json:"total_pages"`
	UsedPages      uintptr `json:"used_pages"`
	AvailablePages uintptr `json:"available_pages"`
}

// StatsOf reads the statistics of a.
func StatsOf(a alloc.DualAllocator) Stats {
	return Stats{
		TotalBytes:     a.TotalBytes(),
		UsedBytes:      a.UsedBytes(),
		AvailableBytes: a.AvailableBytes(),
		TotalPages:     a.TotalPages(),
		UsedPages:      a.UsedPages(),
		AvailablePages: a.AvailablePages(),
	}
}

// Handoff describes the state of the early region when the real allocators
// take over.
//
// Free and FreePages describe the same gap for two consumers. Free is exact
// and is meant for the real byte allocator; its first and last page may be
// shared with early allocations. FreePages is Free shrunk to whole pages and
// never intersects Reserved, so the page-frame allocator can take it as is.
type Handoff struct {
	PageSize uintptr `json:"page_size"`

	// Region is the whole early region.
	Region reserve.Range `json:"region"`

	// Free is the exact gap between the byte and page zones.
	Free reserve.Range `json:"free"`

	// FreePages is the page-aligned part of Free.
	FreePages reserve.Range `json:"free_pages"`

	// Reserved lists the page-aligned ranges still in use by early
	// allocations. The page-frame allocator must never hand them out.
	Reserved []reserve.Range `json:"reserved"`

	Stats Stats `json:"stats"`
}

// Bootstrap holds the early allocator and its reservation tracker.
//
// NOT thread-safe, like the allocator it owns.
type Bootstrap struct {
	early     *alloc.EarlyAllocator
	res       *reserve.Tracker
	log       *slog.Logger
	handedOff bool
}

// New validates opts and initializes an early allocator over
// [opts.Start, opts.Start+opts.Size).
func New(opts Options) (*Bootstrap, error) {
	if opts.PageSize == 0 {
		opts.PageSize = format.DefaultPageSize
	}
	if !format.IsPowerOfTwo(opts.PageSize) {
		return nil, fmt.Errorf("boot: page size %#x: %w", opts.PageSize, alloc.ErrInvalidParam)
	}
	if opts.Size == 0 {
		return nil, fmt.Errorf("boot: empty region: %w", alloc.ErrInvalidParam)
	}
	if format.AddOverflows(opts.Start, opts.Size) {
		return nil, fmt.Errorf("boot: region %#x+%#x overflows: %w", opts.Start, opts.Size, alloc.ErrInvalidParam)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	res := reserve.NewTracker(opts.PageSize)
	early := alloc.NewEarly(opts.PageSize, res, &alloc.Config{AlignMode: opts.AlignMode})
	early.Init(opts.Start, opts.Size)

	opts.Logger.Info("early allocator ready",
		"start", hex(opts.Start),
		"end", hex(opts.Start+opts.Size),
		"page_size", hex(opts.PageSize),
		"align_mode", opts.AlignMode.String())

	return &Bootstrap{early: early, res: res, log: opts.Logger}, nil
}

// Early returns the owned allocator, for inspection. Allocate through
// Bootstrap so that allocations stop at handoff.
func (b *Bootstrap) Early() *alloc.EarlyAllocator { return b.early }

// Reservations returns the tracker fed by the early allocator.
func (b *Bootstrap) Reservations() *reserve.Tracker { return b.res }

// HandedOff reports whether Handoff has completed.
func (b *Bootstrap) HandedOff() bool { return b.handedOff }

// Stats returns the current allocator statistics.
func (b *Bootstrap) Stats() Stats { return StatsOf(b.early) }

// Alloc allocates bytes from the early region.
func (b *Bootstrap) Alloc(layout alloc.Layout) (uintptr, error) {
	if b.handedOff {
		return 0, ErrHandedOff
	}
	addr, err := b.early.Alloc(layout)
	if err != nil {
		b.log.Warn("early byte allocation failed",
			"size", layout.Size, "align", layout.Align,
			"available", b.early.AvailableBytes(), "error", err)
		return 0, err
	}
	b.log.Debug("early byte allocation", "addr", hex(addr), "size", layout.Size, "align", layout.Align)
	return addr, nil
}

// AllocPages allocates pages from the early region.
func (b *Bootstrap) AllocPages(numPages, align uintptr) (uintptr, error) {
	if b.handedOff {
		return 0, ErrHandedOff
	}
	addr, err := b.early.AllocPages(numPages, align)
	if err != nil {
		b.log.Warn("early page allocation failed",
			"pages", numPages, "align", hex(align),
			"available_pages", b.early.AvailablePages(), "error", err)
		return 0, err
	}
	b.log.Debug("early page allocation", "addr", hex(addr), "pages", numPages, "align", hex(align))
	return addr, nil
}

// Dealloc forwards to the early allocator, where it is a no-op.
func (b *Bootstrap) Dealloc(addr uintptr, layout alloc.Layout) {
	b.early.Dealloc(addr, layout)
}

// DeallocPages forwards to the early allocator, where it is a no-op.
func (b *Bootstrap) DeallocPages(addr, numPages uintptr) {
	b.early.DeallocPages(addr, numPages)
}

// Snapshot describes the current state without ending the early stage.
func (b *Bootstrap) Snapshot() Handoff {
	start, end := b.early.Bounds()
	bytePos, pagePos := b.early.Cursors()
	pageSize := b.early.PageSize()
	return Handoff{
		PageSize:  pageSize,
		Region:    reserve.Range{Addr: start, Len: end - start},
		Free:      reserve.Range{Addr: bytePos, Len: pagePos - bytePos},
		FreePages: wholePages(bytePos, pagePos, pageSize),
		Reserved:  b.res.Coalesced(),
		Stats:     b.Stats(),
	}
}

// wholePages returns the page-aligned pages inside [lo, hi).
func wholePages(lo, hi, pageSize uintptr) reserve.Range {
	first, ok := format.AlignUp(lo, pageSize)
	last := format.AlignDown(hi, pageSize)
	if !ok || first >= last {
		return reserve.Range{Addr: last}
	}
	return reserve.Range{Addr: first, Len: last - first}
}

// Handoff ends the early stage by passing the final state to construct, which
// builds the real allocators. If construct fails the early stage continues
// and Handoff may be retried. After a successful handoff, allocations through
// b fail with ErrHandedOff.
func (b *Bootstrap) Handoff(ctx context.Context, construct func(Handoff) error) error {
	if b.handedOff {
		return ErrHandedOff
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h := b.Snapshot()
	if err := construct(h); err != nil {
		b.log.Error("handoff failed", "error", err)
		return fmt.Errorf("boot: handoff: %w", err)
	}

	b.handedOff = true
	b.log.Info("early allocator handed off",
		"free_start", hex(h.Free.Addr),
		"free_end", hex(h.Free.End()),
		"free_pages", h.FreePages.Len/h.PageSize,
		"used_bytes", h.Stats.UsedBytes,
		"used_pages", h.Stats.UsedPages,
		"reserved_ranges", len(h.Reserved))
	return nil
}

// hex formats an address for log records.
func hex(v uintptr) string { return fmt.Sprintf("%#x", v) }
