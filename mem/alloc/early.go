package alloc

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/earlyalloc/internal/format"
)

// Config tunes an EarlyAllocator. The zero value is DefaultConfig.
type Config struct {
	// AlignMode selects the rounding used by AllocPages.
	AlignMode PageAlignMode
}

// DefaultConfig is used when NewEarly receives a nil config.
var DefaultConfig = Config{AlignMode: PageAlignExact}

// EarlyAllocator is a double-ended bump allocator used before the real byte
// and page allocators exist. Byte allocations grow forward from the start of
// the region, page allocations grow backward from its end:
//
//	[ bytes used | free gap | pages used ]
//	|            | -->  <-- |            |
//	start     bytePos    pagePos        end
//
// Nothing is ever reclaimed. Dealloc and DeallocPages are no-ops, and the
// allocator keeps no per-allocation bookkeeping.
//
// NOT thread-safe. Wrap it in Locked when several goroutines share it.
type EarlyAllocator struct {
	tr       Tracker
	pageSize uintptr
	mode     PageAlignMode

	start uintptr
	end   uintptr

	// bytePos is the next free byte address. start <= bytePos <= pagePos.
	bytePos uintptr

	// pagePos is the lowest address handed out as pages. pagePos <= end.
	pagePos uintptr

	active bool
}

// NewEarly creates an uninitialized EarlyAllocator.
//
// Parameters:
//   - pageSize: page size in bytes, must be a power of two
//   - tr: notified of every successful allocation (can be nil)
//   - cfg: tuning, nil selects DefaultConfig
//
// A pageSize that is not a power of two is a programming error and panics.
func NewEarly(pageSize uintptr, tr Tracker, cfg *Config) *EarlyAllocator {
	if !format.IsPowerOfTwo(pageSize) {
		panic(fmt.Errorf("%w: page size %#x is not a power of two", ErrInvalidParam, pageSize))
	}
	if cfg == nil {
		cfg = &DefaultConfig
	}
	return &EarlyAllocator{
		tr:       tr,
		pageSize: pageSize,
		mode:     cfg.AlignMode,
	}
}

// Init hands the allocator the region [start, start+size) and resets both
// cursors to the region endpoints. It panics if the allocator is already
// active.
func (ea *EarlyAllocator) Init(start, size uintptr) {
	if ea.active {
		panic(fmt.Errorf("%w: region [%#x, %#x)", ErrAlreadyInitialized, ea.start, ea.end))
	}
	if format.AddOverflows(start, size) {
		panic(fmt.Errorf("%w: region %#x+%#x overflows the address space", ErrInvalidParam, start, size))
	}

	ea.start = start
	ea.end = start + size
	ea.bytePos = start
	ea.pagePos = ea.end
	ea.active = true
}

// AddMemory always panics: the early allocator manages exactly one region.
func (ea *EarlyAllocator) AddMemory(start, size uintptr) error {
	panic(fmt.Errorf("%w: add memory [%#x, %#x) to early allocator", ErrUnsupported, start, start+size))
}

// Active reports whether Init has been called.
func (ea *EarlyAllocator) Active() bool { return ea.active }

// Bounds returns the managed region [start, end).
func (ea *EarlyAllocator) Bounds() (start, end uintptr) { return ea.start, ea.end }

// Cursors returns the current byte and page cursors.
func (ea *EarlyAllocator) Cursors() (bytePos, pagePos uintptr) { return ea.bytePos, ea.pagePos }

// AlignMode returns the page rounding mode chosen at construction.
func (ea *EarlyAllocator) AlignMode() PageAlignMode { return ea.mode }

// Alloc bumps the byte cursor forward. The block starts at bytePos rounded
// up to layout.Align and fails with ErrNoMemory if it would reach into the
// page zone.
func (ea *EarlyAllocator) Alloc(layout Layout) (uintptr, error) {
	if !format.IsPowerOfTwo(layout.Align) {
		return 0, ErrInvalidParam
	}
	if !ea.active {
		return 0, ErrNoMemory
	}

	alignedStart, ok := format.AlignUp(ea.bytePos, layout.Align)
	if !ok || format.AddOverflows(alignedStart, layout.Size) {
		return 0, ErrNoMemory
	}
	if alignedStart+layout.Size > ea.pagePos {
		return 0, ErrNoMemory
	}

	ea.bytePos = alignedStart + layout.Size

	if ea.tr != nil && layout.Size > 0 {
		ea.tr.Add(alignedStart, layout.Size)
	}
	return alignedStart, nil
}

// Dealloc is a no-op. The byte zone is an append-only arena and is only
// released as a whole when the real allocators take over.
func (ea *EarlyAllocator) Dealloc(addr uintptr, layout Layout) {}

// TotalBytes returns the size of the managed region.
func (ea *EarlyAllocator) TotalBytes() uintptr { return ea.end - ea.start }

// UsedBytes returns the size of the byte zone, alignment padding included.
func (ea *EarlyAllocator) UsedBytes() uintptr { return ea.bytePos - ea.start }

// AvailableBytes returns the size of the free gap.
func (ea *EarlyAllocator) AvailableBytes() uintptr { return ea.pagePos - ea.bytePos }

// PageSize returns the page size fixed at construction.
func (ea *EarlyAllocator) PageSize() uintptr { return ea.pageSize }

// AllocPages bumps the page cursor backward by numPages pages and rounds it
// down to the requested alignment. align must be a multiple of the page size
// and align/pageSize must be a power of two, otherwise ErrInvalidParam.
func (ea *EarlyAllocator) AllocPages(numPages, align uintptr) (uintptr, error) {
	if align%ea.pageSize != 0 {
		return 0, ErrInvalidParam
	}
	alignUnits := align / ea.pageSize
	if !format.IsPowerOfTwo(alignUnits) {
		return 0, ErrInvalidParam
	}
	if !ea.active {
		return 0, ErrNoMemory
	}

	if format.MulOverflows(numPages, ea.pageSize) {
		return 0, ErrNoMemory
	}
	size := numPages * ea.pageSize
	if size > ea.pagePos-ea.start {
		return 0, ErrNoMemory
	}

	newPagePos := (ea.pagePos - size) &^ ea.pageMask(alignUnits, align)
	if newPagePos < ea.bytePos {
		return 0, ErrNoMemory
	}

	ea.pagePos = newPagePos

	if ea.tr != nil && size > 0 {
		ea.tr.Add(newPagePos, size)
	}
	return newPagePos, nil
}

// pageMask returns the low bits cleared from the new page cursor.
func (ea *EarlyAllocator) pageMask(alignUnits, align uintptr) uintptr {
	if ea.mode == PageAlignLegacyShift {
		// Shift amounts past the word size clear every bit.
		if alignUnits >= bits.UintSize {
			return format.MaxAddr
		}
		return (uintptr(1) << alignUnits) - 1
	}
	return align - 1
}

// DeallocPages is a no-op. Early page allocations are permanent.
func (ea *EarlyAllocator) DeallocPages(addr, numPages uintptr) {}

// TotalPages returns the number of whole pages in the managed region.
func (ea *EarlyAllocator) TotalPages() uintptr { return (ea.end - ea.start) / ea.pageSize }

// UsedPages returns the number of pages in the page zone.
func (ea *EarlyAllocator) UsedPages() uintptr { return (ea.end - ea.pagePos) / ea.pageSize }

// AvailablePages returns the number of whole pages in the free gap.
func (ea *EarlyAllocator) AvailablePages() uintptr { return (ea.pagePos - ea.bytePos) / ea.pageSize }

// Compile-time interface checks
var (
	_ ByteAllocator = (*EarlyAllocator)(nil)
	_ PageAllocator = (*EarlyAllocator)(nil)
	_ DualAllocator = (*EarlyAllocator)(nil)
)
