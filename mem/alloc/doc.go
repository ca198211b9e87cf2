// Package alloc provides the early-boot memory allocator and the allocator
// contracts it satisfies.
//
// # Overview
//
// Early boot code needs memory before the real byte and page-frame allocators
// can be constructed, since those allocators need memory for their own
// bookkeeping. EarlyAllocator serves both disciplines from a single region:
//
//   - Alloc(layout): byte allocations, bumped forward from the region start
//   - AllocPages(n, align): page allocations, bumped backward from the region end
//
// The two cursors meet in the middle; an allocation that would cross the
// other cursor fails with ErrNoMemory.
//
// # Contracts
//
//   - BaseAllocator: Init / AddMemory
//   - ByteAllocator: Alloc / Dealloc / TotalBytes / UsedBytes / AvailableBytes
//   - PageAllocator: PageSize / AllocPages / DeallocPages / TotalPages / UsedPages / AvailablePages
//
// # Usage Example
//
//	tr := reserve.NewTracker(0x1000)
//	ea := alloc.NewEarly(0x1000, tr, nil)
//	ea.Init(0x1000, 0x4000)
//
//	addr, err := ea.Alloc(alloc.Layout{Size: 16, Align: 8}) // 0x1000
//	if err != nil {
//	    return err
//	}
//
//	page, err := ea.AllocPages(1, 0x1000) // 0x4000
//
// # Reclamation
//
// Nothing is reclaimed. Dealloc and DeallocPages are no-ops: the byte zone is
// an append-only arena and page allocations are permanent. The whole region is
// released at once when the real allocators take over (see mem/boot).
//
// # Page Alignment
//
// With PageAlignExact (the default) AllocPages returns addresses that are a
// multiple of the requested alignment. PageAlignLegacyShift keeps the
// arithmetic of earlier boot allocators, where the alignment in pages was used
// as a shift amount; it only honours alignments of exactly one page.
//
// # Thread Safety
//
// EarlyAllocator is NOT thread-safe. Use Locked to share one between goroutines.
//
// # Error Handling
//
//   - ErrInvalidParam: alignment is not a power of two or not a page multiple
//   - ErrNoMemory: the free gap is too small
//
// Init on an active allocator and AddMemory are programming errors and panic
// with ErrAlreadyInitialized and ErrUnsupported respectively.
package alloc
