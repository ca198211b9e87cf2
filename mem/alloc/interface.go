package alloc

import "github.com/joshuapare/earlyalloc/mem/reserve"

// Tracker is a type alias for the recorder interface defined in mem/reserve.
type Tracker = reserve.Recorder

// BaseAllocator is the lifecycle contract shared by every boot allocator.
type BaseAllocator interface {
	// Init hands the allocator the region [start, start+size).
	Init(start, size uintptr)

	// AddMemory extends the managed memory with another region.
	// Allocators that manage a single region panic instead of returning.
	AddMemory(start, size uintptr) error
}

// ByteAllocator serves byte-granularity allocations.
type ByteAllocator interface {
	BaseAllocator

	// Alloc returns the address of a block satisfying layout.
	Alloc(layout Layout) (uintptr, error)

	// Dealloc releases a block previously returned by Alloc.
	Dealloc(addr uintptr, layout Layout)

	TotalBytes() uintptr
	UsedBytes() uintptr
	AvailableBytes() uintptr
}

// PageAllocator serves page-granularity allocations.
type PageAllocator interface {
	BaseAllocator

	// PageSize is fixed for the lifetime of the allocator.
	PageSize() uintptr

	// AllocPages returns the address of numPages contiguous pages aligned to
	// align bytes. align must be a multiple of PageSize.
	AllocPages(numPages, align uintptr) (uintptr, error)

	// DeallocPages releases pages previously returned by AllocPages.
	DeallocPages(addr, numPages uintptr)

	TotalPages() uintptr
	UsedPages() uintptr
	AvailablePages() uintptr
}

// DualAllocator serves both disciplines from one region.
type DualAllocator interface {
	ByteAllocator
	PageAllocator
}
