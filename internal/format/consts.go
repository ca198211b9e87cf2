// Package format holds the address arithmetic shared by the allocator
// packages. Everything here is allocation-free and operates on uintptr so the
// same helpers serve physical and virtual addresses.
package format

const (
	// DefaultPageSize is the page size used when none is configured (4 KiB).
	DefaultPageSize uintptr = 0x1000

	// MaxAddr is the highest representable address.
	MaxAddr = ^uintptr(0)
)
