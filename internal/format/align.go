package format

// Alignment utilities for address arithmetic.
// Every alignment passed here must be a power of two; callers validate with
// IsPowerOfTwo before relying on the result.

// IsPowerOfTwo reports whether n is a positive power of two.
//
// Example:
//
//	IsPowerOfTwo(0)    = false
//	IsPowerOfTwo(1)    = true
//	IsPowerOfTwo(4096) = true
//	IsPowerOfTwo(6)    = false
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp returns addr rounded up to the next multiple of align.
// The second result is false when rounding would overflow the address space.
//
// Example:
//
//	AlignUp(0x1001, 8)      = 0x1008
//	AlignUp(0x1008, 8)      = 0x1008
//	AlignUp(0x1001, 0x1000) = 0x2000
func AlignUp(addr, align uintptr) (uintptr, bool) {
	mask := align - 1
	if addr > MaxAddr-mask {
		return 0, false
	}
	return (addr + mask) &^ mask, true
}

// AlignDown returns addr rounded down to a multiple of align.
//
// Example:
//
//	AlignDown(0x1fff, 0x1000) = 0x1000
//	AlignDown(0x2000, 0x1000) = 0x2000
func AlignDown(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}

// IsAligned reports whether addr is a multiple of align.
func IsAligned(addr, align uintptr) bool {
	return addr&(align-1) == 0
}

// AddOverflows reports whether a+b wraps around the address space.
func AddOverflows(a, b uintptr) bool {
	return a > MaxAddr-b
}

// MulOverflows reports whether a*b wraps around the address space.
func MulOverflows(a, b uintptr) bool {
	return a != 0 && b > MaxAddr/a
}
