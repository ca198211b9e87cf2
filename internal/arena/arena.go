// Package arena provides real memory for the early allocator to manage.
//
// On unix systems the region is an anonymous private mapping obtained with
// mmap, so it is page aligned and zero filled. Elsewhere a heap slice is used.
package arena

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrClosed indicates an access after Close.
	ErrClosed = errors.New("arena: region closed")

	// ErrOutOfRange indicates an address range outside the mapped region.
	ErrOutOfRange = errors.New("arena: address out of range")
)

// Region is a block of backing memory.
type Region struct {
	data    []byte
	release func([]byte) error
}

// Map obtains size bytes of zeroed, writable memory.
func Map(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena: invalid size %d", size)
	}
	data, release, err := mapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("arena: map %d bytes: %w", size, err)
	}
	return &Region{data: data, release: release}, nil
}

// Base returns the address of the first byte, or 0 once closed.
func (r *Region) Base() uintptr {
	if len(r.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.data[0]))
}

// Len returns the size of the region in bytes.
func (r *Region) Len() int { return len(r.data) }

// Bytes returns the whole region.
func (r *Region) Bytes() []byte { return r.data }

// Slice returns the n bytes starting at absolute address addr.
func (r *Region) Slice(addr, n uintptr) ([]byte, error) {
	if r.data == nil {
		return nil, ErrClosed
	}
	base := r.Base()
	if addr < base || n > uintptr(len(r.data)) || addr-base > uintptr(len(r.data))-n {
		return nil, fmt.Errorf("%w: [%#x, %#x) not within [%#x, %#x)",
			ErrOutOfRange, addr, addr+n, base, base+uintptr(len(r.data)))
	}
	off := addr - base
	return r.data[off : off+n : off+n], nil
}

// Close releases the memory. Calling Close more than once is a no-op.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return r.release(data)
}
