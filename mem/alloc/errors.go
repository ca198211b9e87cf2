package alloc

import "errors"

var (
	// ErrInvalidParam indicates an alignment that is not a positive power of two,
	// or a page alignment that is not a multiple of the page size.
	ErrInvalidParam = errors.New("alloc: invalid parameter")

	// ErrNoMemory indicates the free gap between the byte and page zones is too small.
	ErrNoMemory = errors.New("alloc: out of memory")

	// ErrAlreadyInitialized is the panic value of Init on an active allocator.
	ErrAlreadyInitialized = errors.New("alloc: allocator already initialized")

	// ErrUnsupported is the panic value of AddMemory.
	ErrUnsupported = errors.New("alloc: operation not supported")
)
