package alloc

import (
	"fmt"

	"github.com/joshuapare/earlyalloc/internal/format"
)

// Layout is a (size, alignment) pair describing a byte allocation request.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// NewLayout returns a Layout after checking that align is a power of two.
func NewLayout(size, align uintptr) (Layout, error) {
	if !format.IsPowerOfTwo(align) {
		return Layout{}, fmt.Errorf("%w: align %#x is not a power of two", ErrInvalidParam, align)
	}
	return Layout{Size: size, Align: align}, nil
}

// PageAlignMode selects how AllocPages turns an alignment into a rounding mask.
type PageAlignMode uint8

const (
	// PageAlignExact rounds the new page cursor down to a multiple of the
	// requested alignment in bytes.
	PageAlignExact PageAlignMode = iota

	// PageAlignLegacyShift keeps the historical shift-based mask:
	// mask = (1 << (align/pageSize)) - 1. The page-count factor is used as a
	// shift amount, so returned addresses are only guaranteed to honour the
	// alignment when align == pageSize.
	PageAlignLegacyShift
)

// String returns the plan-file spelling of the mode.
func (m PageAlignMode) String() string {
	switch m {
	case PageAlignExact:
		return "exact"
	case PageAlignLegacyShift:
		return "legacy"
	default:
		return fmt.Sprintf("PageAlignMode(%d)", uint8(m))
	}
}

// ParsePageAlignMode is the inverse of PageAlignMode.String.
// The empty string selects PageAlignExact.
func ParsePageAlignMode(s string) (PageAlignMode, error) {
	switch s {
	case "", "exact":
		return PageAlignExact, nil
	case "legacy":
		return PageAlignLegacyShift, nil
	default:
		return 0, fmt.Errorf("%w: unknown page align mode %q", ErrInvalidParam, s)
	}
}
