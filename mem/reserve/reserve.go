// Package reserve records the address ranges handed out by the early
// allocator so the real page-frame allocator can exclude them at handoff.
//
// The tracker keeps a list of raw ranges and coalesces them into
// page-aligned, non-overlapping ranges on demand.
package reserve

import (
	"fmt"
	"sort"

	"github.com/joshuapare/earlyalloc/internal/format"
)

// defaultRangeCapacity is the pre-allocated capacity for recorded ranges.
const defaultRangeCapacity = 64

// Range is a reserved address range [Addr, Addr+Len).
type Range struct {
	Addr uintptr `json:"addr"`
	Len  uintptr `json:"len"`
}

// End returns the first address past the range.
func (r Range) End() uintptr { return r.Addr + r.Len }

// String formats the range as a half-open interval.
func (r Range) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Addr, r.End())
}

// Tracker accumulates reserved ranges.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	ranges   []Range
	pageSize uintptr
}

// NewTracker creates a tracker that coalesces to pageSize boundaries.
// pageSize must be a power of two.
func NewTracker(pageSize uintptr) *Tracker {
	if !format.IsPowerOfTwo(pageSize) {
		panic(fmt.Sprintf("reserve: page size %#x is not a power of two", pageSize))
	}
	return &Tracker{
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: pageSize,
	}
}

// Add records a reserved range. Empty ranges are ignored.
func (t *Tracker) Add(addr, length uintptr) {
	if length == 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Addr: addr, Len: length})
}

// Len returns the number of raw ranges recorded.
func (t *Tracker) Len() int { return len(t.ranges) }

// Reset clears all recorded ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// Ranges returns a copy of the raw, uncoalesced ranges in insertion order.
func (t *Tracker) Ranges() []Range {
	result := make([]Range, len(t.ranges))
	copy(result, t.ranges)
	return result
}

// Bytes returns the total length of the coalesced ranges, i.e. the number of
// bytes the page-frame allocator must treat as in use.
func (t *Tracker) Bytes() uintptr {
	var n uintptr
	for _, r := range t.Coalesced() {
		n += r.Len
	}
	return n
}

// Coalesced page-aligns all ranges, sorts them, and merges overlapping or
// adjacent ranges.
//
// Returns a new slice of non-overlapping, sorted ranges.
func (t *Tracker) Coalesced() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := format.AlignDown(r.Addr, t.pageSize)
		end, ok := format.AlignUp(r.End(), t.pageSize)
		if !ok {
			end = format.AlignDown(format.MaxAddr, t.pageSize)
		}
		aligned[i] = Range{Addr: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Addr < aligned[j].Addr
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]

	for _, next := range aligned[1:] {
		if next.Addr <= current.End() {
			if next.End() > current.End() {
				current.Len = next.End() - current.Addr
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}

	return append(merged, current)
}

var _ Recorder = (*Tracker)(nil)
