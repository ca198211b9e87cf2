package alloc

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// span is a half-open address range handed out by the allocator.
type span struct {
	addr, size uintptr
}

// requireNoOverlap checks that no two non-empty spans intersect.
func requireNoOverlap(t *testing.T, spans []span) {
	t.Helper()
	sorted := make([]span, 0, len(spans))
	for _, s := range spans {
		if s.size > 0 {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].addr < sorted[j].addr })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		require.LessOrEqual(t, prev.addr+prev.size, cur.addr,
			"span [%#x, %#x) overlaps [%#x, %#x)", prev.addr, prev.addr+prev.size, cur.addr, cur.addr+cur.size)
	}
}

// Test_Property_RandomOps performs random byte and page allocations and
// validates the allocator invariants after every step.
func Test_Property_RandomOps(t *testing.T) {
	const (
		start = 0x10_0000
		size  = 0x10_0000
	)
	aligns := []uintptr{1, 2, 4, 8, 16, 64, 256, 4096}

	for _, seed := range []int64{1, 7, 42, 1337} {
		rng := rand.New(rand.NewSource(seed)) // Fixed seed for reproducibility

		ea := NewEarly(testPageSize, nil, nil)
		ea.Init(start, size)

		var spans []span
		for step := 0; step < 500; step++ {
			bytePos, pagePos := ea.Cursors()

			switch rng.Intn(4) {
			case 0, 1: // byte allocation
				layout := Layout{
					Size:  uintptr(rng.Intn(0x2000)),
					Align: aligns[rng.Intn(len(aligns))],
				}
				aligned := (bytePos + layout.Align - 1) &^ (layout.Align - 1)
				fits := aligned+layout.Size <= pagePos

				addr, err := ea.Alloc(layout)
				if !fits {
					require.ErrorIs(t, err, ErrNoMemory, "seed %d step %d", seed, step)
					break
				}
				require.NoError(t, err, "seed %d step %d", seed, step)
				require.Zero(t, addr%layout.Align, "seed %d step %d: misaligned byte address", seed, step)
				spans = append(spans, span{addr, layout.Size})

			case 2: // page allocation
				numPages := uintptr(rng.Intn(4))
				align := uintptr(testPageSize) << rng.Intn(4)

				addr, err := ea.AllocPages(numPages, align)
				if err != nil {
					require.ErrorIs(t, err, ErrNoMemory, "seed %d step %d", seed, step)
					break
				}
				require.Zero(t, addr%testPageSize, "seed %d step %d: page address not page aligned", seed, step)
				require.Zero(t, addr%align, "seed %d step %d: page address not %#x aligned", seed, step, align)
				spans = append(spans, span{addr, numPages * testPageSize})

			case 3: // frees never change anything
				usedB, usedP := ea.UsedBytes(), ea.UsedPages()
				availB, availP := ea.AvailableBytes(), ea.AvailablePages()
				if len(spans) > 0 {
					s := spans[rng.Intn(len(spans))]
					ea.Dealloc(s.addr, Layout{Size: s.size, Align: 1})
					ea.DeallocPages(s.addr, s.size/testPageSize)
				}
				require.Equal(t, usedB, ea.UsedBytes())
				require.Equal(t, usedP, ea.UsedPages())
				require.Equal(t, availB, ea.AvailableBytes())
				require.Equal(t, availP, ea.AvailablePages())
			}

			requireCursorOrder(t, ea)
			require.LessOrEqual(t, ea.UsedPages()+ea.AvailablePages(), ea.TotalPages())
		}

		requireNoOverlap(t, spans)
	}
}

// Test_Property_PageAlignmentFactors checks addr % align == 0 for page
// alignments of 1, 2, 4 and 8 pages in exact mode, and records how the legacy
// arithmetic diverges for the same requests.
func Test_Property_PageAlignmentFactors(t *testing.T) {
	for _, factor := range []uintptr{1, 2, 4, 8} {
		align := factor * testPageSize

		exact := NewEarly(testPageSize, nil, nil)
		exact.Init(0x1000, 0x40_0000)
		legacy := NewEarly(testPageSize, nil, &Config{AlignMode: PageAlignLegacyShift})
		legacy.Init(0x1000, 0x40_0000)

		diverged := false
		for i := 0; i < 16; i++ {
			addr, err := exact.AllocPages(3, align)
			require.NoError(t, err)
			require.Zero(t, addr%align, "exact mode: %#x not aligned to %#x", addr, align)

			laddr, err := legacy.AllocPages(3, align)
			require.NoError(t, err)
			require.Zero(t, laddr%testPageSize, "legacy mode keeps page alignment")
			if laddr%align != 0 {
				diverged = true
			}
		}

		if factor == 1 {
			require.False(t, diverged, "single-page alignment must agree in both modes")
		} else {
			require.True(t, diverged, "legacy mode is expected to miss %d-page alignment", factor)
		}
	}
}

// Test_Property_OOMExactlyWhenTooLarge checks that byte allocation fails
// exactly when the aligned request exceeds the available bytes.
func Test_Property_OOMExactlyWhenTooLarge(t *testing.T) {
	ea := newTestEarly(t, nil)
	_, err := ea.Alloc(Layout{Size: 3, Align: 1})
	require.NoError(t, err)
	_, err = ea.AllocPages(1, testPageSize)
	require.NoError(t, err)

	for _, align := range []uintptr{1, 4, 16} {
		bytePos, _ := ea.Cursors()
		pad := ((bytePos + align - 1) &^ (align - 1)) - bytePos
		limit := ea.AvailableBytes() - pad

		trial := *ea
		_, err := trial.Alloc(Layout{Size: limit + 1, Align: align})
		require.ErrorIs(t, err, ErrNoMemory, "align %d: one byte too many", align)

		trial = *ea
		_, err = trial.Alloc(Layout{Size: limit, Align: align})
		require.NoError(t, err, "align %d: exact fit", align)
	}
}
