package boot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/earlyalloc/mem/alloc"
	"github.com/joshuapare/earlyalloc/mem/reserve"
)

func newTestBootstrap(t *testing.T) *Bootstrap {
	t.Helper()
	b, err := New(Options{Start: 0x1000, Size: 0x4000})
	require.NoError(t, err)
	return b
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"empty region", Options{Start: 0x1000}},
		{"bad page size", Options{Start: 0x1000, Size: 0x4000, PageSize: 0x1800}},
		{"overflow", Options{Start: ^uintptr(0) - 0xff, Size: 0x1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.ErrorIs(t, err, alloc.ErrInvalidParam)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	b := newTestBootstrap(t)

	assert.Equal(t, uintptr(0x1000), b.Early().PageSize())
	assert.Equal(t, alloc.PageAlignExact, b.Early().AlignMode())
	assert.Equal(t, Stats{
		TotalBytes:     0x4000,
		AvailableBytes: 0x4000,
		TotalPages:     4,
		AvailablePages: 4,
	}, b.Stats())
}

func TestBootstrap_AllocRecordsReservations(t *testing.T) {
	b := newTestBootstrap(t)

	addr, err := b.Alloc(alloc.Layout{Size: 16, Align: 8})
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x1000), addr)

	page, err := b.AllocPages(1, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x4000), page)

	b.Dealloc(addr, alloc.Layout{Size: 16, Align: 8})
	b.DeallocPages(page, 1)

	assert.Equal(t, []reserve.Range{
		{Addr: 0x1000, Len: 0x1000},
		{Addr: 0x4000, Len: 0x1000},
	}, b.Reservations().Coalesced())
}

func TestBootstrap_Handoff(t *testing.T) {
	b := newTestBootstrap(t)

	_, err := b.Alloc(alloc.Layout{Size: 16, Align: 8})
	require.NoError(t, err)
	_, err = b.AllocPages(1, 0x1000)
	require.NoError(t, err)

	var got Handoff
	err = b.Handoff(context.Background(), func(h Handoff) error {
		got = h
		return nil
	})
	require.NoError(t, err)
	require.True(t, b.HandedOff())

	assert.Equal(t, uintptr(0x1000), got.PageSize)
	assert.Equal(t, reserve.Range{Addr: 0x1000, Len: 0x4000}, got.Region)
	assert.Equal(t, reserve.Range{Addr: 0x1010, Len: 0x2ff0}, got.Free)
	assert.Equal(t, reserve.Range{Addr: 0x2000, Len: 0x2000}, got.FreePages)
	require.Len(t, got.Reserved, 2)
	for _, r := range got.Reserved {
		assert.True(t, r.End() <= got.FreePages.Addr || got.FreePages.End() <= r.Addr,
			"free pages %s intersect reserved %s", got.FreePages, r)
	}
	assert.Equal(t, uintptr(16), got.Stats.UsedBytes)
	assert.Equal(t, uintptr(1), got.Stats.UsedPages)

	_, err = b.Alloc(alloc.Layout{Size: 8, Align: 8})
	require.ErrorIs(t, err, ErrHandedOff)
	_, err = b.AllocPages(1, 0x1000)
	require.ErrorIs(t, err, ErrHandedOff)
	err = b.Handoff(context.Background(), func(Handoff) error { return nil })
	require.ErrorIs(t, err, ErrHandedOff)

	assert.Equal(t, got.Stats, b.Stats(), "stats stay readable after handoff")
}

func TestBootstrap_SnapshotFreePages(t *testing.T) {
	tests := []struct {
		name      string
		bytes     uintptr
		pages     uintptr
		wantFree  reserve.Range
		wantPages reserve.Range
	}{
		{
			name:      "fresh region",
			wantFree:  reserve.Range{Addr: 0x1000, Len: 0x4000},
			wantPages: reserve.Range{Addr: 0x1000, Len: 0x4000},
		},
		{
			name:      "page boundary byte zone",
			bytes:     0x1000,
			wantFree:  reserve.Range{Addr: 0x2000, Len: 0x3000},
			wantPages: reserve.Range{Addr: 0x2000, Len: 0x3000},
		},
		{
			name:      "gap inside one page",
			bytes:     0x2010,
			pages:     1,
			wantFree:  reserve.Range{Addr: 0x3010, Len: 0xff0},
			wantPages: reserve.Range{Addr: 0x4000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBootstrap(t)
			if tt.bytes > 0 {
				_, err := b.Alloc(alloc.Layout{Size: tt.bytes, Align: 1})
				require.NoError(t, err)
			}
			if tt.pages > 0 {
				_, err := b.AllocPages(tt.pages, 0x1000)
				require.NoError(t, err)
			}

			h := b.Snapshot()
			assert.Equal(t, tt.wantFree, h.Free)
			assert.Equal(t, tt.wantPages, h.FreePages)
			assert.False(t, b.HandedOff())
		})
	}
}

func TestHandoff_JSONFieldNames(t *testing.T) {
	b := newTestBootstrap(t)
	_, err := b.Alloc(alloc.Layout{Size: 16, Align: 8})
	require.NoError(t, err)

	data, err := json.Marshal(b.Snapshot())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	for _, key := range []string{"page_size", "region", "free", "free_pages", "reserved", "stats"} {
		assert.Contains(t, got, key)
	}
	free, ok := got["free"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0x1010, free["addr"])
	assert.EqualValues(t, 0x3ff0, free["len"])
}

func TestBootstrap_HandoffRetry(t *testing.T) {
	b := newTestBootstrap(t)
	errConstruct := errors.New("page frame table too large")

	err := b.Handoff(context.Background(), func(Handoff) error { return errConstruct })
	require.ErrorIs(t, err, errConstruct)
	require.False(t, b.HandedOff())

	// The early stage continues: allocate the bookkeeping in a smaller form and retry
	_, err = b.AllocPages(1, 0x1000)
	require.NoError(t, err)

	err = b.Handoff(context.Background(), func(h Handoff) error {
		assert.Equal(t, uintptr(1), h.Stats.UsedPages)
		return nil
	})
	require.NoError(t, err)
}

func TestBootstrap_HandoffCancelled(t *testing.T) {
	b := newTestBootstrap(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Handoff(ctx, func(Handoff) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.False(t, b.HandedOff())
}

func TestBootstrap_Logging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b, err := New(Options{Start: 0x1000, Size: 0x2000, Logger: log, AlignMode: alloc.PageAlignLegacyShift})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "early allocator ready")
	assert.Contains(t, buf.String(), "align_mode=legacy")

	_, err = b.Alloc(alloc.Layout{Size: 0x4000, Align: 8})
	require.ErrorIs(t, err, alloc.ErrNoMemory)
	assert.Contains(t, buf.String(), "early byte allocation failed")

	_, err = b.AllocPages(1, 0x1000)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "addr=0x2000")
}
