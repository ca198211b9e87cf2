package plan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/earlyalloc/internal/arena"
	"github.com/joshuapare/earlyalloc/mem/alloc"
	"github.com/joshuapare/earlyalloc/mem/boot"
)

// ErrUnexpected indicates a step whose outcome differs from its expectation.
var ErrUnexpected = errors.New("plan: unexpected step outcome")

// Options configures Run.
type Options struct {
	Logger *slog.Logger

	// Backing, if set, is real memory mirroring the plan region: address
	// Region.Start corresponds to the first byte of Backing. Every allocation
	// is stamped and checked after the run to prove blocks do not overlap.
	Backing *arena.Region
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Op     string `json:"op"`
	Addr   uint64 `json:"addr"`
	Size   uint64 `json:"size"`
	Result string `json:"result"`
}

// Report is the outcome of a plan run.
type Report struct {
	AlignMode string        `json:"align_mode"`
	Steps     []StepResult  `json:"steps"`
	Stats     boot.Stats    `json:"stats"`
	Handoff   *boot.Handoff `json:"handoff,omitempty"`
	Verified  bool          `json:"verified"`
}

// stamp is an allocation written into the backing memory. Every byte holds
// one byte of tag in little-endian order, phased by address, so two blocks
// never share a pattern.
type stamp struct {
	addr, size uintptr
	tag        uint32
}

// patternByte returns the byte st holds at address addr.
func (st stamp) patternByte(addr uintptr) byte {
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], st.tag)
	return word[addr%4]
}

// Run replays p against a fresh bootstrap allocator and hands it off at the
// end. On an unexpected outcome the partial report is returned with an error
// wrapping ErrUnexpected.
func Run(ctx context.Context, p *Plan, opts Options) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	mode, err := alloc.ParsePageAlignMode(p.AlignMode)
	if err != nil {
		return nil, err
	}
	if opts.Backing != nil && uint64(opts.Backing.Len()) < uint64(p.Region.Size) {
		return nil, fmt.Errorf("plan: backing memory holds %d bytes, region needs %d", opts.Backing.Len(), uint64(p.Region.Size))
	}

	b, err := boot.New(boot.Options{
		Start:     uintptr(p.Region.Start),
		Size:      uintptr(p.Region.Size),
		PageSize:  uintptr(p.Region.PageSize),
		AlignMode: mode,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{AlignMode: mode.String()}
	var stamps []stamp

	for i, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		res := StepResult{Index: i, Name: s.Name, Op: s.Op()}
		var stepErr error
		switch res.Op {
		case OpAlloc:
			res.Size = uint64(s.Alloc.Size)
			var addr uintptr
			addr, stepErr = b.Alloc(alloc.Layout{Size: uintptr(s.Alloc.Size), Align: uintptr(s.Alloc.Align)})
			res.Addr = uint64(addr)
		case OpAllocPages:
			res.Size = uint64(s.AllocPages.Count) * uint64(b.Early().PageSize())
			var addr uintptr
			addr, stepErr = b.AllocPages(uintptr(s.AllocPages.Count), uintptr(s.AllocPages.Align))
			res.Addr = uint64(addr)
		case OpDealloc:
			res.Addr, res.Size = uint64(s.Dealloc.Addr), uint64(s.Dealloc.Size)
			b.Dealloc(uintptr(s.Dealloc.Addr), alloc.Layout{Size: uintptr(s.Dealloc.Size), Align: uintptr(s.Dealloc.Align)})
		case OpDeallocPages:
			res.Addr, res.Size = uint64(s.DeallocPages.Addr), uint64(s.DeallocPages.Count)*uint64(b.Early().PageSize())
			b.DeallocPages(uintptr(s.DeallocPages.Addr), uintptr(s.DeallocPages.Count))
		}

		res.Result = outcome(stepErr)
		rep.Steps = append(rep.Steps, res)

		want := s.Expect
		if want == "" {
			want = ExpectOK
		}
		if res.Result != want {
			rep.Stats = b.Stats()
			return rep, fmt.Errorf("%w: step %d (%s): got %s, want %s", ErrUnexpected, i, res.Op, res.Result, want)
		}

		if stepErr == nil && opts.Backing != nil && res.Size > 0 &&
			(res.Op == OpAlloc || res.Op == OpAllocPages) {
			st := stamp{addr: uintptr(res.Addr), size: uintptr(res.Size), tag: uint32(i) + 1}
			if err := fill(opts.Backing, uintptr(p.Region.Start), st); err != nil {
				return rep, err
			}
			stamps = append(stamps, st)
		}
	}

	rep.Stats = b.Stats()

	if opts.Backing != nil {
		for _, st := range stamps {
			if err := check(opts.Backing, uintptr(p.Region.Start), st); err != nil {
				return rep, err
			}
		}
		rep.Verified = true
	}

	err = b.Handoff(ctx, func(h boot.Handoff) error {
		rep.Handoff = &h
		return nil
	})
	return rep, err
}

// outcome maps an allocator error to its plan spelling.
func outcome(err error) string {
	switch {
	case err == nil:
		return ExpectOK
	case errors.Is(err, alloc.ErrNoMemory):
		return ExpectNoMemory
	case errors.Is(err, alloc.ErrInvalidParam):
		return ExpectInvalidParam
	default:
		return err.Error()
	}
}

// view returns the backing bytes of st.
func view(backing *arena.Region, start uintptr, st stamp) ([]byte, error) {
	return backing.Slice(backing.Base()+(st.addr-start), st.size)
}

func fill(backing *arena.Region, start uintptr, st stamp) error {
	mem, err := view(backing, start, st)
	if err != nil {
		return err
	}
	for i := range mem {
		mem[i] = st.patternByte(st.addr + uintptr(i))
	}
	return nil
}

func check(backing *arena.Region, start uintptr, st stamp) error {
	mem, err := view(backing, start, st)
	if err != nil {
		return err
	}
	for i, b := range mem {
		if b != st.patternByte(st.addr+uintptr(i)) {
			return fmt.Errorf("plan: allocation at %#x overwritten at +%#x", st.addr, i)
		}
	}
	return nil
}
