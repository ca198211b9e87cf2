// Package plan describes early-boot allocation sequences in YAML and replays
// them against a bootstrap allocator.
//
// A plan names the region and lists steps; each step performs exactly one
// operation and may state the outcome it expects:
//
//	region: {start: 0x1000, size: 0x4000, page_size: 0x1000}
//	align_mode: exact
//	steps:
//	  - alloc: {size: 16, align: 8}
//	  - alloc_pages: {count: 1, align: 0x1000}
//	  - alloc: {size: 0x4000, align: 1}
//	    expect: no_memory
package plan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/earlyalloc/internal/format"
	"github.com/joshuapare/earlyalloc/mem/alloc"
)

// ErrInvalidPlan indicates a plan that cannot be replayed.
var ErrInvalidPlan = errors.New("plan: invalid plan")

// Expected outcomes of a step.
const (
	ExpectOK           = "ok"
	ExpectNoMemory     = "no_memory"
	ExpectInvalidParam = "invalid_param"
)

// Step operation names.
const (
	OpAlloc        = "alloc"
	OpAllocPages   = "alloc_pages"
	OpDealloc      = "dealloc"
	OpDeallocPages = "dealloc_pages"
)

// Addr is an address or length. In YAML it may be an integer in any base
// (0x1000, 4096, 0o10000) or a string holding one.
type Addr uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", value.Line)
	}
	n, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid number %q", value.Line, value.Value)
	}
	*a = Addr(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler, writing addresses in hex.
func (a Addr) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%#x", uint64(a))}, nil
}

// Region is the early region a plan runs over.
type Region struct {
	Start    Addr `yaml:"start"`
	Size     Addr `yaml:"size"`
	PageSize Addr `yaml:"page_size,omitempty"`
}

// AllocStep is a byte allocation request.
type AllocStep struct {
	Size  Addr `yaml:"size"`
	Align Addr `yaml:"align"`
}

// PageStep is a page allocation request.
type PageStep struct {
	Count Addr `yaml:"count"`
	Align Addr `yaml:"align"`
}

// DeallocStep frees a byte allocation.
type DeallocStep struct {
	Addr  Addr `yaml:"addr"`
	Size  Addr `yaml:"size"`
	Align Addr `yaml:"align"`
}

// DeallocPagesStep frees a page allocation.
type DeallocPagesStep struct {
	Addr  Addr `yaml:"addr"`
	Count Addr `yaml:"count"`
}

// Step performs exactly one operation.
type Step struct {
	Name         string            `yaml:"name,omitempty"`
	Alloc        *AllocStep        `yaml:"alloc,omitempty"`
	AllocPages   *PageStep         `yaml:"alloc_pages,omitempty"`
	Dealloc      *DeallocStep      `yaml:"dealloc,omitempty"`
	DeallocPages *DeallocPagesStep `yaml:"dealloc_pages,omitempty"`
	Expect       string            `yaml:"expect,omitempty"`
}

// Op returns the name of the step's operation, or "" if none or several are set.
func (s Step) Op() string {
	op, n := "", 0
	if s.Alloc != nil {
		op, n = OpAlloc, n+1
	}
	if s.AllocPages != nil {
		op, n = OpAllocPages, n+1
	}
	if s.Dealloc != nil {
		op, n = OpDealloc, n+1
	}
	if s.DeallocPages != nil {
		op, n = OpDeallocPages, n+1
	}
	if n != 1 {
		return ""
	}
	return op
}

// Plan is a parsed plan file.
type Plan struct {
	Region    Region `yaml:"region"`
	AlignMode string `yaml:"align_mode,omitempty"`
	Steps     []Step `yaml:"steps"`
}

// Parse decodes and validates a plan.
func Parse(r io.Reader) (*Plan, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses the plan at path.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks the region and that every step is well formed. Alignment
// values are not checked here; replaying them is what plans are for.
func (p *Plan) Validate() error {
	if p.Region.Size == 0 {
		return fmt.Errorf("%w: region size must be positive", ErrInvalidPlan)
	}
	if p.Region.PageSize != 0 && !format.IsPowerOfTwo(uintptr(p.Region.PageSize)) {
		return fmt.Errorf("%w: page size %#x is not a power of two", ErrInvalidPlan, uint64(p.Region.PageSize))
	}
	if format.AddOverflows(uintptr(p.Region.Start), uintptr(p.Region.Size)) {
		return fmt.Errorf("%w: region overflows the address space", ErrInvalidPlan)
	}
	if _, err := alloc.ParsePageAlignMode(p.AlignMode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	for i, s := range p.Steps {
		if s.Op() == "" {
			return fmt.Errorf("%w: step %d must set exactly one operation", ErrInvalidPlan, i)
		}
		switch s.Expect {
		case "", ExpectOK, ExpectNoMemory, ExpectInvalidParam:
		default:
			return fmt.Errorf("%w: step %d: unknown expectation %q", ErrInvalidPlan, i, s.Expect)
		}
	}
	return nil
}

// Encode writes p as YAML.
func (p *Plan) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}
