package alloc

import "sync"

// Locked serializes access to a DualAllocator with a mutex.
//
// EarlyAllocator assumes exclusive access for the duration of each call. Hosts
// that share it between goroutines wrap it here instead of locking at every
// call site.
type Locked struct {
	mu sync.Mutex
	a  DualAllocator
}

// NewLocked wraps a.
func NewLocked(a DualAllocator) *Locked {
	return &Locked{a: a}
}

// With runs fn while holding the lock, for callers that need several
// operations to observe a consistent state (e.g. reading all stats at once).
func (l *Locked) With(fn func(a DualAllocator)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.a)
}

func (l *Locked) Init(start, size uintptr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.Init(start, size)
}

func (l *Locked) AddMemory(start, size uintptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AddMemory(start, size)
}

func (l *Locked) Alloc(layout Layout) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(layout)
}

func (l *Locked) Dealloc(addr uintptr, layout Layout) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.Dealloc(addr, layout)
}

func (l *Locked) TotalBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.TotalBytes()
}

func (l *Locked) UsedBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.UsedBytes()
}

func (l *Locked) AvailableBytes() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AvailableBytes()
}

// PageSize does not lock; it is fixed at construction.
func (l *Locked) PageSize() uintptr {
	return l.a.PageSize()
}

func (l *Locked) AllocPages(numPages, align uintptr) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AllocPages(numPages, align)
}

func (l *Locked) DeallocPages(addr, numPages uintptr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.DeallocPages(addr, numPages)
}

func (l *Locked) TotalPages() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.TotalPages()
}

func (l *Locked) UsedPages() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.UsedPages()
}

func (l *Locked) AvailablePages() uintptr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AvailablePages()
}

var _ DualAllocator = (*Locked)(nil)
