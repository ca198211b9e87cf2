package reserve

// Recorder is the minimal interface for recording reserved address ranges.
// Allocators call Add after every successful allocation; they never read the
// recorded ranges back.
type Recorder interface {
	// Add records [addr, addr+length) as reserved.
	Add(addr, length uintptr)
}
