package proc

import "sync"

// Spinlock_t stands in for a real interrupt-disabling spinlock. There
// is no hardware interrupt mask to push and pop in a goroutine-scheduled
// kernel, so the nesting counter and per-CPU interrupt-enable bit a
// real spinlock carries are dropped; a plain mutex gives the same
// mutual-exclusion guarantee every caller actually depends on.
type Spinlock_t struct {
	sync.Mutex
	Name string
}

/// MkSpinlock constructs a named spinlock, for diagnostics.
func MkSpinlock(name string) *Spinlock_t {
	return &Spinlock_t{Name: name}
}
