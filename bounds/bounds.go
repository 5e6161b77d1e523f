// Package bounds assigns a heap-pressure cost to the kernel's bulk
// user<->kernel copy paths, so callers can check with res.Resadd_noblock
// before committing to a copy that might not complete if the kernel runs
// low on free pages.
package bounds

/// Bounds_t names a bulk-copy call site.
type Bounds_t int

const (
	B_VSPACE_T_K2USER_INNER Bounds_t = iota
	B_VSPACE_T_USER2K_INNER
	B_VSPACE_T_VSPACEWRITETOVA
	B_USERBUF_T__TX
	B_FS_T_READI
	B_FS_T_WRITEI
	B_FS_T_BALLOC
	_bounds_max
)

// per-call-site worst case heap pages consumed by one iteration of the
// copy loop (mostly bookkeeping allocations, not the data page itself).
var costs = [_bounds_max]int{
	B_VSPACE_T_K2USER_INNER:    1,
	B_VSPACE_T_USER2K_INNER:    1,
	B_VSPACE_T_VSPACEWRITETOVA: 1,
	B_USERBUF_T__TX:            1,
	B_FS_T_READI:               1,
	B_FS_T_WRITEI:              2,
	B_FS_T_BALLOC:              1,
}

/// Bounds returns the heap cost associated with call site b.
func Bounds(b Bounds_t) int {
	return costs[b]
}
