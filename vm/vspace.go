// Package vm implements the per-process virtual address space: the
// code, heap, and stack regions, page-fault-driven stack growth, COW
// fork, and swap page-in. There is no real MMU or page
// table here — physical memory is the flat array mem provides, so a
// "page table" is just a per-region slice of per-page metadata, and
// vspaceinstall/vspaceinvalidate degenerate into bookkeeping instead of
// touching CR3 and the TLB.
package vm

import (
	"sync"

	"defs"
	"mem"
	"util"
)

/// PGSHIFT and PGSIZE mirror mem's page geometry so callers that only
/// import vm still see the constants they expect.
const PGSHIFT = mem.PGSHIFT
const PGSIZE = mem.PGSIZE
const PGOFFSET = mem.PGOFFSET

/// USERMIN is the lowest virtual address a user mapping may occupy.
const USERMIN = uintptr(0x1000)

/// kind_t names which of a vspace's three regions a page belongs to.
type kind_t int

const (
	RegCode kind_t = iota
	RegHeap
	RegStack
)

func (k kind_t) String() string {
	switch k {
	case RegCode:
		return "code"
	case RegHeap:
		return "heap"
	case RegStack:
		return "stack"
	default:
		return "?"
	}
}

/// vpi_t is one virtual page's metadata: whether it is resident, its
/// backing frame, and copy-on-write/swap state.
type vpi_t struct {
	present  bool
	writable bool
	cow      bool
	swapped  bool
	pa       mem.Pa_t
	swapid   int
}

/// Region_t is a contiguous run of virtual pages sharing one purpose.
/// Stack and heap regions grow; code does not.
type Region_t struct {
	Kind     kind_t
	Base     uintptr
	Writable bool
	pages    []vpi_t
}

func (r *Region_t) npages() int { return len(r.pages) }

func (r *Region_t) end() uintptr { return r.Base + uintptr(r.npages()*PGSIZE) }

func (r *Region_t) contains(va uintptr) bool {
	return va >= r.Base && va < r.end()
}

func (r *Region_t) pageidx(va uintptr) int {
	return int((va - r.Base) / uintptr(PGSIZE))
}

/// Vspace_t is one process's virtual address space: its three regions
/// plus the lock serializing page-fault resolution and region edits.
type Vspace_t struct {
	sync.Mutex
	Code  *Region_t
	Heap  *Region_t
	Stack *Region_t

	pgfltaken bool
}

var allmu sync.Mutex

// frameOwner records which vspace+region a frame belongs to, so
// mem's random eviction can call back into Onevict to clear the PTE.
var frameOwner = map[uint32]struct {
	vs  *Vspace_t
	reg *Region_t
	idx int
}{}

/// Lock_pmap acquires the vspace's lock and marks a page fault as being
/// handled, mirroring the discipline of a real kernel's pmap lock even
/// though there is no pmap here.
func (vs *Vspace_t) Lock_pmap() {
	vs.Lock()
	vs.pgfltaken = true
}

/// Unlock_pmap releases the lock taken by Lock_pmap.
func (vs *Vspace_t) Unlock_pmap() {
	vs.pgfltaken = false
	vs.Unlock()
}

/// Lockassert_pmap panics if the lock is not currently held.
func (vs *Vspace_t) Lockassert_pmap() {
	if !vs.pgfltaken {
		panic("pgfl lock must be held")
	}
}

/// Vspaceinit creates a fresh, empty address space.
func Vspaceinit() *Vspace_t {
	return &Vspace_t{}
}

/// Vspaceinitcode installs a code region at the lowest user address,
/// sized to hold the raw instruction bytes of the initial process.
func (vs *Vspace_t) Vspaceinitcode(size int) {
	vs.Code = &Region_t{Kind: RegCode, Base: USERMIN, Writable: false}
	vs.Code.pages = make([]vpi_t, util.Roundup(size, PGSIZE)/PGSIZE)
}

/// Vspaceinitstack reserves the top of user-space for the stack,
/// initially one page, able to grow down to Syslimit.StackPages pages
/// on demand via fault resolution.
func (vs *Vspace_t) Vspaceinitstack(topva uintptr) {
	base := topva - uintptr(PGSIZE)
	vs.Stack = &Region_t{Kind: RegStack, Base: base, Writable: true}
	vs.Stack.pages = make([]vpi_t, 1)
}

/// Vregionaddmap extends reg to cover [va, va+size) with the given
/// writable/user attributes, mapping fresh zero pages.
func (vs *Vspace_t) Vregionaddmap(reg *Region_t, va uintptr, size int, writable, user bool) defs.Err_t {
	if reg == nil {
		panic("nil region")
	}
	if va != reg.end() {
		panic("vregionaddmap: must extend contiguously")
	}
	n := util.Roundup(size, PGSIZE) / PGSIZE
	reg.Writable = writable
	reg.pages = append(reg.pages, make([]vpi_t, n)...)
	return 0
}

/// Heapgrow extends the heap region to newsz bytes beyond its base,
/// implementing sbrk. The new pages are not populated until faulted.
func (vs *Vspace_t) Heapgrow(newsz int) defs.Err_t {
	if vs.Heap == nil {
		vs.Heap = &Region_t{Kind: RegHeap, Base: 0, Writable: true}
	}
	cur := vs.Heap.end()
	if vs.Heap.npages() == 0 {
		vs.Heap.Base = USERMIN
		if vs.Code != nil {
			vs.Heap.Base = vs.Code.end()
		}
		cur = vs.Heap.Base
	}
	n := util.Roundup(newsz, PGSIZE)/PGSIZE - vs.Heap.npages()
	if n <= 0 {
		return 0
	}
	return vs.Vregionaddmap(vs.Heap, cur, n*PGSIZE, true, true)
}

/// Brk reports the current heap break: the first byte past the heap
/// region, or the would-be heap base if nothing has been grown yet.
func (vs *Vspace_t) Brk() uintptr {
	if vs.Heap == nil || vs.Heap.npages() == 0 {
		if vs.Code != nil {
			return vs.Code.end()
		}
		return USERMIN
	}
	return vs.Heap.end()
}

/// Sbrk grows the heap by n bytes (n may be 0 or negative; shrinking is
/// not supported, matching sbrk's historical one-directional contract
/// here) and returns the break before the call.
func (vs *Vspace_t) Sbrk(n int) (uintptr, defs.Err_t) {
	old := vs.Brk()
	if n <= 0 {
		return old, 0
	}
	if err := vs.Heapgrow(int(old-vs.heapBase()) + n); err != 0 {
		return 0, err
	}
	return old, 0
}

func (vs *Vspace_t) heapBase() uintptr {
	if vs.Heap != nil && vs.Heap.npages() > 0 {
		return vs.Heap.Base
	}
	if vs.Code != nil {
		return vs.Code.end()
	}
	return USERMIN
}

/// lookup finds the region and page index owning va, if any.
func (vs *Vspace_t) lookup(va uintptr) (*Region_t, int, bool) {
	for _, r := range []*Region_t{vs.Code, vs.Heap, vs.Stack} {
		if r == nil {
			continue
		}
		if r.contains(va) {
			return r, r.pageidx(va), true
		}
	}
	return nil, 0, false
}

/// markEvictable registers ppn as belonging to (vs, r, idx) and tells
/// mem it is a random-eviction candidate — but only when it is singly
/// owned (not mid-COW-share).
func markEvictable(vs *Vspace_t, r *Region_t, idx int, ppn uint32) {
	allmu.Lock()
	frameOwner[ppn] = struct {
		vs  *Vspace_t
		reg *Region_t
		idx int
	}{vs, r, idx}
	allmu.Unlock()
	mem.Markevictable(ppn)
}

func unmarkEvictable(ppn uint32) {
	allmu.Lock()
	delete(frameOwner, ppn)
	allmu.Unlock()
	mem.Clearevictable(ppn)
}

// selfOwned builds the exclusion predicate an allocation made while vs's
// own lock is held must pass to mem: if eviction picked one of vs's own
// frames as the victim, Onevict's callback would try to reacquire the
// lock this very goroutine already holds.
func selfOwned(vs *Vspace_t) func(uint32) bool {
	return func(ppn uint32) bool {
		allmu.Lock()
		owner, ok := frameOwner[ppn]
		allmu.Unlock()
		return ok && owner.vs == vs
	}
}

/// evicthook_t is the single mem.EvictHooks_i implementation installed
/// at boot; it looks the victim frame's owner up in frameOwner and
/// clears that owner's PTE. A single shared hook (rather than one per
/// vspace) is necessary because mem's eviction path has no a priori
/// way to know which vspace owns a candidate frame until it is chosen.
type evicthook_t struct{}

/// Evicthook is the mem.EvictHooks_i implementation wired by the
/// composition root via mem.Sethooks.
var Evicthook evicthook_t

func (evicthook_t) Onevict(ppn uint32, swapid int) {
	allmu.Lock()
	owner, ok := frameOwner[ppn]
	delete(frameOwner, ppn)
	allmu.Unlock()
	if !ok {
		return
	}
	owner.vs.Lock()
	p := &owner.reg.pages[owner.idx]
	if p.present && p.pa>>mem.PGSHIFT == mem.Pa_t(ppn) {
		p.present = false
		p.swapped = true
		p.swapid = swapid
		p.pa = 0
	}
	owner.vs.Unlock()
}
