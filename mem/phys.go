package mem

import "sync"

// EvictHooks_i lets the virtual address space layer learn when one of
// its resident pages has been chosen as an eviction victim, so it can
// clear the page's PTE and mark the owning vpi swapped before the frame
// is reused. The physical allocator never walks page tables itself — vm
// registers the pages it maps via Markevictable, and is called back
// here once a registered page is actually chosen.
type EvictHooks_i interface {
	Onevict(ppn uint32, swapid int)
}

var evicthooks EvictHooks_i

// Sethooks installs the vm-side eviction callback. Called once by the
// composition root, after vm is constructed and before the first fault
// that could exhaust physical memory.
func Sethooks(h EvictHooks_i) {
	evicthooks = h
}

var residentmu sync.Mutex
var resident = map[uint32]bool{}

// Markevictable registers ppn as a candidate for random-victim eviction.
// vm calls this exactly when a page becomes singly-owned and mapped
// (refcnt == 1); a COW-shared page must never be registered, since
// evicting it would have to be paid by every sharer and there is no
// single owner left to notify.
func Markevictable(ppn uint32) {
	residentmu.Lock()
	resident[ppn] = true
	residentmu.Unlock()
}

// Clearevictable unregisters ppn, e.g. because it gained a second owner
// via fork, or was unmapped.
func Clearevictable(ppn uint32) {
	residentmu.Lock()
	delete(resident, ppn)
	residentmu.Unlock()
}

// pick_victim chooses a random resident frame to evict, skipping any
// frame skip rejects (a caller allocating while holding one vspace's own
// lock must exclude that vspace's frames, or Onevict's callback would
// try to reacquire a lock its own goroutine already holds) and any frame
// currently pinned as a Ppage_copy source.
func (phys *Physmem_t) pick_victim(skip func(uint32) bool) (uint32, bool) {
	residentmu.Lock()
	defer residentmu.Unlock()
	var candidates []uint32
	for ppn := range resident {
		if skip != nil && skip(ppn) {
			continue
		}
		if phys.ishazard(ppn) {
			continue
		}
		candidates = append(candidates, ppn)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	ppn := candidates[phys.rng.intn(len(candidates))]
	delete(resident, ppn)
	return ppn, true
}

// evict picks a random resident page not rejected by skip, writes it to
// a fresh swap slot, and notifies vm so the page's sole owner stops
// treating it as present. It returns the freed frame's index.
func (phys *Physmem_t) evict(skip func(uint32) bool) (uint32, bool) {
	if phys.swapio == nil || evicthooks == nil {
		return 0, false
	}
	ppn, ok := phys.pick_victim(skip)
	if !ok {
		return 0, false
	}
	slot, ok := phys.swapio.Swapalloc()
	if !ok {
		Markevictable(ppn)
		return 0, false
	}
	if !phys.swapio.Swapout(slot, &phys.store[ppn]) {
		phys.swapio.Swapfree(slot)
		Markevictable(ppn)
		return 0, false
	}
	evicthooks.Onevict(ppn, slot)
	phys.frames[ppn].refcnt = 0
	phys.frames[ppn].swapped = false
	return ppn, true
}

func (phys *Physmem_t) popfree() (uint32, bool) {
	phys.Lock()
	defer phys.Unlock()
	if phys.freei == nilidx {
		return 0, false
	}
	idx := phys.freei
	phys.freei = phys.frames[idx].nexti
	phys.freelen--
	if phys.freelen < 0 {
		panic("negative free count")
	}
	phys.frames[idx].refcnt = 0
	return idx, true
}

func (phys *Physmem_t) pushfree(idx uint32) {
	phys.Lock()
	phys.frames[idx].nexti = phys.freei
	phys.freei = idx
	phys.freelen++
	phys.Unlock()
}

func (phys *Physmem_t) alloc(skip func(uint32) bool) (uint32, bool) {
	if idx, ok := phys.popfree(); ok {
		return idx, true
	}
	if idx, ok := phys.evict(skip); ok {
		return idx, true
	}
	return 0, false
}

/// Refpg_new allocates a zeroed page. Its refcount is set to 1.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	return phys.refpg_new(nil)
}

/// Refpg_new_excl is Refpg_new, but skip excludes frames from victim
/// selection — for a caller (vm, resolving a fault) that already holds
/// a vspace's own lock and must not let eviction pick one of that same
/// vspace's frames out from under it.
func (phys *Physmem_t) Refpg_new_excl(skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	return phys.refpg_new(skip)
}

func (phys *Physmem_t) refpg_new(skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	idx, ok := phys.alloc(skip)
	if !ok {
		return nil, 0, false
	}
	pg := &phys.store[idx]
	*pg = *Zeropg
	phys.frames[idx].refcnt = 1
	return pg, phys.pa(idx), true
}

/// Refpg_new_nozero allocates an uninitialized page with refcount 1.
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	return phys.refpg_new_nozero(nil)
}

func (phys *Physmem_t) refpg_new_nozero(skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	idx, ok := phys.alloc(skip)
	if !ok {
		return nil, 0, false
	}
	phys.frames[idx].refcnt = 1
	return &phys.store[idx], phys.pa(idx), true
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	idx := phys.idx(p)
	phys.Lock()
	defer phys.Unlock()
	return int(phys.frames[idx].refcnt)
}

/// Refup increments the reference count of a page. Two or more owners
/// makes the page ineligible for random-victim eviction until it drops
/// back to one: a shared COW page is never a swap candidate.
func (phys *Physmem_t) Refup(p Pa_t) {
	idx := phys.idx(p)
	phys.Lock()
	phys.frames[idx].refcnt++
	c := phys.frames[idx].refcnt
	phys.Unlock()
	if c <= 1 {
		panic("refup: page was not referenced")
	}
	if c == 2 {
		Clearevictable(idx)
	}
}

/// Refdown decrements the reference count of a page, returning it to
/// the free list once the count reaches zero. It returns true when the
/// page was freed.
func (phys *Physmem_t) Refdown(p Pa_t) bool {
	idx := phys.idx(p)
	phys.Lock()
	phys.frames[idx].refcnt--
	c := phys.frames[idx].refcnt
	phys.Unlock()
	if c < 0 {
		panic("refdown: negative reference count")
	}
	if c == 0 {
		Clearevictable(idx)
		phys.pushfree(idx)
		return true
	}
	return false
}

/// Dmap returns the byte-addressable page backing physical address p.
/// Unlike the real kernel's direct map, this is a plain slice index:
/// there is no MMU and no TLB to maintain.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := phys.idx(p)
	return &phys.store[idx]
}

/// Pin marks ppn as the source of an in-flight COW copy, preventing it
/// from being chosen as an eviction victim for the duration of the
/// copy. Only one COW copy may be in flight at a time: a single hazard
/// word, not a per-page pin bit, tracks it.
func (phys *Physmem_t) Pin(ppn uint32) {
	phys.cowmu.Lock()
	defer phys.cowmu.Unlock()
	if phys.cowppn != nilidx {
		panic("pin: a COW copy is already in flight")
	}
	phys.cowppn = ppn
}

/// Unpin releases the hazard set by Pin.
func (phys *Physmem_t) Unpin(p Pa_t) {
	idx := phys.idx(p)
	phys.cowmu.Lock()
	defer phys.cowmu.Unlock()
	if phys.cowppn != idx {
		panic("unpin: does not match pinned page")
	}
	phys.cowppn = nilidx
}

// ishazard reports whether ppn is currently pinned as a COW copy source
// and must not be handed to pick_victim.
func (phys *Physmem_t) ishazard(ppn uint32) bool {
	phys.cowmu.Lock()
	defer phys.cowmu.Unlock()
	return phys.cowppn == ppn
}

/// Swapin reads the page at swap slot slot back into a freshly
/// allocated frame, returning its address. The caller (vm, resolving a
/// page fault on a swapped-out vpi) is responsible for installing the
/// returned page into the faulting vspace.
func (phys *Physmem_t) Swapin(slot int) (*Pg_t, Pa_t, bool) {
	return phys.swapin(slot, nil)
}

/// Swapin_excl is Swapin, but skip excludes frames from victim selection
/// the same way Refpg_new_excl does.
func (phys *Physmem_t) Swapin_excl(slot int, skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	return phys.swapin(slot, skip)
}

func (phys *Physmem_t) swapin(slot int, skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	if phys.swapio == nil {
		panic("swapin: no swap backend installed")
	}
	idx, ok := phys.alloc(skip)
	if !ok {
		return nil, 0, false
	}
	pg := &phys.store[idx]
	if !phys.swapio.Swapin(slot, pg) {
		phys.frames[idx].refcnt = 0
		phys.pushfree(idx)
		return nil, 0, false
	}
	phys.swapio.Swapfree(slot)
	phys.frames[idx].refcnt = 1
	return pg, phys.pa(idx), true
}

/// Ppage_copy allocates a fresh page and copies src's contents into it,
/// returning the new page's address with refcount 1. Used to resolve a
/// write fault on a COW page once more than one process still shares
/// the original frame.
func (phys *Physmem_t) Ppage_copy(src Pa_t) (*Pg_t, Pa_t, bool) {
	return phys.ppage_copy(src, nil)
}

/// Ppage_copy_excl is Ppage_copy, but skip excludes frames from victim
/// selection the same way Refpg_new_excl does.
func (phys *Physmem_t) Ppage_copy_excl(src Pa_t, skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	return phys.ppage_copy(src, skip)
}

func (phys *Physmem_t) ppage_copy(src Pa_t, skip func(uint32) bool) (*Pg_t, Pa_t, bool) {
	srcidx := phys.idx(src)
	phys.Pin(srcidx)
	defer phys.Unpin(src)
	dst, p, ok := phys.refpg_new_nozero(skip)
	if !ok {
		return nil, 0, false
	}
	*dst = phys.store[srcidx]
	return dst, p, true
}

/// Pgcount reports the number of free frames, for diagnostics and tests.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}
