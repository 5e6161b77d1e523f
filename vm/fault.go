package vm

import (
	"defs"
	"limits"
	"mem"
	"stats"
)

// / Faultstats classifies resolved page faults. The D_STAT device does
// / not report it; it reports only trap.Diskstats.
var Faultstats struct {
	Cow    stats.Counter_t
	Swapin stats.Counter_t
	Stack  stats.Counter_t
	Zero   stats.Counter_t
}

/// Ecode_t bits mirror the fields a real x86-64 page-fault error code
/// carries: which access was attempted and in what privilege level.
type Ecode_t uint

const (
	EC_WRITE Ecode_t = 1 << 1 /// fault was a write
	EC_USER  Ecode_t = 1 << 2 /// fault occurred in user mode
)

/// Pgfault resolves a page fault at virtual address fa with the given
/// error-code bits. It grows the stack, resolves a copy-on-write, or
/// swaps a page back in, as the faulting region and the page's state
/// dictate.
func (vs *Vspace_t) Pgfault(fa uintptr, ecode Ecode_t) defs.Err_t {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	return vs.pgfault_locked(fa, ecode)
}

// pgfault_locked does the actual fault resolution; the pmap lock must
// already be held. Split out so Userdmap8_inner, which takes the lock
// around a whole multi-page copy, can fault pages in without
// recursively re-locking.
func (vs *Vspace_t) pgfault_locked(fa uintptr, ecode Ecode_t) defs.Err_t {
	if ecode&EC_USER == 0 {
		panic("kernel page fault")
	}

	r, idx, ok := vs.lookup(fa)
	if !ok {
		if vs.Stack != nil && fa < vs.Stack.Base {
			var gerr defs.Err_t
			r, idx, gerr = vs.growstack(fa)
			if gerr != 0 {
				return gerr
			}
			Faultstats.Stack.Inc()
		} else {
			return -defs.EFAULT
		}
	}

	p := &r.pages[idx]
	iswrite := ecode&EC_WRITE != 0
	if iswrite && !r.Writable {
		return -defs.EFAULT
	}

	if p.present {
		if !iswrite || !p.cow {
			// concurrent fault already resolved this, or a read
			// fault on an already-present page: nothing to do.
			return 0
		}
		return vs.resolvecow(r, idx)
	}

	if p.swapped {
		_, pa, ok := mem.Physmem.Swapin_excl(p.swapid, selfOwned(vs))
		if !ok {
			return -defs.ENOMEM
		}
		p.present = true
		p.swapped = false
		p.pa = pa
		p.writable = r.Writable
		p.cow = false
		markEvictable(vs, r, idx, uint32(pa>>PGSHIFT))
		Faultstats.Swapin.Inc()
		return 0
	}

	// never-mapped page: demand-zero.
	_, pa, ok := mem.Physmem.Refpg_new_excl(selfOwned(vs))
	if !ok {
		return -defs.ENOMEM
	}
	p.present = true
	p.pa = pa
	p.writable = r.Writable
	p.cow = false
	markEvictable(vs, r, idx, uint32(pa>>PGSHIFT))
	Faultstats.Zero.Inc()
	return 0
}

// growstack extends the stack region downward by as many pages as it
// takes to cover fa, as long as the whole stack stays within the
// configured maximum number of pages, implementing on-demand stack growth
// instead of a fixed-size stack.
func (vs *Vspace_t) growstack(fa uintptr) (*Region_t, int, defs.Err_t) {
	r := vs.Stack
	need := (r.Base - (fa &^ uintptr(PGOFFSET))) / uintptr(PGSIZE)
	if need == 0 {
		need = 1
	}
	if r.npages()+int(need) > limits.Syslimit.StackPages {
		return nil, 0, -defs.EFAULT
	}
	newpages := make([]vpi_t, int(need))
	r.pages = append(newpages, r.pages...)
	r.Base -= uintptr(need) * uintptr(PGSIZE)
	idx := r.pageidx(fa)
	return r, idx, 0
}

// resolvecow handles a write fault on a COW-marked present page: if
// this is the sole remaining owner of the frame it can simply reclaim
// write access; otherwise it copies the frame.
func (vs *Vspace_t) resolvecow(r *Region_t, idx int) defs.Err_t {
	Faultstats.Cow.Inc()
	p := &r.pages[idx]
	ppn := uint32(p.pa >> PGSHIFT)
	if mem.Physmem.Refcnt(p.pa) == 1 {
		p.cow = false
		p.writable = true
		markEvictable(vs, r, idx, ppn)
		return 0
	}
	unmarkEvictable(ppn)
	_, newpa, ok := mem.Physmem.Ppage_copy_excl(p.pa, selfOwned(vs))
	if !ok {
		return -defs.ENOMEM
	}
	mem.Physmem.Refdown(p.pa)
	p.pa = newpa
	p.cow = false
	p.writable = true
	markEvictable(vs, r, idx, uint32(newpa>>PGSHIFT))
	return 0
}
