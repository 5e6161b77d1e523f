package vm

import (
	"defs"
	"mem"
)

/// Vspacecopy_cow duplicates src into dst by sharing every present user
/// frame: both vspaces mark their copy of the page read-only and COW,
/// and the frame's reference count (and, if it is currently swapped
/// out, its swap-map entry) is incremented once per share.
func Vspacecopy_cow(dst, src *Vspace_t) defs.Err_t {
	src.Lock_pmap()
	defer src.Unlock_pmap()
	dst.Lock_pmap()
	defer dst.Unlock_pmap()

	dst.Code = copyregion(src.Code)
	dst.Heap = copyregion(src.Heap)
	dst.Stack = copyregion(src.Stack)

	for _, pair := range []struct{ s, d *Region_t }{
		{src.Code, dst.Code}, {src.Heap, dst.Heap}, {src.Stack, dst.Stack},
	} {
		if pair.s == nil {
			continue
		}
		for i := range pair.s.pages {
			sp := &pair.s.pages[i]
			dp := &pair.d.pages[i]
			*dp = *sp
			if !sp.present {
				continue
			}
			ppn := uint32(sp.pa >> PGSHIFT)
			if sp.writable {
				unmarkEvictable(ppn)
			}
			sp.cow = true
			sp.writable = false
			dp.cow = true
			dp.writable = false
			mem.Physmem.Refup(sp.pa)
		}
	}
	return 0
}

func copyregion(r *Region_t) *Region_t {
	if r == nil {
		return nil
	}
	nr := &Region_t{Kind: r.Kind, Base: r.Base, Writable: r.Writable}
	nr.pages = make([]vpi_t, len(r.pages))
	return nr
}

// active is the vspace most recently "installed" — the flat-memory
// stand-in for a loaded CR3. The trap dispatcher consults it when
// resolving a page fault for the currently running process.
var active *Vspace_t

/// Vspaceinstall records vs as the currently active address space.
/// There is no real page-table root to load into CR3; this only
/// tracks which process's mappings are current.
func Vspaceinstall(vs *Vspace_t) {
	active = vs
}

/// Active returns the vspace most recently installed.
func Active() *Vspace_t {
	return active
}

/// Vspaceinvalidate is a no-op: there is no TLB to flush in the flat
/// memory model.
func Vspaceinvalidate(vs *Vspace_t) {}

/// Vspacewritetova performs a kernel-side write of src into vs starting
/// at virtual address va, faulting pages in as needed. vs need not be
/// the currently installed address space — Vspaceloadcode uses it to
/// populate a code region before the process first runs.
func Vspacewritetova(vs *Vspace_t, va uintptr, src []uint8) defs.Err_t {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	off := 0
	for off < len(src) {
		cur := va + uintptr(off)
		r, idx, ok := vs.lookup(cur)
		if !ok {
			return -defs.EFAULT
		}
		p := &r.pages[idx]
		if !p.present {
			if err := vs.faultin_locked(r, idx); err != 0 {
				return err
			}
		}
		pg := mem.Physmem.Dmap(p.pa)
		pgoff := int(cur & uintptr(PGOFFSET))
		n := copy(pg[pgoff:], src[off:])
		off += n
	}
	return 0
}

// faultin_locked resolves a never-mapped page while the pmap lock is
// already held, for callers (Vspacewritetova, Vspaceloadcode) that
// populate memory directly rather than through a CPU-raised fault.
func (vs *Vspace_t) faultin_locked(r *Region_t, idx int) defs.Err_t {
	p := &r.pages[idx]
	if p.present {
		return 0
	}
	if p.swapped {
		_, pa, ok := mem.Physmem.Swapin_excl(p.swapid, selfOwned(vs))
		if !ok {
			return -defs.ENOMEM
		}
		p.present, p.swapped, p.pa = true, false, pa
		markEvictable(vs, r, idx, uint32(pa>>PGSHIFT))
		return 0
	}
	_, pa, ok := mem.Physmem.Refpg_new_excl(selfOwned(vs))
	if !ok {
		return -defs.ENOMEM
	}
	p.present, p.pa, p.writable = true, pa, r.Writable
	markEvictable(vs, r, idx, uint32(pa>>PGSHIFT))
	return 0
}

/// Vspaceloadcode reads an ELF-less raw code image into the code
/// region starting at its base. A real kernel parses ELF program
/// headers to place segments at arbitrary addresses and permissions;
/// parsing the binary format itself is not part of this layer, so the
/// caller supplies the already-extracted loadable bytes and entry
/// offset. The file system and a user-space loader produce that
/// binary; this function only maps it in.
func (vs *Vspace_t) Vspaceloadcode(img []uint8, entryoff int) (uintptr, defs.Err_t) {
	if vs.Code == nil {
		panic("vspaceloadcode: no code region")
	}
	if err := Vspacewritetova(vs, vs.Code.Base, img); err != 0 {
		return 0, err
	}
	return vs.Code.Base + uintptr(entryoff), 0
}

/// Uvmfree releases every present frame mapped by vs. Called when a
/// process exits.
func (vs *Vspace_t) Uvmfree() {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	for _, r := range []*Region_t{vs.Code, vs.Heap, vs.Stack} {
		if r == nil {
			continue
		}
		for i := range r.pages {
			p := &r.pages[i]
			if p.present {
				ppn := uint32(p.pa >> PGSHIFT)
				unmarkEvictable(ppn)
				mem.Physmem.Refdown(p.pa)
				p.present = false
			}
		}
	}
}
