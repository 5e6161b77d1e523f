package vm

import (
	"bounds"
	"defs"
	"res"
)

/// Userbuf_t adapts a run of user virtual memory to the fdops.Userio_i
/// interface, so read/write syscalls can hand it to a pipe, file, or
/// device without knowing it is backed by user memory. Accesses fault
/// pages in as needed.
type Userbuf_t struct {
	userva int
	len    int
	off    int
	vs     *Vspace_t
}

/// ub_init initializes the buffer over [uva, uva+len) in vs.
func (ub *Userbuf_t) ub_init(vs *Vspace_t, uva, len int) {
	if len < 0 {
		panic("negative length")
	}
	ub.userva = uva
	ub.len = len
	ub.off = 0
	ub.vs = vs
}

/// Remain returns the number of unread/unwritten bytes left.
func (ub *Userbuf_t) Remain() int { return ub.len - ub.off }

/// Totalsz reports the buffer's total size.
func (ub *Userbuf_t) Totalsz() int { return ub.len }

/// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	ub.vs.Lock_pmap()
	defer ub.vs.Unlock_pmap()
	return ub.tx(dst, false)
}

/// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	ub.vs.Lock_pmap()
	defer ub.vs.Unlock_pmap()
	return ub.tx(src, true)
}

// tx copies min(len(buf), remaining) bytes, restartable on error since
// ub.off only advances for bytes actually copied.
func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_USERBUF_T__TX)) {
			return ret, -defs.ENOHEAP
		}
		va := ub.userva + ub.off
		ubuf, err := ub.vs.Userdmap8_inner(va, write)
		if err != 0 {
			return ret, err
		}
		if end := ub.off + len(ubuf); end > ub.len {
			ubuf = ubuf[:ub.len-ub.off]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

/// Mkuserbuf allocates a Userbuf_t over [uva, uva+len) of vs.
func (vs *Vspace_t) Mkuserbuf(uva, len int) *Userbuf_t {
	ub := &Userbuf_t{}
	ub.ub_init(vs, uva, len)
	return ub
}

/// Fakeubuf_t satisfies fdops.Userio_i over a plain kernel-memory
/// slice, for call sites (e.g. the initial process's argv) that need
/// to feed kernel-resident bytes through an interface written for user
/// memory.
type Fakeubuf_t struct {
	buf []uint8
	len int
}

/// Fake_init wraps buf.
func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.buf = buf
	fb.len = len(buf)
}

/// Remain returns the number of bytes left in the buffer.
func (fb *Fakeubuf_t) Remain() int { return len(fb.buf) }

/// Totalsz returns the buffer's original length.
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

func (fb *Fakeubuf_t) tx(buf []uint8, tobuf bool) (int, defs.Err_t) {
	var c int
	if tobuf {
		c = copy(fb.buf, buf)
	} else {
		c = copy(buf, fb.buf)
	}
	fb.buf = fb.buf[c:]
	return c, 0
}

/// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) { return fb.tx(dst, false) }

/// Uiowrite copies src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) { return fb.tx(src, true) }
