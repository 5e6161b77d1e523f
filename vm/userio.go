package vm

import (
	"time"

	"bounds"
	"defs"
	"mem"
	"res"
	"ustr"
	"util"
)

/// Userdmap8_inner returns a slice mapping the user address va,
/// faulting the backing page in first if necessary. When k2u is true
/// the mapping is prepared for a kernel-initiated write (e.g. copying
/// syscall results back to the caller). The pmap lock must be held.
func (vs *Vspace_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	vs.Lockassert_pmap()
	uva := uintptr(va)
	voff := int(uva & uintptr(PGOFFSET))

	r, idx, ok := vs.lookup(uva)
	if !ok {
		if vs.Stack != nil && uva < vs.Stack.Base {
			var err defs.Err_t
			r, idx, err = vs.growstack(uva)
			if err != 0 {
				return nil, err
			}
		} else {
			return nil, -defs.EFAULT
		}
	}

	p := &r.pages[idx]
	ecode := EC_USER
	if k2u {
		ecode |= EC_WRITE
	}
	needfault := !p.present || (k2u && p.cow)
	if needfault {
		if err := vs.pgfault_locked(uva, ecode); err != 0 {
			return nil, err
		}
	}
	pg := mem.Physmem.Dmap(p.pa)
	return pg[voff:], 0
}

func (vs *Vspace_t) _userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	return vs.Userdmap8_inner(va, k2u)
}

/// Userdmap8r maps va for reading.
func (vs *Vspace_t) Userdmap8r(va int) ([]uint8, defs.Err_t) {
	return vs._userdmap8(va, false)
}

/// Userreadn reads an n-byte (n <= 8) little-endian value from va.
func (vs *Vspace_t) Userreadn(va, n int) (int, defs.Err_t) {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	return vs.userreadn_inner(va, n)
}

func (vs *Vspace_t) userreadn_inner(va, n int) (int, defs.Err_t) {
	vs.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = vs.Userdmap8_inner(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, 0
}

/// Userwriten writes the low n bytes of val to va.
func (vs *Vspace_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := vs.Userdmap8_inner(va+i, true)
		dst = t
		if err != 0 {
			return err
		}
		util.Writen(dst, n-i, 0, v)
	}
	return 0
}

/// Userstr copies a NUL-terminated string from user memory, up to
/// lenmax bytes.
func (vs *Vspace_t) Userstr(uva, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := vs.Userdmap8_inner(uva+i, false)
		if err != 0 {
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				return s, 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			return nil, -defs.ENAMETOOLONG
		}
	}
}

/// Usertimespec reads a {secs, nsecs} pair from user memory at va.
func (vs *Vspace_t) Usertimespec(va int) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := vs.Userreadn(va, 8)
	if err != 0 {
		return 0, zt, err
	}
	nsecs, err := vs.Userreadn(va+8, 8)
	if err != 0 {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, -defs.EINVAL
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	return tot, time.Unix(int64(secs), int64(nsecs)), 0
}

/// K2user copies src into user memory starting at uva.
func (vs *Vspace_t) K2user(src []uint8, uva int) defs.Err_t {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	return vs.K2user_inner(src, uva)
}

func (vs *Vspace_t) K2user_inner(src []uint8, uva int) defs.Err_t {
	vs.Lockassert_pmap()
	cnt := 0
	for cnt != len(src) {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_VSPACE_T_K2USER_INNER)) {
			return -defs.ENOHEAP
		}
		dst, err := vs.Userdmap8_inner(uva+cnt, true)
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		cnt += n
	}
	return 0
}

/// User2k copies len(dst) bytes from user memory at uva into dst.
func (vs *Vspace_t) User2k(dst []uint8, uva int) defs.Err_t {
	vs.Lock_pmap()
	defer vs.Unlock_pmap()
	return vs.User2k_inner(dst, uva)
}

func (vs *Vspace_t) User2k_inner(dst []uint8, uva int) defs.Err_t {
	vs.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_VSPACE_T_USER2K_INNER)) {
			return -defs.ENOHEAP
		}
		src, err := vs.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}
