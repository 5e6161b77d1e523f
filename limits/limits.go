package limits

import "unsafe"
import "sync/atomic"

/// Lhits counts limit hits, for diagnostics.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks the fixed-size table capacities this kernel
/// enforces: NPROC processes, NOFILE descriptors per process, NFILE
/// global open files, NINODE cached inodes, swap slots, extents per
/// file, blocks per extent, transaction capacity, and stack-growth
/// bound.
type Syslimit_t struct {
	Nproc      int // NPROC: process table slots
	Nofile     int // NOFILE: fd table entries per process
	Nfile      Sysatomic_t // NFILE: global open-file table entries
	Ninode     int // NINODE: cached in-memory inodes
	SwapSlots  int // swap map entries
	Extents    int // extents per inode (6)
	BlksPerExt int // blocks per extent (32)
	LogSlots   int // transaction capacity (19)
	StackPages int // maximum stack size in pages, reached by fault-driven growth (10)
	PhysPages  int // 256MiB physical memory cap, in PGSIZE units
	Pipes      Sysatomic_t
}

/// Syslimit describes the configured system wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Nproc:      64,
		Nofile:     16,
		Nfile:      1024,
		Ninode:     200,
		SwapSlots:  2048,
		Extents:    6,
		BlksPerExt: 32,
		LogSlots:   19,
		StackPages: 10,
		PhysPages:  (256 << 20) >> 12,
		Pipes:      1024,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
