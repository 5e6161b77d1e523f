// Package fdops defines the interface every open-file backing (regular
// file, pipe, or device) implements so the file-descriptor layer can
// dispatch read/write/close uniformly.
package fdops

import "defs"
import "stat"

/// Userio_i abstracts a source or destination for a read/write so that
/// fdops implementations never need to know whether the other end is a
/// contiguous kernel buffer, a scattered user mapping, or a pipe's
/// circular buffer.
type Userio_i interface {
	// Uioread copies up to len(dst) bytes into dst, returning the count
	// actually copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	// Uiowrite copies up to len(src) bytes from src, returning the count
	// actually copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	// Remain reports how many bytes are left to transfer.
	Remain() int
	// Totalsz reports the size of the operation as a whole.
	Totalsz() int
}

/// Fdops_i is implemented by anything reachable from a file descriptor:
/// an inode-backed regular file, a device, or a pipe end.
type Fdops_i interface {
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Close() defs.Err_t
	// Reopen is called when a descriptor is duplicated (dup, fork) so the
	// backing object can bump whatever reference count it tracks.
	Reopen() defs.Err_t
	Fstat(*stat.Stat_t) defs.Err_t
}

/// Ready_t is a bitmask of poll-readiness conditions.
type Ready_t uint

const (
	R_READ  Ready_t = 1 << 0
	R_WRITE Ready_t = 1 << 1
	R_ERROR Ready_t = 1 << 2
)

/// Pollmsg_t describes one waiter's interest for a device poll.
type Pollmsg_t struct {
	Events Ready_t
}

/// Pollable_i is implemented by device fdops that support poll.
type Pollable_i interface {
	Poll(pm Pollmsg_t) (Ready_t, defs.Err_t)
}
