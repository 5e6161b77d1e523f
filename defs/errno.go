package defs

/// Err_t is a kernel system-call error code. A non-zero value is always
/// returned to callers as its negation, matching the C convention this
/// kernel's syscalls mimic.
type Err_t int

/// Pid_t identifies a process table slot.
type Pid_t int32

/// Tid_t identifies a single thread of execution within a process. This
/// kernel does not support multiple threads per process, but the type is
/// kept distinct from Pid_t so that sleep-channel and trap-handler code
/// reads the same as in a kernel that does.
type Tid_t int32

// Error codes returned (negated) from system calls. Values are arbitrary
// but stable within this kernel; they are not meant to match any other
// kernel's errno numbering.
const (
	EFAULT       Err_t = 1
	ENOMEM       Err_t = 2
	EINVAL       Err_t = 3
	ENOENT       Err_t = 4
	EBADF        Err_t = 5
	ENOSPC       Err_t = 6
	EPIPE        Err_t = 7
	ESRCH        Err_t = 8
	ECHILD       Err_t = 9
	EEXIST       Err_t = 10
	ENAMETOOLONG Err_t = 11
	ENOHEAP      Err_t = 12
	ENOTDIR      Err_t = 13
	EISDIR       Err_t = 14
	EMFILE       Err_t = 15
	ENFILE       Err_t = 16
	EACCES       Err_t = 17
	ENXIO        Err_t = 18
	EIO          Err_t = 19
)

/// String names an error code for diagnostics.
func (e Err_t) String() string {
	switch e {
	case EFAULT:
		return "EFAULT"
	case ENOMEM:
		return "ENOMEM"
	case EINVAL:
		return "EINVAL"
	case ENOENT:
		return "ENOENT"
	case EBADF:
		return "EBADF"
	case ENOSPC:
		return "ENOSPC"
	case EPIPE:
		return "EPIPE"
	case ESRCH:
		return "ESRCH"
	case ECHILD:
		return "ECHILD"
	case EEXIST:
		return "EEXIST"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case ENOHEAP:
		return "ENOHEAP"
	case ENOTDIR:
		return "ENOTDIR"
	case EISDIR:
		return "EISDIR"
	case EMFILE:
		return "EMFILE"
	case ENFILE:
		return "ENFILE"
	case EACCES:
		return "EACCES"
	case ENXIO:
		return "ENXIO"
	case EIO:
		return "EIO"
	default:
		return "Err_t(0)"
	}
}
