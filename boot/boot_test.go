package boot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"mem"
	"proc"
	"trap"
)

// writeUserPath grows p's heap by one page and copies s, NUL-terminated,
// into it, returning the user virtual address sysOpen-style syscalls
// expect their path argument to point at.
func writeUserPath(t *testing.T, p *proc.Proc_t, s string) int {
	old, err := p.Vs.Sbrk(mem.PGSIZE)
	require.Equal(t, defs.Err_t(0), err)
	uva := int(old)

	buf := make([]uint8, len(s)+1)
	copy(buf, s)
	require.Equal(t, defs.Err_t(0), p.Vs.K2user(buf, uva))
	return uva
}

// TestBootOpenWriteReadCloseRoundtrip drives a freshly booted kernel
// through a full create/write/close/open/read/close cycle using only
// the same Syscall entry point user code would trap into, exercising
// mkfs, the journaled file system, the device table, and process
// bookkeeping together.
func TestBootOpenWriteReadCloseRoundtrip(t *testing.T) {
	diskpath := filepath.Join(t.TempDir(), "disk.img")
	k, rootfd := Boot(diskpath)
	defer k.Shutdown()

	img := make([]uint8, 16)
	p := proc.Userinit(img, 0, rootfd)

	pathva := writeUserPath(t, p, "/greeting")
	const O_WRONLY_CREATE = trap.O_WRONLY | trap.O_CREATE
	wfd := trap.Syscall(p, trap.SYS_OPEN, [6]int{pathva, O_WRONLY_CREATE})
	require.True(t, wfd >= 0)

	msg := "hello, kernel"
	msgva := writeUserPath(t, p, msg)
	n := trap.Syscall(p, trap.SYS_WRITE, [6]int{wfd, msgva, len(msg)})
	require.Equal(t, len(msg), n)

	require.Equal(t, 0, trap.Syscall(p, trap.SYS_CLOSE, [6]int{wfd}))

	pathva2 := writeUserPath(t, p, "/greeting")
	rfd := trap.Syscall(p, trap.SYS_OPEN, [6]int{pathva2, trap.O_RDONLY})
	require.True(t, rfd >= 0)

	readbuf, err := p.Vs.Sbrk(mem.PGSIZE)
	require.Equal(t, defs.Err_t(0), err)
	bufva := int(readbuf)
	rn := trap.Syscall(p, trap.SYS_READ, [6]int{rfd, bufva, len(msg) + 16})
	require.Equal(t, len(msg), rn)

	got, rerr := p.Vs.Userdmap8r(bufva)
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, msg, string(got[:rn]))

	require.Equal(t, 0, trap.Syscall(p, trap.SYS_CLOSE, [6]int{rfd}))
}

// TestBootConsoleWriteSucceeds exercises the device table's D_CONSOLE
// wiring through the same open/write/close syscall path.
func TestBootConsoleWriteSucceeds(t *testing.T) {
	diskpath := filepath.Join(t.TempDir(), "disk.img")
	k, rootfd := Boot(diskpath)
	defer k.Shutdown()

	img := make([]uint8, 16)
	p := proc.Userinit(img, 0, rootfd)

	pathva := writeUserPath(t, p, "/console")
	cfd := trap.Syscall(p, trap.SYS_OPEN, [6]int{pathva, trap.O_WRONLY})
	require.True(t, cfd >= 0)

	msg := "booted\n"
	msgva := writeUserPath(t, p, msg)
	n := trap.Syscall(p, trap.SYS_WRITE, [6]int{cfd, msgva, len(msg)})
	require.Equal(t, len(msg), n)

	require.Equal(t, 0, trap.Syscall(p, trap.SYS_CLOSE, [6]int{cfd}))
}
