// Package boot wires the independently testable packages (mem, vm, fs,
// proc, fd, trap) into one running kernel instance. A real kernel's
// entry point does this after the bootloader, the E820 memory map, and
// paging setup hand off control; here there is no hardware to hand off
// from, so Boot plays that role directly against a host-file-backed
// disk image.
package boot

import (
	"defs"
	"fd"
	"limits"
	"mem"
	"proc"
	"trap"
	"ufs"
	"ustr"
	"vm"
)

// Kern_t holds the wired-together system, returned by Boot so a test
// can drive syscalls against it and shut it down cleanly afterward.
type Kern_t struct {
	Ufs *ufs.Ufs_t
}

// Boot formats a fresh disk image at diskpath, wires the physical
// allocator, virtual memory, file system, device table, and process
// table together, and starts the scheduler goroutine. It returns the
// live kernel and a root Fd_t suitable for Userinit's working
// directory.
func Boot(diskpath string) (*Kern_t, *fd.Fd_t) {
	mem.Phys_init(limits.Syslimit.PhysPages)
	mem.Sethooks(vm.Evicthook)

	u := ufs.MkDisk(diskpath)
	mem.Physmem.Setswapio(u.Fs)
	trap.FS = u.Fs

	if err := u.Fs.Mknod(ustr.MkUstrSlice([]byte("/console")), defs.D_CONSOLE); err != 0 {
		panic("boot: mknod console")
	}

	fd.Devtable[defs.D_CONSOLE] = fd.Console_t{}
	fd.Devtable[defs.D_DEVNULL] = fd.Devnull_t{}
	fd.Devtable[defs.D_STAT] = fd.MkStatdev(&trap.Diskstats)
	fd.Devtable[defs.D_RAWDISK] = fd.MkRawdisk(u.Fs, 0)

	rootip, err := u.Fs.Namei(ustr.MkUstrRoot())
	if err != 0 {
		panic("boot: namei /")
	}
	rootfile := fd.MkFile(u.Fs, rootip, true, false)
	rootfd := &fd.Fd_t{Fops: rootfile, Perms: fd.FD_READ}

	go proc.Scheduler()

	return &Kern_t{Ufs: u}, rootfd
}

// Shutdown closes the backing disk image.
func (k *Kern_t) Shutdown() {
	k.Ufs.Shutdown()
}
