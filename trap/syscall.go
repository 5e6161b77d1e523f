package trap

import (
	"defs"
	"fd"
	"fs"
	"mem"
	"proc"
	"stat"
	"ustr"
)

// FS is the system-wide file system instance, wired by the composition
// root before any process runs.
var FS *fs.Fs_t

// Open-mode bits, additive with O_CREATE.
const (
	O_RDONLY = 0
	O_WRONLY = 1
	O_RDWR   = 2
	O_CREATE = 0x200
)

func sysFork(p *proc.Proc_t) int {
	child, err := p.Fork()
	if err != 0 {
		return int(err)
	}
	return child.Pid
}

func sysExit(p *proc.Proc_t, status int) {
	p.Exit(status)
}

func sysWait(p *proc.Proc_t) int {
	pid, _, err := p.Wait()
	if err != 0 {
		return int(err)
	}
	return pid
}

func sysKill(pid int) int {
	if err := proc.Kill(pid); err != 0 {
		return int(err)
	}
	return 0
}

func sysSbrk(p *proc.Proc_t, n int) int {
	old, err := p.Vs.Sbrk(n)
	if err != 0 {
		return int(err)
	}
	return int(old)
}

func sysCrashn(n int) int {
	FS.Crashn(n)
	return 0
}

// fdalloc finds the lowest free descriptor slot in p's table, installs
// nfd there, and returns its index, or -EMFILE if the table is full.
func fdalloc(p *proc.Proc_t, nfd *fd.Fd_t) int {
	for i, f := range p.Ofile {
		if f == nil {
			p.Ofile[i] = nfd
			return i
		}
	}
	return int(-defs.EMFILE)
}

func getfd(p *proc.Proc_t, fdn int) (*fd.Fd_t, defs.Err_t) {
	if fdn < 0 || fdn >= len(p.Ofile) || p.Ofile[fdn] == nil {
		return nil, -defs.EBADF
	}
	return p.Ofile[fdn], 0
}

func sysOpen(p *proc.Proc_t, pathva, mode int) int {
	Diskstats.Opens.Inc()
	path := readpath(p, pathva)

	creat := mode&O_CREATE != 0
	bare := mode == O_CREATE
	if bare {
		return int(-defs.EINVAL)
	}
	real := mode &^ O_CREATE

	ip, err := FS.Namei(path)
	if err == -defs.ENOENT && creat {
		if err := FS.Addfile(path); err != 0 {
			return int(err)
		}
		ip, err = FS.Namei(path)
		if err != 0 {
			return int(err)
		}
	} else if err != 0 {
		return int(err)
	}

	readable := real == O_RDONLY || real == O_RDWR
	writable := real == O_WRONLY || real == O_RDWR

	FS.Locki(ip)
	isdev := ip.Isdev()
	devid := ip.Devid()
	FS.Unlocki(ip)

	var nfd *fd.Fd_t
	if isdev {
		nfd = &fd.Fd_t{Fops: fd.MkDev(devid), Perms: fdperm(readable, writable)}
		FS.Iput(ip)
	} else {
		file := fd.MkFile(FS, ip, readable, writable)
		nfd = &fd.Fd_t{Fops: file, Perms: fdperm(readable, writable)}
	}
	fdn := fdalloc(p, nfd)
	if fdn < 0 {
		fd.Close_panic(nfd)
		return fdn
	}
	return fdn
}

func fdperm(readable, writable bool) int {
	perm := 0
	if readable {
		perm |= fd.FD_READ
	}
	if writable {
		perm |= fd.FD_WRITE
	}
	return perm
}

// readpath pulls a NUL-terminated path string out of user memory
// starting at pathva, bounded by the canonical path length limit.
func readpath(p *proc.Proc_t, pathva int) ustr.Ustr {
	const maxpath = 512
	buf := make([]uint8, maxpath)
	ub := p.Vs.Mkuserbuf(pathva, maxpath)
	n, _ := ub.Uioread(buf)
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return p.Cwd.Canonicalpath(ustr.MkUstrSlice(buf[:i]))
		}
	}
	return p.Cwd.Canonicalpath(ustr.MkUstrSlice(buf[:n]))
}

func sysRead(p *proc.Proc_t, fdn, bufva, n int) int {
	f, err := getfd(p, fdn)
	if err != 0 {
		return int(err)
	}
	if n <= 0 {
		return int(-defs.EINVAL)
	}
	ub := p.Vs.Mkuserbuf(bufva, n)
	got, err := f.Fops.Read(ub)
	if err != 0 {
		return int(err)
	}
	return got
}

func sysWrite(p *proc.Proc_t, fdn, bufva, n int) int {
	f, err := getfd(p, fdn)
	if err != 0 {
		return int(err)
	}
	if n <= 0 {
		return int(-defs.EINVAL)
	}
	ub := p.Vs.Mkuserbuf(bufva, n)
	wrote, err := f.Fops.Write(ub)
	if err != 0 {
		return int(err)
	}
	return wrote
}

func sysClose(p *proc.Proc_t, fdn int) int {
	f, err := getfd(p, fdn)
	if err != 0 {
		return int(err)
	}
	p.Ofile[fdn] = nil
	if err := f.Fops.Close(); err != 0 {
		return int(err)
	}
	return 0
}

func sysDup(p *proc.Proc_t, fdn int) int {
	f, err := getfd(p, fdn)
	if err != 0 {
		return int(err)
	}
	nfd, err := fd.Copyfd(f)
	if err != 0 {
		return int(err)
	}
	got := fdalloc(p, nfd)
	if got < 0 {
		fd.Close_panic(nfd)
	}
	return got
}

func sysFstat(p *proc.Proc_t, fdn, statva int) int {
	f, err := getfd(p, fdn)
	if err != 0 {
		return int(err)
	}
	var st stat.Stat_t
	if err := f.Fops.Fstat(&st); err != 0 {
		return int(err)
	}
	ub := p.Vs.Mkuserbuf(statva, len(st.Bytes()))
	if _, err := ub.Uiowrite(st.Bytes()); err != 0 {
		return int(err)
	}
	return 0
}

func sysPipe(p *proc.Proc_t, fdsva int) int {
	pipe := fd.MkPipe(mem.Physmem)
	rend := fd.MkPipeend(pipe, false)
	wend := fd.MkPipeend(pipe, true)
	rfd := &fd.Fd_t{Fops: rend, Perms: fd.FD_READ}
	wfd := &fd.Fd_t{Fops: wend, Perms: fd.FD_WRITE}

	ri := fdalloc(p, rfd)
	if ri < 0 {
		return ri
	}
	wi := fdalloc(p, wfd)
	if wi < 0 {
		p.Ofile[ri] = nil
		return wi
	}

	ub := p.Vs.Mkuserbuf(fdsva, 8)
	var packed [8]uint8
	packed[0] = uint8(ri)
	packed[4] = uint8(wi)
	if _, err := ub.Uiowrite(packed[:]); err != 0 {
		return int(err)
	}
	return 0
}
