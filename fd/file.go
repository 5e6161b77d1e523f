package fd

import (
	"sync"

	"defs"
	"fdops"
	"fs"
	"stat"
)

/// File_t is a regular-file descriptor backed by an inode. Off tracks
/// the next read/write position and is private to this descriptor (dup
/// and fork share the same File_t, and so the same offset, matching
/// the shared file_info a real kernel would index through).
type File_t struct {
	sync.Mutex
	Fs       *fs.Fs_t
	Ip       *fs.Inode_t
	Off      int
	Readable bool
	Writable bool
}

/// MkFile wraps ip as an open regular-file descriptor at offset 0.
func MkFile(fsys *fs.Fs_t, ip *fs.Inode_t, readable, writable bool) *File_t {
	return &File_t{Fs: fsys, Ip: ip, Readable: readable, Writable: writable}
}

func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if !f.Readable {
		return 0, -defs.EACCES
	}
	f.Lock()
	defer f.Unlock()

	buf := make([]uint8, dst.Remain())
	f.Fs.Locki(f.Ip)
	n, err := f.Fs.Readi(f.Ip, buf, f.Off, len(buf))
	f.Fs.Unlocki(f.Ip)
	if err != 0 {
		return 0, err
	}
	wrote, err := dst.Uiowrite(buf[:n])
	f.Off += wrote
	return wrote, err
}

func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !f.Writable {
		return 0, -defs.EACCES
	}
	f.Lock()
	defer f.Unlock()

	buf := make([]uint8, src.Remain())
	got, err := src.Uioread(buf)
	if err != 0 {
		return 0, err
	}
	f.Fs.Locki(f.Ip)
	n, err := f.Fs.Writei(f.Ip, buf[:got], f.Off)
	f.Fs.Unlocki(f.Ip)
	f.Off += n
	return n, err
}

func (f *File_t) Close() defs.Err_t {
	f.Fs.Iput(f.Ip)
	return 0
}

func (f *File_t) Reopen() defs.Err_t {
	f.Fs.Idup(f.Ip)
	return 0
}

func (f *File_t) Fstat(st *stat.Stat_t) defs.Err_t {
	f.Fs.Locki(f.Ip)
	st.Wino(uint(f.Ip.Inum))
	st.Wsize(uint(f.Ip.Size()))
	mode := uint(0)
	if f.Ip.Isdir() {
		mode = 1 << 14
	}
	st.Wmode(mode)
	f.Fs.Unlocki(f.Ip)
	return 0
}
