package fs

import (
	"defs"
	"ustr"
)

// a directory is a file whose data is a flat array of dirent_t
// records: a two-byte inode number followed by a DIRSIZ-byte name,
// NUL-padded. inum==0 marks a free slot.
const direntSize = 2 + ustr.DIRSIZ

func direntPack(d []uint8, inum int, name ustr.Ustr) {
	d[0] = uint8(inum)
	d[1] = uint8(inum >> 8)
	for i := 0; i < ustr.DIRSIZ; i++ {
		if i < len(name) {
			d[2+i] = name[i]
		} else {
			d[2+i] = 0
		}
	}
}

func direntInum(d []uint8) int {
	return int(d[0]) | int(d[1])<<8
}

func direntName(d []uint8) ustr.Ustr {
	return ustr.MkUstrSlice(d[2 : 2+ustr.DIRSIZ])
}

/// Dirlookup scans dp's directory data for an entry named name and, if
/// found, returns its inode number. dp must be a locked directory
/// inode.
func (fs *Fs_t) Dirlookup(dp *Inode_t, name ustr.Ustr) (int, bool) {
	buf := make([]uint8, direntSize)
	n := dp.di.size
	for off := 0; off+direntSize <= n; off += direntSize {
		got, _ := fs.Readi(dp, buf, off, direntSize)
		if got != direntSize {
			break
		}
		inum := direntInum(buf)
		if inum == 0 {
			continue
		}
		if direntName(buf).Eq(name) {
			return inum, true
		}
	}
	return 0, false
}

// dirappend appends a (inum, name) entry to dp's directory data,
// reusing the first free slot if one exists. dp must be locked and
// the caller must be inside a transaction.
func (fs *Fs_t) dirappend(dp *Inode_t, inum int, name ustr.Ustr) defs.Err_t {
	buf := make([]uint8, direntSize)
	n := dp.di.size
	off := n
	for o := 0; o+direntSize <= n; o += direntSize {
		got, _ := fs.Readi(dp, buf, o, direntSize)
		if got == direntSize && direntInum(buf) == 0 {
			off = o
			break
		}
	}
	direntPack(buf, inum, name)
	_, err := fs.Writei(dp, buf, off)
	return err
}
