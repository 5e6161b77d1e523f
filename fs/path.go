package fs

import (
	"bpath"
	"defs"
	"limits"
	"ustr"
)

const rootinum = 1

/// Namei resolves path to an inode, starting at inode 1 for an
/// absolute path or at the root directory otherwise (this kernel has
/// no chdir, so every relative path is implicitly rooted too). Each
/// directory visited along the way is validated to actually be a
/// directory before its child is looked up.
func (fs *Fs_t) Namei(path ustr.Ustr) (*Inode_t, defs.Err_t) {
	path = bpath.Canonicalize(path)
	cur := fs.Iget(rootinum)
	rest := path
	for {
		elem, next, ok := rest.Skipelem()
		if !ok {
			return cur, 0
		}
		fs.Locki(cur)
		if cur.di.typ != I_DIR {
			fs.Unlocki(cur)
			fs.Iput(cur)
			return nil, -defs.ENOTDIR
		}
		inum, found := fs.Dirlookup(cur, elem)
		fs.Unlocki(cur)
		fs.Iput(cur)
		if !found {
			return nil, -defs.ENOENT
		}
		cur = fs.Iget(inum)
		rest = next
	}
}

/// Nameiparent resolves all but the last element of path, returning
/// the parent directory's locked-free inode and the final element's
/// name.
func (fs *Fs_t) Nameiparent(path ustr.Ustr) (*Inode_t, ustr.Ustr, defs.Err_t) {
	path = bpath.Canonicalize(path)
	elem, rest, ok := path.Skipelem()
	if !ok {
		return nil, nil, -defs.ENOENT
	}
	cur := fs.Iget(rootinum)
	for {
		next, rest2, ok := rest.Skipelem()
		if !ok {
			return cur, elem, 0
		}
		fs.Locki(cur)
		if cur.di.typ != I_DIR {
			fs.Unlocki(cur)
			fs.Iput(cur)
			return nil, nil, -defs.ENOTDIR
		}
		inum, found := fs.Dirlookup(cur, elem)
		fs.Unlocki(cur)
		fs.Iput(cur)
		if !found {
			return nil, nil, -defs.ENOENT
		}
		cur = fs.Iget(inum)
		elem = next
		rest = rest2
	}
}

// allocInode appends a fresh dinode with one pre-allocated extent to
// the inode file, returning its inode number. Must run inside the
// caller's transaction.
func (fs *Fs_t) allocInode(typ itype_t) (int, defs.Err_t) {
	start, err := fs.balloc()
	if err != 0 {
		return 0, err
	}
	inum := fs.nextinum()
	ip := fs.Iget(inum)
	fs.Locki(ip)
	ip.di.typ = typ
	ip.di.nlink = 1
	ip.di.size = 0
	ip.di.exts[0] = extent_t{Start: start, Len: limits.Syslimit.BlksPerExt}
	fs.writeback(ip)
	fs.Unlocki(ip)
	fs.Iput(ip)
	return inum, 0
}

/// Mkroot formats inode 1 as an empty root directory. Called once by
/// mkfs against a freshly zeroed disk image, before any Namei call.
func (fs *Fs_t) Mkroot() {
	fs.log.Begin_tx()
	defer fs.log.Commit_tx()

	start, err := fs.balloc()
	if err != 0 {
		panic("mkroot: balloc")
	}
	ip := fs.Iget(rootinum)
	fs.Locki(ip)
	ip.di.typ = I_DIR
	ip.di.nlink = 1
	ip.di.size = 0
	ip.di.exts[0] = extent_t{Start: start, Len: limits.Syslimit.BlksPerExt}
	fs.writeback(ip)
	fs.Unlocki(ip)
	fs.Iput(ip)
}

// nextinum scans the inode file for the first never-used slot. The
// scan skips inode 0 (never handed out) and inode 1 (the root), so new
// files start at 2.
func (fs *Fs_t) nextinum() int {
	perblk := BSIZE / dinodeSize
	nblk := fs.sb.Swapstart() - fs.sb.Nblocks() - fs.sb.Inodestart()
	for blk := 0; blk < nblk; blk++ {
		b := MkBlock_newpage(fs.sb.Inodestart()+blk, "inode", fs.disk, nil)
		b.Lock()
		b.Read()
		found := -1
		for slot := 0; slot < perblk; slot++ {
			inum := blk*perblk + slot
			if inum < 2 {
				continue
			}
			off := slot * dinodeSize
			if get16(b.Data, off+di_type) == int(I_INVALID) {
				found = inum
				break
			}
		}
		b.Unlock()
		Brelse(b)
		if found >= 0 {
			return found
		}
	}
	panic("nextinum: inode file exhausted")
}

/// Mknod creates a device special file named by the last element of
/// path, routing future readi/writei calls through devid.
func (fs *Fs_t) Mknod(path ustr.Ustr, devid int) defs.Err_t {
	dp, name, err := fs.Nameiparent(path)
	if err != 0 {
		return err
	}
	defer fs.Iput(dp)

	fs.log.Begin_tx()
	defer fs.log.Commit_tx()

	inum, err := fs.allocInode(I_DEV)
	if err != 0 {
		return err
	}
	ip := fs.Iget(inum)
	fs.Locki(ip)
	ip.di.devid = devid
	fs.writeback(ip)
	fs.Unlocki(ip)
	fs.Iput(ip)

	fs.Locki(dp)
	defer fs.Unlocki(dp)
	return fs.dirappend(dp, inum, name)
}

/// Addfile creates a new regular file named by the last element of
/// path inside its parent directory, in one transaction: a fresh
/// dinode (with one pre-allocated extent) is appended to the inode
/// file, then a directory entry is appended to the parent.
func (fs *Fs_t) Addfile(path ustr.Ustr) defs.Err_t {
	dp, name, err := fs.Nameiparent(path)
	if err != 0 {
		return err
	}
	defer fs.Iput(dp)

	fs.log.Begin_tx()
	defer fs.log.Commit_tx()

	inum, err := fs.allocInode(I_FILE)
	if err != 0 {
		return err
	}
	fs.Locki(dp)
	defer fs.Unlocki(dp)
	return fs.dirappend(dp, inum, name)
}
