package fs

import (
	"sync"

	"bounds"
	"defs"
	"hashtable"
	"limits"
	"mem"
	"res"
)

// dinode field offsets within a packed 64-byte on-disk inode record:
// type (i16) and devid (i16) share the first 4 bytes, size is a u32,
// and the extent table holds limits.Syslimit.Extents (start,len) u32
// pairs starting at byte 8. The nlink count is a u32 at byte 56, just
// past the last possible extent table, within the record's padding to
// 64 bytes.
const (
	di_type   = 0
	di_devid  = 2
	di_size   = 4
	di_extoff = 8
	di_nlink  = 56
)

const dinodeSize = 64

type itype_t int16

const (
	I_INVALID itype_t = 0
	I_FILE    itype_t = 1
	I_DIR     itype_t = 2
	I_DEV     itype_t = 3
)

// extent_t names a run of consecutive blocks: [Start, Start+Len).
type extent_t struct {
	Start int
	Len   int
}

// dinode_t is the in-memory, unpacked form of an on-disk inode record.
type dinode_t struct {
	size  int
	typ   itype_t
	devid int
	nlink int
	exts  [6]extent_t
}

func get16(d []uint8, off int) int {
	return int(d[off]) | int(d[off+1])<<8
}

func put16(d []uint8, off, v int) {
	d[off] = uint8(v)
	d[off+1] = uint8(v >> 8)
}

func (di *dinode_t) unpack(d []uint8) {
	di.typ = itype_t(get16(d, di_type))
	di.devid = get16(d, di_devid)
	di.size = getn(d, di_size)
	for i := 0; i < limits.Syslimit.Extents; i++ {
		off := di_extoff + i*8
		di.exts[i].Start = getn(d, off)
		di.exts[i].Len = getn(d, off+4)
	}
	di.nlink = getn(d, di_nlink)
}

func (di *dinode_t) pack(d []uint8) {
	put16(d, di_type, int(di.typ))
	put16(d, di_devid, di.devid)
	putn(d, di_size, di.size)
	for i := 0; i < limits.Syslimit.Extents; i++ {
		off := di_extoff + i*8
		putn(d, off, di.exts[i].Start)
		putn(d, off+4, di.exts[i].Len)
	}
	putn(d, di_nlink, di.nlink)
}

/// Inode_t is a shared, ref-counted, in-memory handle on a dinode. Its
/// dinode fields are read lazily on first lock, sharing the cached
/// block's Objref_t convention from blk.go.
type Inode_t struct {
	sync.Mutex
	Dev  int
	Inum int
	ref  *Objref_t
	di   dinode_t
	have bool // dinode has been read from disk
}

func ikey(dev, inum int) int {
	return int(uint64(dev)<<32 | uint64(uint32(inum)))
}

/// Isdir reports whether ip is a directory. ip must be locked.
func (ip *Inode_t) Isdir() bool { return ip.di.typ == I_DIR }

/// Isdev reports whether ip is a device special file. ip must be locked.
func (ip *Inode_t) Isdev() bool { return ip.di.typ == I_DEV }

/// Devid returns ip's device id, valid when Isdev is true.
func (ip *Inode_t) Devid() int { return ip.di.devid }

/// Size returns ip's recorded byte length. ip must be locked.
func (ip *Inode_t) Size() int { return ip.di.size }

/// Fs_t ties together the disk, superblock, log, buffer cache, swap
/// region, and inode cache into one file-system instance. Fs_t itself
/// implements mem.Swapio_i by delegating to swap, so the composition
/// root can hand a *Fs_t straight to mem.Physmem.Setswapio.
type Fs_t struct {
	disk   Disk_i
	sb     *Superblock_t
	log    *Log_t
	swap   *Swap_t
	icache *hashtable.Hashtable_t
}

/// MkFS constructs a file system over disk, given an already-populated
/// superblock. Callers must call Recover before any mutating call.
func MkFS(disk Disk_i, sbdata []uint8) *Fs_t {
	sb := &Superblock_t{Data: sbdata}
	loglen := sb.Size() - sb.Logstart()
	fs := &Fs_t{
		disk:   disk,
		sb:     sb,
		log:    MkLog(disk, sb.Logstart(), loglen),
		swap:   MkSwap(disk, sb.Swapstart()),
		icache: hashtable.MkHash(limits.Syslimit.Ninode),
	}
	return fs
}

/// Swapalloc reserves a free swap slot. Part of mem.Swapio_i.
func (fs *Fs_t) Swapalloc() (int, bool) { return fs.swap.Swapalloc() }

/// Swapfree releases a swap slot. Part of mem.Swapio_i.
func (fs *Fs_t) Swapfree(slot int) { fs.swap.Swapfree(slot) }

/// Swapout copies pg to slot. Part of mem.Swapio_i.
func (fs *Fs_t) Swapout(slot int, pg *mem.Pg_t) bool { return fs.swap.Swapout(slot, pg) }

/// Swapin reads slot back into pg. Part of mem.Swapio_i.
func (fs *Fs_t) Swapin(slot int, pg *mem.Pg_t) bool { return fs.swap.Swapin(slot, pg) }

/// Recover replays any committed-but-unflushed transaction. Must run
/// once at boot, before any other Fs_t method.
func (fs *Fs_t) Recover() {
	fs.log.Recover()
}

/// Crashn schedules a simulated crash after n journaled block writes,
/// for crash-recovery testing.
func (fs *Fs_t) Crashn(n int) {
	fs.log.Crashn(n)
}

func (fs *Fs_t) inodeblk(inum int) (int, int) {
	perblk := BSIZE / dinodeSize
	blk := fs.sb.Inodestart() + inum/perblk
	off := (inum % perblk) * dinodeSize
	return blk, off
}

/// Iget returns a shared handle on the inode numbered inum, creating a
/// cache entry and bumping its refcount. The dinode fields are not
/// read until Locki.
func (fs *Fs_t) Iget(inum int) *Inode_t {
	k := ikey(0, inum)
	if v, ok := fs.icache.Get(k); ok {
		ip := v.(*Inode_t)
		ip.ref.Up()
		return ip
	}
	ip := &Inode_t{Inum: inum, ref: MkObjref()}
	if old, inserted := fs.icache.Set(k, ip); !inserted {
		ip = old.(*Inode_t)
		ip.ref.Up()
		return ip
	}
	return ip
}

/// Locki locks ip and, on first lock, reads its dinode from the inode
/// file.
func (fs *Fs_t) Locki(ip *Inode_t) {
	ip.Lock()
	if ip.have {
		return
	}
	blk, off := fs.inodeblk(ip.Inum)
	b := MkBlock_newpage(blk, "inode", fs.disk, nil)
	b.Lock()
	b.Read()
	ip.di.unpack(b.Data[off : off+dinodeSize])
	b.Unlock()
	Brelse(b)
	ip.have = true
}

/// Unlocki releases ip's lock. It leaves ip's refcount and cache entry
/// as they are; Iput is what drops those.
func (fs *Fs_t) Unlocki(ip *Inode_t) {
	ip.Unlock()
}

/// Idup bumps ip's refcount for a new holder (dup, fork), mirroring Iget
/// without a cache lookup.
func (fs *Fs_t) Idup(ip *Inode_t) {
	ip.ref.Up()
}

/// Iput drops a reference to ip, evicting it from the cache once the
/// last reference is gone.
func (fs *Fs_t) Iput(ip *Inode_t) {
	if ip.ref.Down() {
		fs.icache.Del(ikey(0, ip.Inum))
	}
}

/// Readi copies up to n bytes starting at off from ip's data into dst,
/// walking extents in order and stopping at the earlier of n bytes or
/// ip's recorded size. ip must be locked.
func (fs *Fs_t) Readi(ip *Inode_t, dst []uint8, off, n int) (int, defs.Err_t) {
	if off >= ip.di.size {
		return 0, 0
	}
	if off+n > ip.di.size {
		n = ip.di.size - off
	}
	got := 0
	foff := off / BSIZE
	for ei := 0; got < n; ei++ {
		if ei >= limits.Syslimit.Extents {
			break
		}
		ext := ip.di.exts[ei]
		if ext.Len == 0 {
			break
		}
		if foff >= ext.Len {
			foff -= ext.Len
			continue
		}
		for bi := foff; bi < ext.Len && got < n; bi++ {
			if !res.Resadd_noblock(bounds.Bounds(bounds.B_FS_T_READI)) {
				return got, -defs.ENOHEAP
			}
			blkno := ext.Start + bi
			b := MkBlock_newpage(blkno, "data", fs.disk, nil)
			b.Lock()
			b.Read()
			boff := 0
			if bi == foff {
				boff = off % BSIZE
			}
			c := copy(dst[got:n], b.Data[boff:])
			b.Unlock()
			Brelse(b)
			got += c
		}
		foff = 0
	}
	return got, 0
}

/// Writei writes src to ip's data starting at off, allocating new
/// extents via balloc as needed, journaling every touched home block,
/// and persisting the updated dinode. ip must be locked. Returns
/// -EINVAL if the write would require a seventh extent.
func (fs *Fs_t) Writei(ip *Inode_t, src []uint8, off int) (int, defs.Err_t) {
	n := len(src)
	wrote := 0
	foff := off / BSIZE
	ei := 0
	for wrote < n {
		for ei < limits.Syslimit.Extents && ip.di.exts[ei].Len != 0 && foff >= ip.di.exts[ei].Len {
			foff -= ip.di.exts[ei].Len
			ei++
		}
		if ei >= limits.Syslimit.Extents {
			return wrote, -defs.EINVAL
		}
		if ip.di.exts[ei].Len == 0 {
			start, err := fs.balloc()
			if err != 0 {
				return wrote, err
			}
			ip.di.exts[ei] = extent_t{Start: start, Len: limits.Syslimit.BlksPerExt}
		}
		ext := ip.di.exts[ei]
		for bi := foff; bi < ext.Len && wrote < n; bi++ {
			if !res.Resadd_noblock(bounds.Bounds(bounds.B_FS_T_WRITEI)) {
				return wrote, -defs.ENOHEAP
			}
			blkno := ext.Start + bi
			b := MkBlock_newpage(blkno, "data", fs.disk, nil)
			b.Lock()
			b.Read() // read-modify-write: a partial block keeps its other bytes
			boff := 0
			if bi == foff {
				boff = off % BSIZE
			}
			c := copy(b.Data[boff:], src[wrote:])
			wrote += c
			fs.log.Log_write(b)
			b.Unlock()
			Brelse(b)
		}
		foff = 0
		ei++
	}
	if off+wrote > ip.di.size {
		ip.di.size = off + wrote
	}
	fs.writeback(ip)
	return wrote, 0
}

// writeback persists ip's dinode fields into its home block in the
// inode file, as part of the caller's open transaction.
func (fs *Fs_t) writeback(ip *Inode_t) {
	blk, off := fs.inodeblk(ip.Inum)
	b := MkBlock_newpage(blk, "inode", fs.disk, nil)
	b.Lock()
	b.Read()
	ip.di.pack(b.Data[off : off+dinodeSize])
	fs.log.Log_write(b)
	b.Unlock()
	Brelse(b)
}

/// balloc scans the free bitmap for the first all-zero 32-bit word,
/// claims the 32 blocks it represents, logs the bitmap block, and
/// returns the first block number of the new extent.
func (fs *Fs_t) balloc() (int, defs.Err_t) {
	nbmap := fs.sb.Inodestart() - fs.sb.Bmapstart()
	datastart := fs.sb.Swapstart() - fs.sb.Nblocks()
	for bi := 0; bi < nbmap; bi++ {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_FS_T_BALLOC)) {
			return 0, -defs.ENOHEAP
		}
		b := MkBlock_newpage(fs.sb.Bmapstart()+bi, "bitmap", fs.disk, nil)
		b.Lock()
		b.Read()
		found := -1
		for w := 0; w+4 <= len(b.Data); w += 4 {
			if getn(b.Data, w) == 0 {
				putn(b.Data, w, -1)
				fs.log.Log_write(b)
				found = w
				break
			}
		}
		b.Unlock()
		Brelse(b)
		if found >= 0 {
			wordidx := bi*(BSIZE/4) + found/4
			start := datastart + wordidx*limits.Syslimit.BlksPerExt
			if start < datastart || start+limits.Syslimit.BlksPerExt > fs.sb.Swapstart() {
				panic("balloc: extent outside data region")
			}
			return start, 0
		}
	}
	return 0, -defs.ENOSPC
}
