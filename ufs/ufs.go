package ufs

import (
	"os"

	"defs"
	"fs"
	"limits"
	"ustr"
)

// Layout constants for a freshly formatted disk image: block 0 is
// unused (boot), block 1 is the superblock, then the free bitmap, the
// inode file, the data region, the swap region, and finally the log.
const (
	bootblk  = 0
	sbblk    = 1
	nbitmap  = 8 // covers 8*512*8 = 32768 data blocks worth of bitmap bits
	datablks = 8192
)

/// Ufs_t wraps a journaled, on-disk Fs_t plus the host file backing it,
/// for use by mkfs and by tests that want a real Disk_i without a
/// running kernel.
type Ufs_t struct {
	ahci *ahci_disk_t
	Fs   *fs.Fs_t
}

func blocks(disk *ahci_disk_t, n int) {
	zero := make([]byte, fs.BSIZE)
	for i := 0; i < n; i++ {
		if _, err := disk.f.Write(zero); err != nil {
			panic(err)
		}
	}
}

// MkDisk formats a fresh disk image at path, sized per the layout
// constants above, and returns it booted as a Ufs_t with an empty root
// directory at inode 1.
func MkDisk(path string) *Ufs_t {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	ahci := &ahci_disk_t{f: f}

	inodeblks := (limits.Syslimit.Ninode*2 + fs.BSIZE/64 - 1) / (fs.BSIZE / 64)
	swapblks := limits.Syslimit.SwapSlots * (4096 / fs.BSIZE)
	logblks := 1 + limits.Syslimit.LogSlots

	bmapstart := sbblk + 1
	inodestart := bmapstart + nbitmap
	swapstart := inodestart + inodeblks + datablks
	logstart := swapstart + swapblks
	total := logstart + logblks

	blocks(ahci, bootblk+1)           // block 0
	blocks(ahci, 1)                   // block 1, superblock (overwritten below)
	blocks(ahci, nbitmap)             // bitmap, all zero (free)
	blocks(ahci, inodeblks+datablks)  // inode file + data region
	blocks(ahci, swapblks)            // swap region
	blocks(ahci, logblks)             // log region

	sbdata := make([]uint8, fs.BSIZE)
	sb := &fs.Superblock_t{Data: sbdata}
	sb.SetSize(total)
	sb.SetNblocks(datablks)
	sb.SetBmapstart(bmapstart)
	sb.SetInodestart(inodestart)
	sb.SetSwapstart(swapstart)
	sb.SetLogstart(logstart)

	if _, err := ahci.f.WriteAt(sbdata, int64(sbblk*fs.BSIZE)); err != nil {
		panic(err)
	}

	fsys := fs.MkFS(ahci, sbdata)
	fsys.Recover()
	fsys.Mkroot()

	return &Ufs_t{ahci: ahci, Fs: fsys}
}

/// BootFS reopens a previously formatted disk image at path, reading
/// its superblock back off disk first.
func BootFS(path string) *Ufs_t {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		panic(err)
	}
	ahci := &ahci_disk_t{f: f}

	sbdata := make([]uint8, fs.BSIZE)
	if _, err := ahci.f.ReadAt(sbdata, int64(sbblk*fs.BSIZE)); err != nil {
		panic(err)
	}
	fsys := fs.MkFS(ahci, sbdata)
	fsys.Recover()
	return &Ufs_t{ahci: ahci, Fs: fsys}
}

/// Shutdown closes the backing disk image.
func (u *Ufs_t) Shutdown() {
	u.ahci.close()
}

/// AddFile creates path as an empty regular file.
func (u *Ufs_t) AddFile(path string) defs.Err_t {
	return u.Fs.Addfile(ustr.MkUstrSlice([]byte(path)))
}
