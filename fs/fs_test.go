package fs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ustr"
)

// memdisk_t is a Disk_i backed by a plain in-memory slice of blocks,
// used so fs package tests don't need a real host file the way the
// ufs package's ahci_disk_t does.
type memdisk_t struct {
	blocks map[int][]uint8
}

func mkmemdisk() *memdisk_t {
	return &memdisk_t{blocks: make(map[int][]uint8)}
}

func (d *memdisk_t) Start(req *Bdev_req_t) bool {
	switch req.Cmd {
	case BDEV_READ:
		b := req.Blks.FrontBlock()
		data, ok := d.blocks[b.Block]
		if !ok {
			data = make([]uint8, BSIZE)
		}
		b.Data = make([]uint8, BSIZE)
		copy(b.Data, data)
	case BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			cp := make([]uint8, BSIZE)
			copy(cp, b.Data)
			d.blocks[b.Block] = cp
			if b.Cb != nil {
				b.Done("Start")
			}
		}
	case BDEV_FLUSH:
	}
	return false
}

func (d *memdisk_t) Stats() string { return "" }

// mkTestFS formats a fresh, tiny file system over a memdisk_t and
// returns it booted with an empty root directory, the same sequence
// ufs.MkDisk runs against a real file.
func mkTestFS(t *testing.T) *Fs_t {
	const (
		nbitmap   = 2
		inodeblks = 4
		datablks  = 64
		swapblks  = 8
		logblks   = 1 + 19
	)
	bmapstart := 2
	inodestart := bmapstart + nbitmap
	swapstart := inodestart + inodeblks + datablks
	logstart := swapstart + swapblks
	total := logstart + logblks

	sbdata := make([]uint8, BSIZE)
	sb := &Superblock_t{Data: sbdata}
	sb.SetSize(total)
	sb.SetNblocks(datablks)
	sb.SetBmapstart(bmapstart)
	sb.SetInodestart(inodestart)
	sb.SetSwapstart(swapstart)
	sb.SetLogstart(logstart)

	disk := mkmemdisk()
	disk.blocks[1] = sbdata

	fsys := MkFS(disk, sbdata)
	fsys.Recover()
	fsys.Mkroot()
	return fsys
}

func TestMkrootCreatesEmptyDir(t *testing.T) {
	fsys := mkTestFS(t)
	ip, err := fsys.Namei(ustr.MkUstrRoot())
	require.Equal(t, defs.Err_t(0), err)
	fsys.Locki(ip)
	require.True(t, ip.Isdir())
	fsys.Unlocki(ip)
}

func TestAddfileReadWriteRoundtrip(t *testing.T) {
	fsys := mkTestFS(t)
	path := ustr.MkUstrSlice([]byte("/hello"))
	require.Equal(t, defs.Err_t(0), fsys.Addfile(path))

	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)
	require.False(t, ip.Isdir())

	fsys.Locki(ip)
	data := []uint8("hello, world")
	n, werr := fsys.Writei(ip, data, 0)
	require.Equal(t, defs.Err_t(0), werr)
	require.Equal(t, len(data), n)

	buf := make([]uint8, 64)
	rn, rerr := fsys.Readi(ip, buf, 0, len(buf))
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, data, buf[:rn])
	fsys.Unlocki(ip)
	fsys.Iput(ip)
}

func TestReadiTruncatesAtEOF(t *testing.T) {
	fsys := mkTestFS(t)
	path := ustr.MkUstrSlice([]byte("/short"))
	require.Equal(t, defs.Err_t(0), fsys.Addfile(path))
	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)

	fsys.Locki(ip)
	_, werr := fsys.Writei(ip, []uint8("abc"), 0)
	require.Equal(t, defs.Err_t(0), werr)

	buf := make([]uint8, 100)
	n, rerr := fsys.Readi(ip, buf, 0, len(buf))
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, 3, n)
	fsys.Unlocki(ip)
	fsys.Iput(ip)
}

func TestMknodRoutesDevid(t *testing.T) {
	fsys := mkTestFS(t)
	const fakeDevid = 7
	path := ustr.MkUstrSlice([]byte("/console"))
	require.Equal(t, defs.Err_t(0), fsys.Mknod(path, fakeDevid))

	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)
	fsys.Locki(ip)
	require.True(t, ip.Isdev())
	require.Equal(t, fakeDevid, ip.Devid())
	fsys.Unlocki(ip)
	fsys.Iput(ip)
}

func TestNextinumSkipsReservedInodes(t *testing.T) {
	fsys := mkTestFS(t)
	require.Equal(t, defs.Err_t(0), fsys.Addfile(ustr.MkUstrSlice([]byte("/a"))))
	ip, err := fsys.Namei(ustr.MkUstrSlice([]byte("/a")))
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, ip.Inum >= 2)
	fsys.Iput(ip)
}

func TestIdupBalancesAgainstTwoClose(t *testing.T) {
	fsys := mkTestFS(t)
	path := ustr.MkUstrSlice([]byte("/dup"))
	require.Equal(t, defs.Err_t(0), fsys.Addfile(path))

	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)
	fsys.Idup(ip)

	// Both references must be put back without underflow panics.
	fsys.Iput(ip)
	fsys.Iput(ip)
}

func TestNamelookupMissingFile(t *testing.T) {
	fsys := mkTestFS(t)
	_, err := fsys.Namei(ustr.MkUstrSlice([]byte("/nope")))
	require.Equal(t, -defs.ENOENT, err)
}

func TestRawBlockRoundtrip(t *testing.T) {
	fsys := mkTestFS(t)
	data := make([]uint8, BSIZE)
	for i := range data {
		data[i] = uint8(i)
	}
	require.Equal(t, defs.Err_t(0), fsys.RawBlockWrite(3, data))
	got, err := fsys.RawBlockRead(3)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, data, got)
}
