package fd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"fs"
	"mem"
	"ustr"
	"vm"
)

// memdisk_t is a minimal in-memory fs.Disk_i, just enough to back a
// fresh Fs_t for exercising File_t without a real disk image.
type memdisk_t struct {
	blocks map[int][]uint8
}

func (d *memdisk_t) Start(req *fs.Bdev_req_t) bool {
	switch req.Cmd {
	case fs.BDEV_READ:
		b := req.Blks.FrontBlock()
		data, ok := d.blocks[b.Block]
		if !ok {
			data = make([]uint8, fs.BSIZE)
		}
		b.Data = make([]uint8, fs.BSIZE)
		copy(b.Data, data)
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			cp := make([]uint8, fs.BSIZE)
			copy(cp, b.Data)
			d.blocks[b.Block] = cp
			if b.Cb != nil {
				b.Done("Start")
			}
		}
	}
	return false
}

func (d *memdisk_t) Stats() string { return "" }

func init() {
	mem.Phys_init(64)
}

func mkTestFS(t *testing.T) *fs.Fs_t {
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

	sbdata := make([]uint8, fs.BSIZE)
	sb := &fs.Superblock_t{Data: sbdata}
	sb.SetSize(total)
	sb.SetNblocks(datablks)
	sb.SetBmapstart(bmapstart)
	sb.SetInodestart(inodestart)
	sb.SetSwapstart(swapstart)
	sb.SetLogstart(logstart)

	disk := &memdisk_t{blocks: map[int][]uint8{1: sbdata}}
	fsys := fs.MkFS(disk, sbdata)
	fsys.Recover()
	fsys.Mkroot()
	return fsys
}

func TestFileReadWriteRoundtrip(t *testing.T) {
	fsys := mkTestFS(t)
	path := ustr.MkUstrSlice([]byte("/data"))
	require.Equal(t, defs.Err_t(0), fsys.Addfile(path))
	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)

	f := MkFile(fsys, ip, true, true)

	var wb vm.Fakeubuf_t
	wb.Fake_init([]byte("payload"))
	n, werr := f.Write(&wb)
	require.Equal(t, defs.Err_t(0), werr)
	require.Equal(t, len("payload"), n)

	f2 := MkFile(fsys, ip, true, true)
	buf := make([]uint8, 32)
	var rb vm.Fakeubuf_t
	rb.Fake_init(buf)
	rn, rerr := f2.Read(&rb)
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, "payload", string(buf[:rn]))
}

func TestFileWriteOnlyRejectsRead(t *testing.T) {
	fsys := mkTestFS(t)
	path := ustr.MkUstrSlice([]byte("/wo"))
	require.Equal(t, defs.Err_t(0), fsys.Addfile(path))
	ip, err := fsys.Namei(path)
	require.Equal(t, defs.Err_t(0), err)

	f := MkFile(fsys, ip, false, true)
	var rb vm.Fakeubuf_t
	rb.Fake_init(make([]uint8, 8))
	_, rerr := f.Read(&rb)
	require.Equal(t, -defs.EACCES, rerr)
}

func TestPipeReadAfterWriteOrder(t *testing.T) {
	pipe := MkPipe(mem.Physmem)
	rend := MkPipeend(pipe, false)
	wend := MkPipeend(pipe, true)

	var wb vm.Fakeubuf_t
	wb.Fake_init([]byte("abc"))
	n, err := wend.Write(&wb)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 3, n)

	buf := make([]uint8, 3)
	var rb vm.Fakeubuf_t
	rb.Fake_init(buf)
	rn, rerr := rend.Read(&rb)
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, "abc", string(buf[:rn]))
}

func TestPipeReadReturnsZeroAtEOF(t *testing.T) {
	pipe := MkPipe(mem.Physmem)
	rend := MkPipeend(pipe, false)
	wend := MkPipeend(pipe, true)
	require.Equal(t, defs.Err_t(0), wend.Close())

	buf := make([]uint8, 4)
	var rb vm.Fakeubuf_t
	rb.Fake_init(buf)
	n, err := rend.Read(&rb)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 0, n)
}

func TestPipeWriteAfterReaderCloseReturnsEPIPE(t *testing.T) {
	pipe := MkPipe(mem.Physmem)
	rend := MkPipeend(pipe, false)
	wend := MkPipeend(pipe, true)
	require.Equal(t, defs.Err_t(0), rend.Close())

	var wb vm.Fakeubuf_t
	wb.Fake_init([]byte("x"))
	_, err := wend.Write(&wb)
	require.Equal(t, -defs.EPIPE, err)
}

func TestDevDispatchUnknownDeviceIsENXIO(t *testing.T) {
	save := Devtable[defs.D_CONSOLE]
	Devtable[defs.D_CONSOLE] = nil
	defer func() { Devtable[defs.D_CONSOLE] = save }()

	d := MkDev(defs.D_CONSOLE)
	var rb vm.Fakeubuf_t
	rb.Fake_init(make([]uint8, 4))
	_, err := d.Read(&rb)
	require.Equal(t, -defs.ENXIO, err)
}

func TestDevnullAlwaysEOFAndDiscards(t *testing.T) {
	var n Devnull_t
	var rb vm.Fakeubuf_t
	rb.Fake_init(make([]uint8, 4))
	rn, rerr := n.Read(&rb)
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, 0, rn)

	var wb vm.Fakeubuf_t
	wb.Fake_init([]byte("discard me"))
	wn, werr := n.Write(&wb)
	require.Equal(t, defs.Err_t(0), werr)
	require.Equal(t, len("discard me"), wn)
}

func TestCopyfdReopenBumpsPipeRefcount(t *testing.T) {
	pipe := MkPipe(mem.Physmem)
	wend := MkPipeend(pipe, true)
	f := &Fd_t{Fops: wend, Perms: FD_WRITE}

	nf, err := Copyfd(f)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 2, pipe.openwriters)
	require.Equal(t, defs.Err_t(0), f.Fops.Close())
	require.Equal(t, defs.Err_t(0), nf.Fops.Close())
}
