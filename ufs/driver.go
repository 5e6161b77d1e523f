package ufs

import (
	"os"

	"golang.org/x/sys/unix"

	"fs"
)

// ahci_disk_t simulates a disk backed by a host file. Reads and writes
// use positioned I/O (pread/pwrite) rather than a shared seek cursor,
// so concurrent Start calls from different blocks never race on the
// file's offset the way Seek+Read/Write would.
type ahci_disk_t struct {
	f *os.File
}

// Start services a block device request.
func (ahci *ahci_disk_t) Start(req *fs.Bdev_req_t) bool {
	switch req.Cmd {
	case fs.BDEV_READ:
		if req.Blks.Len() != 1 {
			panic("read: too many blocks")
		}
		blk := req.Blks.FrontBlock()
		buf := make([]byte, fs.BSIZE)
		n, err := unix.Pread(int(ahci.f.Fd()), buf, int64(blk.Block*fs.BSIZE))
		if n != fs.BSIZE || err != nil {
			panic(err)
		}
		blk.Data = make([]uint8, fs.BSIZE)
		for i := range buf {
			blk.Data[i] = uint8(buf[i])
		}
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			buf := make([]byte, fs.BSIZE)
			for i := range buf {
				buf[i] = byte(b.Data[i])
			}
			n, err := unix.Pwrite(int(ahci.f.Fd()), buf, int64(b.Block*fs.BSIZE))
			if n != fs.BSIZE || err != nil {
				panic(err)
			}
			if b.Cb != nil {
				b.Done("Start")
			}
		}
	case fs.BDEV_FLUSH:
		if err := unix.Fsync(int(ahci.f.Fd())); err != nil {
			panic(err)
		}
	}
	return false
}

// Stats returns statistics for the disk.
func (ahci *ahci_disk_t) Stats() string {
	return ""
}

func (ahci *ahci_disk_t) close() {
	err := ahci.f.Close()
	if err != nil {
		panic(err)
	}
}
