package fs

import "defs"

// RawBlockRead reads one disk block by absolute block number through
// the buffer cache, bypassing the log: a block the cache already holds
// is returned as cached, including changes not yet written home.
// Test-only: the D_RAWDISK device dispatches here so a test can inspect
// a block's contents after a transaction commits.
func (fs *Fs_t) RawBlockRead(blkno int) ([]uint8, defs.Err_t) {
	if blkno < 0 || blkno >= fs.sb.Size() {
		return nil, -defs.EINVAL
	}
	b := MkBlock_newpage(blkno, "raw", fs.disk, nil)
	b.Lock()
	b.Read()
	data := append([]uint8(nil), b.Data...)
	b.Unlock()
	Brelse(b)
	return data, 0
}

// RawBlockWrite overwrites one disk block by absolute block number,
// bypassing the log. Test-only, for injecting corruption or staging
// state a transaction didn't produce.
func (fs *Fs_t) RawBlockWrite(blkno int, data []uint8) defs.Err_t {
	if blkno < 0 || blkno >= fs.sb.Size() {
		return -defs.EINVAL
	}
	if len(data) != BSIZE {
		return -defs.EINVAL
	}
	b := MkBlock_newpage(blkno, "raw", fs.disk, nil)
	b.Lock()
	copy(b.Data, data)
	b.Write()
	b.Unlock()
	Brelse(b)
	return 0
}
