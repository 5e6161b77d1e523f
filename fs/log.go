package fs

import (
	"sync"

	"defs"
	"limits"
)

// Log_t implements the write-ahead log that makes multi-block file
// system mutations crash-atomic. The on-disk header records, for each
// occupied slot, which home block it belongs to; the slots themselves
// hold a copy of that block's new contents. A transaction is durable
// the instant the header is written with committed=1; replay after
// that point is idempotent, so a crash at any point before, during, or
// after commit leaves the file system in a block-consistent state.
type Log_t struct {
	sync.Mutex // one writer at a time; stands in for a sleep lock

	disk      Disk_i
	logstart  int
	loglen    int
	blknums   []int
	bufs      map[int][]uint8
	crashskip int // test hook: abort after this many block writes
}

// header layout within the first log block: a committed flag followed
// by the count of valid slots, followed by that many block numbers.
const (
	logh_committed = 0
	logh_n         = 1
	logh_blknoStart = 2
)

/// MkLog constructs a log manager over blocks [logstart, logstart+loglen)
/// of disk. loglen must be at least limits.Syslimit.LogSlots+1 (header
/// plus slots).
func MkLog(disk Disk_i, logstart, loglen int) *Log_t {
	if loglen < limits.Syslimit.LogSlots+1 {
		panic("MkLog: log region too small")
	}
	return &Log_t{
		disk:     disk,
		logstart: logstart,
		loglen:   loglen,
		bufs:     make(map[int][]uint8),
	}
}

// readblk returns the block still held: the caller is responsible for
// Brelsing it once done reading.
func (log *Log_t) readblk(blkno int) *Bdev_block_t {
	b := MkBlock_newpage(blkno, "log", log.disk, nil)
	b.Lock()
	b.Read()
	b.Unlock()
	return b
}

func (log *Log_t) writeheader(committed bool, blknums []int) {
	b := MkBlock_newpage(log.logstart, "loghdr", log.disk, nil)
	b.Lock()
	if committed {
		b.Data[logh_committed] = 1
	} else {
		b.Data[logh_committed] = 0
	}
	b.Data[logh_n] = uint8(len(blknums))
	for i, bn := range blknums {
		off := logh_blknoStart + i*4
		putn(b.Data, off, bn)
	}
	b.Write()
	b.Unlock()
	Brelse(b)
}

func putn(a []uint8, off, v int) {
	a[off] = uint8(v)
	a[off+1] = uint8(v >> 8)
	a[off+2] = uint8(v >> 16)
	a[off+3] = uint8(v >> 24)
}

func getn(a []uint8, off int) int {
	return int(a[off]) | int(a[off+1])<<8 | int(a[off+2])<<16 | int(a[off+3])<<24
}

/// Begin_tx acquires the log for a new transaction and zeros the header.
/// Only one transaction may be in flight at a time.
func (log *Log_t) Begin_tx() {
	log.Lock()
	log.blknums = nil
	log.bufs = make(map[int][]uint8)
	log.writeheader(false, nil)
}

/// Log_write stages b's current contents for journaling: it records
/// b's home block number in the header and copies its data into the
/// next free log slot, persisting the slot before the updated header
/// (so a crash between the two leaves the header's slot count
/// unchanged, and the half-written slot is simply never replayed).
func (log *Log_t) Log_write(b *Bdev_block_t) defs.Err_t {
	if _, ok := log.bufs[b.Block]; ok {
		// already staged this transaction; overwrite in place
		cp := make([]uint8, BSIZE)
		copy(cp, b.Data)
		log.bufs[b.Block] = cp
		for i, bn := range log.blknums {
			if bn == b.Block {
				slotblk := MkBlock_newpage(log.logstart+1+i, "logslot", log.disk, nil)
				slotblk.Lock()
				copy(slotblk.Data, cp)
				slotblk.Write()
				slotblk.Unlock()
				Brelse(slotblk)
			}
		}
		return 0
	}
	if len(log.blknums) >= limits.Syslimit.LogSlots {
		return -defs.ENOSPC
	}
	slot := len(log.blknums)
	if 1+slot >= log.loglen {
		panic("log_write: slot beyond log region")
	}
	log.blknums = append(log.blknums, b.Block)
	cp := make([]uint8, BSIZE)
	copy(cp, b.Data)
	log.bufs[b.Block] = cp

	slotblk := MkBlock_newpage(log.logstart+1+slot, "logslot", log.disk, nil)
	slotblk.Lock()
	copy(slotblk.Data, cp)
	slotblk.Write()
	slotblk.Unlock()
	Brelse(slotblk)
	log.writeheader(false, log.blknums)
	return 0
}

/// Commit_tx makes the transaction durable: mark committed, flush the
/// header, copy every log slot to its home block and flush, clear the
/// header, and release the log.
func (log *Log_t) Commit_tx() {
	if len(log.blknums) == 0 {
		log.Unlock()
		return
	}
	log.writeheader(true, log.blknums)
	for i, bn := range log.blknums {
		if log.crashskip > 0 && i >= log.crashskip {
			return // test hook: simulate a crash mid-replay, lock stays held
		}
		home := MkBlock_newpage(bn, "home", log.disk, nil)
		home.Lock()
		copy(home.Data, log.bufs[bn])
		home.Write()
		home.Unlock()
		Brelse(home)
	}
	log.writeheader(false, nil)
	log.blknums = nil
	log.bufs = make(map[int][]uint8)
	log.Unlock()
}

/// Crashn arranges for the next Commit_tx to stop after copying n home
/// blocks, leaving the log held; used only by crash-recovery tests.
func (log *Log_t) Crashn(n int) {
	log.crashskip = n
}

/// Recover replays a committed-but-unflushed transaction found at boot.
/// It must run once, before any other mutator touches the disk.
func (log *Log_t) Recover() {
	hdr := log.readblk(log.logstart)
	if hdr.Data[logh_committed] == 0 {
		Brelse(hdr)
		return
	}
	n := int(hdr.Data[logh_n])
	blknos := make([]int, n)
	for i := 0; i < n; i++ {
		blknos[i] = getn(hdr.Data, logh_blknoStart+i*4)
	}
	Brelse(hdr)
	for i, bn := range blknos {
		slot := log.readblk(log.logstart + 1 + i)
		home := MkBlock_newpage(bn, "home", log.disk, nil)
		home.Lock()
		copy(home.Data, slot.Data)
		home.Write()
		home.Unlock()
		Brelse(home)
		Brelse(slot)
	}
	log.writeheader(false, nil)
}
