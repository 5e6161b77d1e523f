package fs

import "container/list"
import "fmt"
import "sync"

import "stats"

// BSIZE is the size of a disk block in bytes. It is independent of the
// physical page size: the buffer cache is its own layer, not backed by
// the physical allocator's frames.
const BSIZE = 512

const bdev_debug = false

// / Block_cb_i is implemented by callers wanting release callbacks.
type Block_cb_i interface {
	Relse(*Bdev_block_t, string)
}

// / blktype_t enumerates the types of blocks stored on disk.
type blktype_t int

const (
	DataBlk   blktype_t = 0  /// regular data block
	CommitBlk blktype_t = -1 /// log commit record
	RevokeBlk blktype_t = -2 /// log revoke record
)

// / Objref_t is a shared refcount used by both cached blocks and cached
// / inodes: each current user of the object holds one reference, and
// / the cache itself holds none. The object becomes eligible for
// / eviction once the count drops to zero.
type Objref_t struct {
	sync.Mutex
	count int
}

// / MkObjref creates a reference count initialized to one, the reference
// / of the caller that created the object.
func MkObjref() *Objref_t {
	return &Objref_t{count: 1}
}

// / Up increments the reference count.
func (o *Objref_t) Up() {
	o.Lock()
	o.count++
	o.Unlock()
}

// / Down decrements the reference count and reports whether it reached
// / zero.
func (o *Objref_t) Down() bool {
	o.Lock()
	defer o.Unlock()
	o.count--
	if o.count < 0 {
		panic("negative objref")
	}
	return o.count == 0
}

// / Count reports the current reference count, for tests and eviction
// / decisions.
func (o *Objref_t) Count() int {
	o.Lock()
	defer o.Unlock()
	return o.count
}

// / Bdev_block_t represents a cached disk block. At most one instance
// / exists per (device, block number) at any time.
type Bdev_block_t struct {
	sync.Mutex
	Block      int
	Type       blktype_t
	_try_evict bool
	valid      bool // Data has been filled from disk by Read
	Data       []uint8
	Ref        *Objref_t
	Name       string
	Disk       Disk_i
	Cb         Block_cb_i
}

// / Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1 /// write a block
	BDEV_READ            = 2 /// read a block
	BDEV_FLUSH           = 3 /// flush outstanding writes
)

// / BlkList_t wraps a list.List of block pointers.
type BlkList_t struct {
	l *list.List
	e *list.Element // iterator
}

// / MkBlkList creates an empty block list.
func MkBlkList() *BlkList_t {
	bl := &BlkList_t{}
	bl.l = list.New()
	return bl
}

// / Len returns the number of blocks in the list.
func (bl *BlkList_t) Len() int {
	return bl.l.Len()
}

// / PushBack appends a block to the list.
func (bl *BlkList_t) PushBack(b *Bdev_block_t) {
	bl.l.PushBack(b)
}

// / FrontBlock resets the iterator and returns the first block.
func (bl *BlkList_t) FrontBlock() *Bdev_block_t {
	if bl.l.Front() == nil {
		return nil
	}
	bl.e = bl.l.Front()
	return bl.e.Value.(*Bdev_block_t)
}

// / BackBlock returns the last block or panics if empty.
func (bl *BlkList_t) BackBlock() *Bdev_block_t {
	if bl.l.Back() == nil {
		panic("bl.Back: empty")
	}
	return bl.l.Back().Value.(*Bdev_block_t)
}

// / RemoveBlock removes the block with the given number.
func (bl *BlkList_t) RemoveBlock(block int) {
	var next *list.Element
	for e := bl.l.Front(); e != nil; e = next {
		next = e.Next()
		b := e.Value.(*Bdev_block_t)
		if b.Block == block {
			bl.l.Remove(e)
		}
	}
}

// / NextBlock advances the iterator and returns the next block.
func (bl *BlkList_t) NextBlock() *Bdev_block_t {
	if bl.e == nil {
		return nil
	}
	bl.e = bl.e.Next()
	if bl.e == nil {
		return nil
	}
	return bl.e.Value.(*Bdev_block_t)
}

// / Apply calls f for each block in the list.
func (bl *BlkList_t) Apply(f func(*Bdev_block_t)) {
	for b := bl.FrontBlock(); b != nil; b = bl.NextBlock() {
		f(b)
	}
}

// / Append adds all blocks from l to the end of bl.
func (bl *BlkList_t) Append(l *BlkList_t) {
	for b := l.FrontBlock(); b != nil; b = l.NextBlock() {
		bl.PushBack(b)
	}
}

// / Bdev_req_t describes a block device request.
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Blks  *BlkList_t
	AckCh chan bool
	Sync  bool
}

// / MkRequest allocates a new block request structure.
func MkRequest(blks *BlkList_t, cmd Bdevcmd_t, sync bool) *Bdev_req_t {
	ret := &Bdev_req_t{Blks: blks, AckCh: make(chan bool), Cmd: cmd, Sync: sync}
	return ret
}

// / Disk_i is the synchronous-completion block device the logging and
// / inode layers issue reads and writes through. The real IDE/ATA
// / driver backing it is an out-of-scope collaborator; ufs provides a
// / host-file-backed implementation for tests.
type Disk_i interface {
	Start(*Bdev_req_t) bool
	Stats() string
}

// / Key returns the lookup key for the block cache.
func (blk *Bdev_block_t) Key() int {
	return blk.Block
}

// / EvictFromCache is called before the block leaves the cache.
func (blk *Bdev_block_t) EvictFromCache() {}

// / EvictDone finalizes eviction by releasing the backing buffer.
func (blk *Bdev_block_t) EvictDone() {
	blk.Data = nil
}

// / Tryevict marks the block for eviction on release.
func (blk *Bdev_block_t) Tryevict() {
	blk._try_evict = true
}

// / Evictnow reports whether the block should be evicted.
func (blk *Bdev_block_t) Evictnow() bool {
	return blk._try_evict
}

// / Done releases a reference via the callback.
func (blk *Bdev_block_t) Done(s string) {
	if blk.Cb == nil {
		panic("Bdev_block_t.Done: no callback registered")
	}
	blk.Cb.Relse(blk, s)
}

// / bkey_t identifies a cached block by the disk it lives on and its
// / block number. A disk never aliases block numbers, so the pair is a
// / complete identity for the cache.
type bkey_t struct {
	d Disk_i
	b int
}

// / bcachesz bounds how many blocks stay resident before the least
// / recently used, unreferenced one is reclaimed — the same fixed-pool
// / discipline the physical page allocator and the inode cache both use.
const bcachesz = 512

// / blockcache_t is the single in-memory buffer cache: at most one
// / Bdev_block_t exists per (disk, block) at a time. Reference counting
// / rides on the Objref_t every cached block already carries (the same
// / convention Fs_t's icache uses for inodes); a bounded LRU list
// / reclaims blocks once their refcount drops to zero and the cache has
// / grown past its limit.
type blockcache_t struct {
	sync.Mutex
	m    map[bkey_t]*Bdev_block_t
	lru  *list.List
	elem map[bkey_t]*list.Element
}

var bcache = &blockcache_t{
	m:    map[bkey_t]*Bdev_block_t{},
	lru:  list.New(),
	elem: map[bkey_t]*list.Element{},
}

// / CacheStats_t counts buffer cache hits and misses. The D_STAT device
// / does not report it; it reports only trap.Diskstats.
type CacheStats_t struct {
	Hits   stats.Counter_t
	Misses stats.Counter_t
}

// / Cachestats is the system-wide buffer cache counter instance.
var Cachestats = &CacheStats_t{}

// get returns the resident block for k, creating and paging it in on
// first use. Every caller sharing k gets the same *Bdev_block_t and
// must hold its lock while reading or writing Data, since the buffer
// is now shared rather than private to one call.
func (bc *blockcache_t) get(k bkey_t, s string, cb Block_cb_i) *Bdev_block_t {
	bc.Lock()
	defer bc.Unlock()
	if b, ok := bc.m[k]; ok {
		Cachestats.Hits.Inc()
		b.Ref.Up()
		bc.lru.MoveToFront(bc.elem[k])
		return b
	}
	Cachestats.Misses.Inc()
	b := MkBlock(k.b, s, k.d, cb)
	b.New_page()
	bc.m[k] = b
	bc.elem[k] = bc.lru.PushFront(k)
	bc.evict_locked()
	return b
}

// release drops one reference to the block at k, making it eligible
// for reclamation once its refcount reaches zero, then reclaims
// least-recently-used eligible blocks until the cache fits bcachesz
// again.
func (bc *blockcache_t) release(k bkey_t) {
	bc.Lock()
	defer bc.Unlock()
	b, ok := bc.m[k]
	if !ok {
		return
	}
	if b.Ref.Down() {
		b.Tryevict()
	}
	bc.evict_locked()
}

// evict_locked must run with bc's lock held.
func (bc *blockcache_t) evict_locked() {
	for len(bc.m) > bcachesz {
		e := bc.lru.Back()
		if e == nil {
			return
		}
		k := e.Value.(bkey_t)
		b := bc.m[k]
		if !b.Evictnow() || b.Ref.Count() != 0 {
			// least-recently-touched entry is still in use; leave the
			// cache over-size rather than evict something live.
			return
		}
		b.EvictFromCache()
		delete(bc.m, k)
		delete(bc.elem, k)
		bc.lru.Remove(e)
		b.EvictDone()
	}
}

// / Brelse releases a reference obtained from MkBlock_newpage. Every
// / caller of MkBlock_newpage must Brelse the block exactly once when
// / done with it.
func Brelse(b *Bdev_block_t) {
	bcache.release(bkey_t{b.Disk, b.Block})
}

// / Write synchronously writes the block to disk.
func (b *Bdev_block_t) Write() {
	if bdev_debug {
		fmt.Printf("bdev_write %v %v\n", b.Block, b.Name)
	}
	l := MkBlkList()
	l.PushBack(b)
	req := MkRequest(l, BDEV_WRITE, true)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
}

// / Write_async writes the block to disk without waiting for completion.
func (b *Bdev_block_t) Write_async() {
	if bdev_debug {
		fmt.Printf("bdev_write_async %v %s\n", b.Block, b.Name)
	}
	l := MkBlkList()
	l.PushBack(b)
	req := MkRequest(l, BDEV_WRITE, false)
	b.Disk.Start(req)
}

// / Read fills the block from disk synchronously the first time it is
// / called on a cached block. Later calls leave Data as it is, so
// / changes made through the cache and not yet written home are kept.
func (b *Bdev_block_t) Read() {
	if b.valid {
		return
	}
	l := MkBlkList()
	l.PushBack(b)
	req := MkRequest(l, BDEV_READ, true)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
	b.valid = true
	if bdev_debug {
		fmt.Printf("bdev_read %v %v\n", b.Block, b.Name)
	}
}

// / New_page allocates the backing buffer for the block.
func (blk *Bdev_block_t) New_page() {
	blk.Data = make([]uint8, BSIZE)
}

// / MkBlock_newpage returns the single resident block for (d, block),
// / allocating its backing buffer the first time it is requested; every
// / later caller sees the same buffer and must hold its lock while
// / touching Data. Callers must release their hold with Brelse once
// / done, exactly once per MkBlock_newpage call.
func MkBlock_newpage(block int, s string, d Disk_i, cb Block_cb_i) *Bdev_block_t {
	return bcache.get(bkey_t{d, block}, s, cb)
}

// / MkBlock constructs a block without allocating its buffer.
func MkBlock(block int, s string, d Disk_i, cb Block_cb_i) *Bdev_block_t {
	b := &Bdev_block_t{}
	b.Block = block
	b.Name = s
	b.Disk = d
	b.Cb = cb
	b.Ref = MkObjref()
	return b
}
