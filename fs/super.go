package fs

import "util"

// / Superblock_t is the on-disk superblock, immutable after format:
// / total size, data-block count, bitmap start, inode-file start,
// / swap-region start, log-region start. Six little-endian 32-bit
// / fields.
type Superblock_t struct {
	Data []uint8
}

const (
	sb_size = iota
	sb_nblocks
	sb_bmapstart
	sb_inodestart
	sb_swapstart
	sb_logstart
)

func (sb *Superblock_t) field(i int) int {
	return util.Readn(sb.Data, 4, i*4)
}

func (sb *Superblock_t) setfield(i, v int) {
	util.Writen(sb.Data, 4, i*4, v)
}

/// Size returns the total size of the disk, in blocks.
func (sb *Superblock_t) Size() int { return sb.field(sb_size) }

/// Nblocks returns the number of data blocks.
func (sb *Superblock_t) Nblocks() int { return sb.field(sb_nblocks) }

/// Bmapstart returns the starting block of the free bitmap.
func (sb *Superblock_t) Bmapstart() int { return sb.field(sb_bmapstart) }

/// Inodestart returns the starting block of the inode file.
func (sb *Superblock_t) Inodestart() int { return sb.field(sb_inodestart) }

/// Swapstart returns the starting block of the swap region.
func (sb *Superblock_t) Swapstart() int { return sb.field(sb_swapstart) }

/// Logstart returns the starting block of the log region.
func (sb *Superblock_t) Logstart() int { return sb.field(sb_logstart) }

/// SetSize records the total size of the disk, in blocks.
func (sb *Superblock_t) SetSize(n int) { sb.setfield(sb_size, n) }

/// SetNblocks records the number of data blocks.
func (sb *Superblock_t) SetNblocks(n int) { sb.setfield(sb_nblocks, n) }

/// SetBmapstart records the starting block of the free bitmap.
func (sb *Superblock_t) SetBmapstart(n int) { sb.setfield(sb_bmapstart, n) }

/// SetInodestart records the starting block of the inode file.
func (sb *Superblock_t) SetInodestart(n int) { sb.setfield(sb_inodestart, n) }

/// SetSwapstart records the starting block of the swap region.
func (sb *Superblock_t) SetSwapstart(n int) { sb.setfield(sb_swapstart, n) }

/// SetLogstart records the starting block of the log region.
func (sb *Superblock_t) SetLogstart(n int) { sb.setfield(sb_logstart, n) }
