// Package fs implements the on-disk inode filesystem (spec §4.8):
// superblock, inode/data bitmap allocation, inode table indexing,
// direct/indirect/double-indirect/triple-indirect block mapping,
// directories as a dense array of fixed-size entries, and mkfs-on-
// first-mount formatting.
//
// Grounded on biscuit/src/fs/super.go (Superblock_t: a handful of
// int-valued fields read/written at fixed word offsets into one block's
// backing buffer via fieldr/fieldw — reproduced here as superblock.go's
// Superblock, using this module's own util.Readn/Writen instead of
// super.go's unretrieved fieldr/fieldw helpers, which the same package
// doc comment on internal/util already earmarks for exactly this use)
// and biscuit/src/fs/blk.go (Bdev_block_t/BSIZE: a cached, disk-backed
// block abstraction — this kernel has no block cache (spec §4.10 is
// synchronous with no internal serialization), so fs talks to
// internal/blockdev.Device directly instead of through a Bdev_block_t
// cache layer). biscuit/src/fs's own inode.go was not among the
// retrieved files (confirmed: the package directory holds only blk.go,
// super.go, and go.mod), so the inode/bitmap/directory on-disk layouts
// (inode.go, bitmap.go, dir.go) are derived directly from spec §4.8's
// own field-by-field description rather than adapted from an unseen
// biscuit type.
package fs

import (
	"sync"

	"rvos/internal/blockdev"
	"rvos/internal/defs"
)

// RootInode is the inode id of the root directory (spec §4.8).
const RootInode = 0

// FS is a mounted inode filesystem: one Device, its superblock, and the
// region layout derived from it.
type FS struct {
	mu  sync.Mutex
	dev blockdev.Device
	sb  Superblock

	inodeBitmap bitmapRegion
	dataBitmap  bitmapRegion

	inodeTableStart uint64
	inodeTableLen   uint64
	dataStart       uint64
}

// Mount opens dev as an inode filesystem, formatting it with mkfs if
// block 0's magic does not match (spec §4.8 "Format check").
func Mount(dev blockdev.Device) (*FS, defs.Err_t) {
	f := &FS{dev: dev}

	var blk [blockdev.BlockSize]byte
	if err := dev.ReadBlock(0, blk[:]); err != 0 {
		return nil, err
	}
	sb := readSuperblock(blk[:])

	if sb.Magic != superblockMagic {
		if err := f.mkfs(dev); err != 0 {
			return nil, err
		}
		return f, 0
	}

	f.sb = sb
	f.layout()
	return f, 0
}

// layout derives every region's starting block from the superblock's
// two bitmap lengths (spec §4.8: "inode region starts at block 1+I+D";
// "data region starts at 1+I+D+inode_table_blocks").
func (f *FS) layout() {
	f.inodeBitmap = bitmapRegion{dev: f.dev, start: 1, numBlocks: f.sb.InodeBitmapBlocks}
	f.dataBitmap = bitmapRegion{dev: f.dev, start: 1 + f.sb.InodeBitmapBlocks, numBlocks: f.sb.DataBitmapBlocks}
	f.inodeTableStart = 1 + f.sb.InodeBitmapBlocks + f.sb.DataBitmapBlocks
	f.inodeTableLen = f.sb.InodeTableBlocks
	f.dataStart = f.inodeTableStart + f.inodeTableLen
}

// mkfs formats dev from scratch (spec §4.8 "Format check"): writes the
// superblock, zeroes both bitmap regions, reserves data index 0 (the
// "no block" value of an inode pointer), allocates inode 0 and one data
// block for root, and writes "."/".." both pointing at inode 0.
func (f *FS) mkfs(dev blockdev.Device) defs.Err_t {
	total := dev.NumBlocks()
	if total < 8 {
		return defs.ENOMEM
	}

	// A small, fixed bitmap sizing: one block of inode bitmap (8*512=4096
	// inodes) and enough data-bitmap blocks to cover every remaining
	// block, which is always an overestimate-safe upper bound.
	inodeBitmapBlocks := uint64(1)
	dataBitmapBlocks := (total + blockdev.BlockSize*8 - 1) / (blockdev.BlockSize * 8)
	if dataBitmapBlocks < 1 {
		dataBitmapBlocks = 1
	}
	inodeTableBlocks := (maxInodesForBitmap(inodeBitmapBlocks) + inodesPerBlock - 1) / inodesPerBlock

	f.sb = Superblock{
		Magic:             superblockMagic,
		InodeBitmapBlocks: inodeBitmapBlocks,
		DataBitmapBlocks:  dataBitmapBlocks,
		InodeTableBlocks:  inodeTableBlocks,
	}
	f.layout()

	var zero [blockdev.BlockSize]byte
	if err := f.writeSuperblock(); err != 0 {
		return err
	}
	for i := uint64(0); i < f.sb.InodeBitmapBlocks; i++ {
		if err := dev.WriteBlock(f.inodeBitmap.start+i, zero[:]); err != 0 {
			return err
		}
	}
	for i := uint64(0); i < f.sb.DataBitmapBlocks; i++ {
		if err := dev.WriteBlock(f.dataBitmap.start+i, zero[:]); err != 0 {
			return err
		}
	}
	for i := uint64(0); i < f.inodeTableLen; i++ {
		if err := dev.WriteBlock(f.inodeTableStart+i, zero[:]); err != 0 {
			return err
		}
	}

	rootInodeID, err := f.inodeBitmap.allocOne()
	if err != 0 || rootInodeID != RootInode {
		return defs.ENOMEM
	}
	// An inode pointer of 0 means "no block", so data index 0 is marked
	// used here and never handed out.
	if _, err := f.dataBitmap.allocOne(); err != 0 {
		return err
	}
	dataIdx, err := f.dataBitmap.allocOne()
	if err != 0 {
		return err
	}

	root := Inode{Type: defs.FtDir}
	root.Direct[0] = uint32(dataIdx)

	var dirBlock [blockdev.BlockSize]byte
	writeDirEnt(dirBlock[:], 0, dirEnt{InodeID: RootInode, Name: "."})
	writeDirEnt(dirBlock[:], 1, dirEnt{InodeID: RootInode, Name: ".."})
	root.Size = 2 * dirEntSize
	if err := dev.WriteBlock(f.dataBlockAddr(dataIdx), dirBlock[:]); err != 0 {
		return err
	}
	return f.writeInode(RootInode, &root)
}

func maxInodesForBitmap(bitmapBlocks uint64) uint64 {
	return bitmapBlocks * blockdev.BlockSize * 8
}

func (f *FS) writeSuperblock() defs.Err_t {
	var blk [blockdev.BlockSize]byte
	writeSuperblock(blk[:], f.sb)
	return f.dev.WriteBlock(0, blk[:])
}

func (f *FS) dataBlockAddr(idx uint64) uint64 {
	return f.dataStart + idx
}
