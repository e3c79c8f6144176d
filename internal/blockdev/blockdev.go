// Package blockdev implements the synchronous 512-byte block device
// interface the filesystem is built on (spec §4.10): read_block/
// write_block, no internal serialization — callers needing atomicity
// across several blocks (the bitmap allocator, directory writes) hold
// their own lock.
//
// Grounded on biscuit/src/pci/olddiski.go's Disk_i (a small
// Start/Complete/Intr interface one disk driver variant implements) and
// biscuit/src/fs/blk.go's later Disk_i (Start(*Bdev_req_t)/Stats, used
// asynchronously with an ack channel by the block cache); this kernel has
// no block cache and no interrupt-driven completion path (spec §4.10:
// "synchronous, no internal serialization"), so the interface here is
// reduced to the two calls a synchronous caller actually needs, matching
// the shape virtio_blk/testblock.rs in the original implementation
// exercises against its VirtBlk driver (write_blk(block_id, buf) on a
// 512-byte buffer).
package blockdev

import "rvos/internal/defs"

// BlockSize is the device's fixed block size (spec §4.10).
const BlockSize = 512

// Device is the block device capability every filesystem implementation
// is built against.
type Device interface {
	// ReadBlock fills buf (which must be BlockSize bytes) with block id's
	// contents.
	ReadBlock(id uint64, buf []byte) defs.Err_t
	// WriteBlock writes buf (which must be BlockSize bytes) to block id.
	WriteBlock(id uint64, buf []byte) defs.Err_t
	// NumBlocks reports the device's total block count.
	NumBlocks() uint64
}

func checkLen(buf []byte) defs.Err_t {
	if len(buf) != BlockSize {
		return defs.EINVAL
	}
	return 0
}
