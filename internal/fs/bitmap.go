package fs

import (
	"rvos/internal/blockdev"
	"rvos/internal/defs"
	"rvos/internal/klog"
)

const bitsPerBlock = blockdev.BlockSize * 8

// bitmapRegion is a run of consecutive blocks holding one bit per
// allocatable unit (an inode id or a data block index), starting at
// block start.
type bitmapRegion struct {
	dev       blockdev.Device
	start     uint64
	numBlocks uint64
}

// findFirstClear scans the region for the lowest-index clear bit (spec
// §4.8: "alloc scans ... for the lowest-index clear bit").
func (r bitmapRegion) findFirstClear() (idx uint64, ok bool, err defs.Err_t) {
	var blk [blockdev.BlockSize]byte
	for b := uint64(0); b < r.numBlocks; b++ {
		if e := r.dev.ReadBlock(r.start+b, blk[:]); e != 0 {
			return 0, false, e
		}
		for byteIdx, v := range blk {
			if v == 0xff {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				if v&(1<<uint(bit)) == 0 {
					return b*bitsPerBlock + uint64(byteIdx)*8 + uint64(bit), true, 0
				}
			}
		}
	}
	return 0, false, 0
}

// setBit marks idx allocated, reading, modifying, and writing back only
// the one enclosing block (spec §4.8).
func (r bitmapRegion) setBit(idx uint64) defs.Err_t {
	return r.updateBit(idx, true)
}

// clearBit marks idx free. Clearing an already-clear bit is logged, not
// treated as a hard error (spec §4.8: "absent-already bits are reported
// but not treated as hard errors").
func (r bitmapRegion) clearBit(idx uint64) defs.Err_t {
	blockNo, byteOff, bit := r.locate(idx)
	var blk [blockdev.BlockSize]byte
	if err := r.dev.ReadBlock(blockNo, blk[:]); err != 0 {
		return err
	}
	if blk[byteOff]&(1<<bit) == 0 {
		klog.Warn("fs: clearing already-clear bitmap bit %d", idx)
		return 0
	}
	blk[byteOff] &^= 1 << bit
	return r.dev.WriteBlock(blockNo, blk[:])
}

func (r bitmapRegion) updateBit(idx uint64, set bool) defs.Err_t {
	blockNo, byteOff, bit := r.locate(idx)
	var blk [blockdev.BlockSize]byte
	if err := r.dev.ReadBlock(blockNo, blk[:]); err != 0 {
		return err
	}
	if set {
		blk[byteOff] |= 1 << bit
	} else {
		blk[byteOff] &^= 1 << bit
	}
	return r.dev.WriteBlock(blockNo, blk[:])
}

func (r bitmapRegion) locate(idx uint64) (blockNo uint64, byteOff uint64, bit uint) {
	blockNo = r.start + idx/bitsPerBlock
	withinBlock := idx % bitsPerBlock
	byteOff = withinBlock / 8
	bit = uint(withinBlock % 8)
	return
}

// allocOne finds and sets the lowest-index clear bit, returning it. It
// returns defs.ENOMEM if the region is full.
func (r bitmapRegion) allocOne() (idx uint64, err defs.Err_t) {
	idx, ok, err := r.findFirstClear()
	if err != 0 {
		return 0, err
	}
	if !ok {
		return 0, defs.ENOMEM
	}
	if err := r.setBit(idx); err != 0 {
		return 0, err
	}
	return idx, 0
}

// allocInodeAndData implements spec §4.8's combined alloc(count):
// allocate one inode id and count data indices together, rolling back
// the inode allocation if fewer than count data bits are available.
func allocInodeAndData(inodeBitmap, dataBitmap bitmapRegion, count int) (inodeID uint64, dataIdx []uint64, err defs.Err_t) {
	inodeID, err = inodeBitmap.allocOne()
	if err != 0 {
		return 0, nil, err
	}

	dataIdx = make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		idx, e := dataBitmap.allocOne()
		if e != 0 {
			for _, done := range dataIdx {
				dataBitmap.clearBit(done)
			}
			inodeBitmap.clearBit(inodeID)
			return 0, nil, e
		}
		dataIdx = append(dataIdx, idx)
	}
	return inodeID, dataIdx, 0
}
