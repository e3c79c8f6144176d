package fs

import (
	"rvos/internal/blockdev"
	"rvos/internal/defs"
	"rvos/internal/util"
)

// inodeSize is fixed at 64 bytes (spec §4.8: "eight inodes per 512-byte
// block"). inodesPerBlock follows directly from that.
const (
	inodeSize      = 64
	inodesPerBlock = blockdev.BlockSize / inodeSize

	numDirect = 12

	ptrSize      = 4
	ptrsPerBlock = blockdev.BlockSize / ptrSize // 128 indirect pointers/block
)

// Logical-block-index boundaries of the direct/indirect/double-indirect/
// triple-indirect regions (spec §4.8's block-mapping table).
const (
	directEnd         = numDirect
	indirectEnd       = directEnd + ptrsPerBlock
	doubleIndirectEnd = indirectEnd + ptrsPerBlock*ptrsPerBlock
)

// typeShift/sizeMask implement the bit-packed type+size field: spec §4.8
// fixes the inode record at 64 bytes while also implying 4-byte block
// pointers (128 pointers in one 512-byte indirect block), which leaves no
// room for a separate multi-byte type field alongside 15 full-width
// direct/indirect/double/triple pointers. The top byte of one combined
// uint32 carries the type, the low 24 bits carry the file size — a
// 16 MiB ceiling, ample for a kernel's own test files.
const (
	sizeMask  = 0x00ff_ffff
	typeShift = 24
)

// Inode is the in-memory form of one 64-byte on-disk inode record.
type Inode struct {
	Type defs.FileType_t
	Size uint32

	Direct         [numDirect]uint32
	Indirect       uint32
	DoubleIndirect uint32
	TripleIndirect uint32
}

// inodeAddr locates inode id's 64-byte record (spec §4.8: block =
// 1+I+D+n/8, byte offset = (n%8)*64; I and D are already folded into
// f.inodeTableStart by layout()).
func (f *FS) inodeAddr(id uint64) (block uint64, byteOff int) {
	block = f.inodeTableStart + id/inodesPerBlock
	byteOff = int(id%inodesPerBlock) * inodeSize
	return
}

func encodeInode(in *Inode) [inodeSize]byte {
	var buf [inodeSize]byte
	packed := (uint32(in.Type) << typeShift) | (in.Size & sizeMask)
	util.Writen(buf[:], 4, 0, int(packed))
	for i, d := range in.Direct {
		util.Writen(buf[:], 4, 4+i*ptrSize, int(d))
	}
	base := 4 + numDirect*ptrSize
	util.Writen(buf[:], 4, base, int(in.Indirect))
	util.Writen(buf[:], 4, base+4, int(in.DoubleIndirect))
	util.Writen(buf[:], 4, base+8, int(in.TripleIndirect))
	return buf
}

func decodeInode(buf []byte) Inode {
	var in Inode
	packed := uint32(util.Readn(buf, 4, 0))
	in.Type = defs.FileType_t(packed >> typeShift)
	in.Size = packed & sizeMask
	for i := range in.Direct {
		in.Direct[i] = uint32(util.Readn(buf, 4, 4+i*ptrSize))
	}
	base := 4 + numDirect*ptrSize
	in.Indirect = uint32(util.Readn(buf, 4, base))
	in.DoubleIndirect = uint32(util.Readn(buf, 4, base+4))
	in.TripleIndirect = uint32(util.Readn(buf, 4, base+8))
	return in
}

// readInode loads inode id's record (spec §4.8: block = 1+I+D+n/8, byte
// offset = (n%8)*64 within that block — I and D folded into
// f.inodeTableStart here since layout() already added them).
func (f *FS) readInode(id uint64) (*Inode, defs.Err_t) {
	block, off := f.inodeAddr(id)
	var blk [blockdev.BlockSize]byte
	if err := f.dev.ReadBlock(block, blk[:]); err != 0 {
		return nil, err
	}
	in := decodeInode(blk[off : off+inodeSize])
	return &in, 0
}

func (f *FS) writeInode(id uint64, in *Inode) defs.Err_t {
	block, off := f.inodeAddr(id)
	var blk [blockdev.BlockSize]byte
	if err := f.dev.ReadBlock(block, blk[:]); err != 0 {
		return err
	}
	enc := encodeInode(in)
	copy(blk[off:off+inodeSize], enc[:])
	return f.dev.WriteBlock(block, blk[:])
}

// readPtr/writePtr access one 4-byte pointer slot within an indirect
// block (spec §4.8: "128 pointers per 512-byte indirect block").
func (f *FS) readPtr(block uint64, slot int) (uint32, defs.Err_t) {
	var blk [blockdev.BlockSize]byte
	if err := f.dev.ReadBlock(block, blk[:]); err != 0 {
		return 0, err
	}
	return uint32(util.Readn(blk[:], 4, slot*ptrSize)), 0
}

func (f *FS) writePtr(block uint64, slot int, val uint32) defs.Err_t {
	var blk [blockdev.BlockSize]byte
	if err := f.dev.ReadBlock(block, blk[:]); err != 0 {
		return err
	}
	util.Writen(blk[:], 4, slot*ptrSize, int(val))
	return f.dev.WriteBlock(block, blk[:])
}

// allocZeroedDataBlock allocates one data-bitmap index and zeroes its
// backing block, used whenever a hole is filled in on write.
func (f *FS) allocZeroedDataBlock() (uint32, defs.Err_t) {
	idx, err := f.dataBitmap.allocOne()
	if err != 0 {
		return 0, err
	}
	var zero [blockdev.BlockSize]byte
	if err := f.dev.WriteBlock(f.dataBlockAddr(idx), zero[:]); err != 0 {
		return 0, err
	}
	return uint32(idx), 0
}

// blockForRead resolves logical block L to a physical block address,
// returning ok=false for a hole (never allocated) rather than an error.
func (f *FS) blockForRead(in *Inode, l int) (addr uint64, ok bool, err defs.Err_t) {
	idx, ok, err := f.blockIndexForRead(in, l)
	if !ok || err != 0 {
		return 0, ok, err
	}
	return f.dataBlockAddr(uint64(idx)), true, 0
}

func (f *FS) blockIndexForRead(in *Inode, l int) (idx uint32, ok bool, err defs.Err_t) {
	switch {
	case l < directEnd:
		idx = in.Direct[l]
	case l < indirectEnd:
		if in.Indirect == 0 {
			return 0, false, 0
		}
		idx, err = f.readPtr(f.dataBlockAddr(uint64(in.Indirect)), l-directEnd)
		if err != 0 {
			return 0, false, err
		}
	case l < doubleIndirectEnd:
		if in.DoubleIndirect == 0 {
			return 0, false, 0
		}
		rel := l - indirectEnd
		outer := rel / ptrsPerBlock
		inner := rel % ptrsPerBlock
		midPtr, err := f.readPtr(f.dataBlockAddr(uint64(in.DoubleIndirect)), outer)
		if err != 0 {
			return 0, false, err
		}
		if midPtr == 0 {
			return 0, false, 0
		}
		idx, err = f.readPtr(f.dataBlockAddr(uint64(midPtr)), inner)
		if err != 0 {
			return 0, false, err
		}
	default:
		if in.TripleIndirect == 0 {
			return 0, false, 0
		}
		rel := l - doubleIndirectEnd
		outer := rel / (ptrsPerBlock * ptrsPerBlock)
		mid := (rel / ptrsPerBlock) % ptrsPerBlock
		inner := rel % ptrsPerBlock
		outerPtr, err := f.readPtr(f.dataBlockAddr(uint64(in.TripleIndirect)), outer)
		if err != 0 || outerPtr == 0 {
			return 0, false, err
		}
		midPtr, err := f.readPtr(f.dataBlockAddr(uint64(outerPtr)), mid)
		if err != 0 || midPtr == 0 {
			return 0, false, err
		}
		idx, err = f.readPtr(f.dataBlockAddr(uint64(midPtr)), inner)
		if err != 0 {
			return 0, false, err
		}
	}
	return idx, idx != 0, 0
}

// blockForWrite resolves logical block L to a physical block address,
// allocating any hole (leaf and, for indirect levels, the interior
// pointer blocks too) along the way. in is mutated in place and must be
// persisted by the caller via writeInode.
func (f *FS) blockForWrite(in *Inode, l int) (uint64, defs.Err_t) {
	switch {
	case l < directEnd:
		if in.Direct[l] == 0 {
			idx, err := f.allocZeroedDataBlock()
			if err != 0 {
				return 0, err
			}
			in.Direct[l] = idx
		}
		return f.dataBlockAddr(uint64(in.Direct[l])), 0

	case l < indirectEnd:
		if err := f.ensurePtrBlock(&in.Indirect); err != 0 {
			return 0, err
		}
		return f.resolveLeaf(in.Indirect, l-directEnd)

	case l < doubleIndirectEnd:
		if err := f.ensurePtrBlock(&in.DoubleIndirect); err != 0 {
			return 0, err
		}
		rel := l - indirectEnd
		outer := rel / ptrsPerBlock
		inner := rel % ptrsPerBlock
		mid, err := f.readPtr(f.dataBlockAddr(uint64(in.DoubleIndirect)), outer)
		if err != 0 {
			return 0, err
		}
		if mid == 0 {
			mid, err = f.allocZeroedDataBlock()
			if err != 0 {
				return 0, err
			}
			if err := f.writePtr(f.dataBlockAddr(uint64(in.DoubleIndirect)), outer, mid); err != 0 {
				return 0, err
			}
		}
		return f.resolveLeaf(mid, inner)

	default:
		if err := f.ensurePtrBlock(&in.TripleIndirect); err != 0 {
			return 0, err
		}
		rel := l - doubleIndirectEnd
		outer := rel / (ptrsPerBlock * ptrsPerBlock)
		mid := (rel / ptrsPerBlock) % ptrsPerBlock
		inner := rel % ptrsPerBlock

		outerPtr, err := f.readPtr(f.dataBlockAddr(uint64(in.TripleIndirect)), outer)
		if err != 0 {
			return 0, err
		}
		if outerPtr == 0 {
			outerPtr, err = f.allocZeroedDataBlock()
			if err != 0 {
				return 0, err
			}
			if err := f.writePtr(f.dataBlockAddr(uint64(in.TripleIndirect)), outer, outerPtr); err != 0 {
				return 0, err
			}
		}
		midPtr, err := f.readPtr(f.dataBlockAddr(uint64(outerPtr)), mid)
		if err != 0 {
			return 0, err
		}
		if midPtr == 0 {
			midPtr, err = f.allocZeroedDataBlock()
			if err != 0 {
				return 0, err
			}
			if err := f.writePtr(f.dataBlockAddr(uint64(outerPtr)), mid, midPtr); err != 0 {
				return 0, err
			}
		}
		return f.resolveLeaf(midPtr, inner)
	}
}

func (f *FS) ensurePtrBlock(slot *uint32) defs.Err_t {
	if *slot != 0 {
		return 0
	}
	idx, err := f.allocZeroedDataBlock()
	if err != 0 {
		return err
	}
	*slot = idx
	return 0
}

func (f *FS) resolveLeaf(ptrBlockIdx uint32, slot int) (uint64, defs.Err_t) {
	leaf, err := f.readPtr(f.dataBlockAddr(uint64(ptrBlockIdx)), slot)
	if err != 0 {
		return 0, err
	}
	if leaf == 0 {
		leaf, err = f.allocZeroedDataBlock()
		if err != 0 {
			return 0, err
		}
		if err := f.writePtr(f.dataBlockAddr(uint64(ptrBlockIdx)), slot, leaf); err != 0 {
			return 0, err
		}
	}
	return f.dataBlockAddr(uint64(leaf)), 0
}
