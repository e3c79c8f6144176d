package fs

import "rvos/internal/util"

// superblockMagic is the fixed constant that marks block 0 as a
// formatted filesystem of this kind (spec §4.8: "the chosen magic is a
// constant the implementer fixes").
const superblockMagic = 0x5256_4653_4231 // "RVFSB1" in hex-ish form

// Superblock is the on-disk record at block 0: magic plus the lengths of
// the inode and data bitmaps, from which every other region's starting
// block is derived (spec §4.8).
type Superblock struct {
	Magic             uint64
	InodeBitmapBlocks uint64
	DataBitmapBlocks  uint64
	InodeTableBlocks  uint64
}

const (
	sbOffMagic    = 0
	sbOffImapLen  = 8
	sbOffDmapLen  = 16
	sbOffItabeLen = 24
)

func readSuperblock(blk []byte) Superblock {
	return Superblock{
		Magic:             uint64(util.Readn(blk, 8, sbOffMagic)),
		InodeBitmapBlocks: uint64(util.Readn(blk, 8, sbOffImapLen)),
		DataBitmapBlocks:  uint64(util.Readn(blk, 8, sbOffDmapLen)),
		InodeTableBlocks:  uint64(util.Readn(blk, 8, sbOffItabeLen)),
	}
}

func writeSuperblock(blk []byte, sb Superblock) {
	util.Writen(blk, 8, sbOffMagic, int(sb.Magic))
	util.Writen(blk, 8, sbOffImapLen, int(sb.InodeBitmapBlocks))
	util.Writen(blk, 8, sbOffDmapLen, int(sb.DataBitmapBlocks))
	util.Writen(blk, 8, sbOffItabeLen, int(sb.InodeTableBlocks))
}
