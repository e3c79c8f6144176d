package blockdev

import (
	"sync"

	"rvos/internal/defs"
)

// MemDevice is an in-memory Device backing, for hosted tests and for
// `cmd/mkfsimg` building a disk image before it is written to a real
// file. Mirrors biscuit's pattern of a memory-backed stand-in for a real
// disk driver during development (biscuit's own disk drivers are
// likewise interface-satisfying variants behind Disk_i; this is simply
// the variant with no hardware underneath).
type MemDevice struct {
	mu     sync.Mutex
	blocks [][BlockSize]byte
}

// NewMemDevice builds a zeroed in-memory device of the given block
// count.
func NewMemDevice(numBlocks uint64) *MemDevice {
	return &MemDevice{blocks: make([][BlockSize]byte, numBlocks)}
}

func (d *MemDevice) ReadBlock(id uint64, buf []byte) defs.Err_t {
	if err := checkLen(buf); err != 0 {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id >= uint64(len(d.blocks)) {
		return defs.EINVAL
	}
	copy(buf, d.blocks[id][:])
	return 0
}

func (d *MemDevice) WriteBlock(id uint64, buf []byte) defs.Err_t {
	if err := checkLen(buf); err != 0 {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id >= uint64(len(d.blocks)) {
		return defs.EINVAL
	}
	copy(d.blocks[id][:], buf)
	return 0
}

func (d *MemDevice) NumBlocks() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.blocks))
}
