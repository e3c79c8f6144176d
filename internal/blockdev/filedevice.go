package blockdev

import (
	"os"
	"sync"

	"rvos/internal/defs"
)

// FileDevice is a Device backed by a regular host file — the disk image
// `cmd/mkfsimg` produces and qemu-virt's virtio-blk would otherwise
// present block-for-block.
type FileDevice struct {
	mu   sync.Mutex
	f    *os.File
	size uint64 // total blocks
}

// OpenFileDevice opens path (which must already exist, sized to a whole
// number of blocks) as a Device.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, size: uint64(info.Size()) / BlockSize}, nil
}

// CreateFileDevice creates (or truncates) path to hold numBlocks
// zeroed blocks and returns a Device over it — used by `cmd/mkfsimg` to
// build a fresh disk image.
func CreateFileDevice(path string, numBlocks uint64) (*FileDevice, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(numBlocks) * BlockSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, size: numBlocks}, nil
}

func (d *FileDevice) ReadBlock(id uint64, buf []byte) defs.Err_t {
	if err := checkLen(buf); err != 0 {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id >= d.size {
		return defs.EINVAL
	}
	if _, err := d.f.ReadAt(buf, int64(id)*BlockSize); err != nil {
		return defs.EINVAL
	}
	return 0
}

func (d *FileDevice) WriteBlock(id uint64, buf []byte) defs.Err_t {
	if err := checkLen(buf); err != 0 {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id >= d.size {
		return defs.EINVAL
	}
	if _, err := d.f.WriteAt(buf, int64(id)*BlockSize); err != nil {
		return defs.EINVAL
	}
	return 0
}

func (d *FileDevice) NumBlocks() uint64 {
	return d.size
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
