package fs

import (
	"strings"

	"rvos/internal/blockdev"
	"rvos/internal/defs"
)

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolve walks path from the root, returning the final inode's id and
// record. An empty/"/"  path resolves to the root directory.
func (f *FS) resolve(path string) (id uint64, in *Inode, err defs.Err_t) {
	id = RootInode
	in, err = f.readInode(id)
	if err != 0 {
		return 0, nil, err
	}
	for _, comp := range splitPath(path) {
		if in.Type != defs.FtDir {
			return 0, nil, defs.ENOTDIR
		}
		e, _, found, err := f.dirLookup(in, comp)
		if err != 0 {
			return 0, nil, err
		}
		if !found {
			return 0, nil, defs.ENOENT
		}
		id = e.InodeID
		in, err = f.readInode(id)
		if err != 0 {
			return 0, nil, err
		}
	}
	return id, in, 0
}

// resolveParent splits path into its containing directory and final
// component, resolving only the directory part.
func (f *FS) resolveParent(path string) (parentID uint64, parent *Inode, name string, err defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return 0, nil, "", defs.EINVAL
	}
	name = parts[len(parts)-1]
	dirPath := "/" + strings.Join(parts[:len(parts)-1], "/")
	parentID, parent, err = f.resolve(dirPath)
	if err != 0 {
		return 0, nil, "", err
	}
	if parent.Type != defs.FtDir {
		return 0, nil, "", defs.ENOTDIR
	}
	return parentID, parent, name, 0
}

// Lookup resolves path to its inode id and record, for the VFS layer to
// build file descriptors on top of.
func (f *FS) Lookup(path string) (uint64, *Inode, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve(path)
}

// Create makes an empty regular file at path (spec §4.8: create()
// fails with EEXIST if name is already taken in its parent).
func (f *FS) Create(path string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentID, parent, name, err := f.resolveParent(path)
	if err != 0 {
		return err
	}
	_, err = f.createChild(parentID, parent, name, false)
	return err
}

// Mkdir makes a new, empty directory at path, pre-populated with "."
// and ".." like the root is at mkfs time.
func (f *FS) Mkdir(path string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentID, parent, name, err := f.resolveParent(path)
	if err != 0 {
		return err
	}
	_, err = f.createChild(parentID, parent, name, true)
	return err
}

// Delete removes a regular file, or an empty directory, at path (spec
// §4.8: delete() on a non-empty directory fails with ENOTEMPTY).
func (f *FS) Delete(path string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	parentID, parent, name, err := f.resolveParent(path)
	if err != 0 {
		return err
	}
	return f.removeChild(parentID, parent, name)
}

// freeInodeData releases every data block (and interior indirect-pointer
// block) an inode owns — a recursive free, not merely the shrink-only
// truncate spec §4.8 names, since delete must reclaim the whole file.
func (f *FS) freeInodeData(in *Inode) defs.Err_t {
	for _, d := range in.Direct {
		if d != 0 {
			f.dataBitmap.clearBit(uint64(d))
		}
	}
	if in.Indirect != 0 {
		if err := f.freePtrBlock(in.Indirect, 1); err != 0 {
			return err
		}
	}
	if in.DoubleIndirect != 0 {
		if err := f.freePtrBlock(in.DoubleIndirect, 2); err != 0 {
			return err
		}
	}
	if in.TripleIndirect != 0 {
		if err := f.freePtrBlock(in.TripleIndirect, 3); err != 0 {
			return err
		}
	}
	return 0
}

// freePtrBlock recursively frees an indirect-pointer block depth levels
// deep (1 = leaf pointers, 2 = pointers-to-pointer-blocks, 3 =
// pointers-to-those), then itself.
func (f *FS) freePtrBlock(blockIdx uint32, depth int) defs.Err_t {
	var blk [blockdev.BlockSize]byte
	if err := f.dev.ReadBlock(f.dataBlockAddr(uint64(blockIdx)), blk[:]); err != 0 {
		return err
	}
	for slot := 0; slot < ptrsPerBlock; slot++ {
		child, err := f.readPtr(f.dataBlockAddr(uint64(blockIdx)), slot)
		if err != 0 {
			return err
		}
		if child == 0 {
			continue
		}
		if depth == 1 {
			f.dataBitmap.clearBit(uint64(child))
		} else if err := f.freePtrBlock(child, depth-1); err != 0 {
			return err
		}
	}
	f.dataBitmap.clearBit(uint64(blockIdx))
	return 0
}

// ReadFile reads the whole file at path into memory, for Exec's image
// load (spec §9).
func (f *FS) ReadFile(path string) ([]byte, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, in, err := f.resolve(path)
	if err != 0 {
		return nil, err
	}
	if in.Type != defs.FtFile {
		return nil, defs.EISDIR
	}
	return f.readInodeData(in)
}

func (f *FS) readInodeData(in *Inode) ([]byte, defs.Err_t) {
	out := make([]byte, in.Size)
	numBlocks := (int(in.Size) + blockdev.BlockSize - 1) / blockdev.BlockSize
	for lb := 0; lb < numBlocks; lb++ {
		addr, ok, err := f.blockForRead(in, lb)
		if err != 0 {
			return nil, err
		}
		start := lb * blockdev.BlockSize
		end := start + blockdev.BlockSize
		if end > len(out) {
			end = len(out)
		}
		if !ok {
			continue // hole reads as zero
		}
		var blk [blockdev.BlockSize]byte
		if err := f.dev.ReadBlock(addr, blk[:]); err != 0 {
			return nil, err
		}
		copy(out[start:end], blk[:end-start])
	}
	return out, 0
}

// WriteAt writes data at offset into inode id's file, extending
// file_size and allocating any newly touched block along the way (spec
// §4.8: "write extends file_size as needed, clipping at the final
// partial block").
func (f *FS) WriteAt(id uint64, offset int, data []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, err := f.readInode(id)
	if err != 0 {
		return 0, err
	}
	if in.Type != defs.FtFile {
		return 0, defs.EISDIR
	}

	written := 0
	for written < len(data) {
		pos := offset + written
		lb := pos / blockdev.BlockSize
		off := pos % blockdev.BlockSize
		addr, err := f.blockForWrite(in, lb)
		if err != 0 {
			return written, err
		}
		var blk [blockdev.BlockSize]byte
		if err := f.dev.ReadBlock(addr, blk[:]); err != 0 {
			return written, err
		}
		n := copy(blk[off:], data[written:])
		if err := f.dev.WriteBlock(addr, blk[:]); err != 0 {
			return written, err
		}
		written += n
	}

	if newSize := uint32(offset + written); newSize > in.Size {
		in.Size = newSize
	}
	if err := f.writeInode(id, in); err != 0 {
		return written, err
	}
	return written, 0
}

// ReadAt reads up to len(buf) bytes from inode id's file starting at
// offset, clipped to file_size.
func (f *FS) ReadAt(id uint64, offset int, buf []byte) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, err := f.readInode(id)
	if err != 0 {
		return 0, err
	}
	if in.Type != defs.FtFile {
		return 0, defs.EISDIR
	}
	if offset >= int(in.Size) {
		return 0, 0
	}

	data, err := f.readInodeData(in)
	if err != 0 {
		return 0, err
	}
	n := copy(buf, data[offset:])
	return n, 0
}

// Truncate shrinks a file to size bytes, freeing any block wholly past
// the new end (spec §4.8 names shrink-only truncate explicitly; growing
// a file happens implicitly through WriteAt instead).
func (f *FS) Truncate(id uint64, size int) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, err := f.readInode(id)
	if err != 0 {
		return err
	}
	if in.Type != defs.FtFile {
		return defs.EISDIR
	}
	if uint32(size) >= in.Size {
		return 0
	}

	firstFreedBlock := (size + blockdev.BlockSize - 1) / blockdev.BlockSize
	lastBlock := (int(in.Size) + blockdev.BlockSize - 1) / blockdev.BlockSize
	for lb := firstFreedBlock; lb < lastBlock; lb++ {
		idx, ok, err := f.blockIndexForRead(in, lb)
		if err != 0 {
			return err
		}
		if ok {
			f.dataBitmap.clearBit(uint64(idx))
		}
	}
	in.Size = uint32(size)
	return f.writeInode(id, in)
}
