package fs

import (
	"rvos/internal/blockdev"
	"rvos/internal/defs"
)

// The methods in this file are keyed by inode id rather than by path:
// the VFS layer (internal/vfs) already does its own path walking
// through its dentry-cached node graph, so it only ever needs FS to
// perform one raw directory operation at a time. createChild/
// removeChild hold the actual logic and assume f.mu is already held;
// both the path-based operations in ops.go and the id-based ones here
// call through them so the two entry points never drift apart.

// ReadInode exposes one inode record by id, for the VFS layer to build
// a node around.
func (f *FS) ReadInode(id uint64) (*Inode, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readInode(id)
}

// LookupChild finds name within the directory at parentID.
func (f *FS) LookupChild(parentID uint64, name string) (id uint64, typ defs.FileType_t, err defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, err := f.readInode(parentID)
	if err != 0 {
		return 0, 0, err
	}
	e, _, found, err := f.dirLookup(parent, name)
	if err != 0 {
		return 0, 0, err
	}
	if !found {
		return 0, 0, defs.ENOENT
	}
	child, err := f.readInode(e.InodeID)
	if err != 0 {
		return 0, 0, err
	}
	return e.InodeID, child.Type, 0
}

// ListChildren returns every live name in the directory at parentID,
// excluding "." and "..".
func (f *FS) ListChildren(parentID uint64) ([]string, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, err := f.readInode(parentID)
	if err != 0 {
		return nil, err
	}
	entries, err := f.dirList(parent)
	if err != 0 {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, 0
}

// CreateChild allocates a new inode named name within parentID.
func (f *FS) CreateChild(parentID uint64, name string, dir bool) (uint64, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, err := f.readInode(parentID)
	if err != 0 {
		return 0, err
	}
	return f.createChild(parentID, parent, name, dir)
}

// RemoveChild removes name from parentID, refusing non-empty
// directories (spec §4.8/§4.9).
func (f *FS) RemoveChild(parentID uint64, name string) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent, err := f.readInode(parentID)
	if err != 0 {
		return err
	}
	return f.removeChild(parentID, parent, name)
}

// createChild is the shared implementation behind Create/Mkdir (path-
// based, ops.go) and CreateChild (id-based, above). Caller holds f.mu.
func (f *FS) createChild(parentID uint64, parent *Inode, name string, dir bool) (uint64, defs.Err_t) {
	if _, _, found, err := f.dirLookup(parent, name); err != 0 {
		return 0, err
	} else if found {
		return 0, defs.EEXIST
	}

	if !dir {
		id, _, err := allocInodeAndData(f.inodeBitmap, f.dataBitmap, 0)
		if err != 0 {
			return 0, err
		}
		if err := f.writeInode(id, &Inode{Type: defs.FtFile}); err != 0 {
			return 0, err
		}
		if err := f.dirAdd(parentID, parent, dirEnt{InodeID: id, Name: name}); err != 0 {
			return 0, err
		}
		return id, 0
	}

	id, dataIdx, err := allocInodeAndData(f.inodeBitmap, f.dataBitmap, 1)
	if err != 0 {
		return 0, err
	}
	child := &Inode{Type: defs.FtDir}
	child.Direct[0] = uint32(dataIdx[0])

	var blk [blockdev.BlockSize]byte
	writeDirEnt(blk[:], 0, dirEnt{InodeID: id, Name: "."})
	writeDirEnt(blk[:], 1, dirEnt{InodeID: parentID, Name: ".."})
	child.Size = 2 * dirEntSize
	if err := f.dev.WriteBlock(f.dataBlockAddr(dataIdx[0]), blk[:]); err != 0 {
		return 0, err
	}
	if err := f.writeInode(id, child); err != 0 {
		return 0, err
	}
	if err := f.dirAdd(parentID, parent, dirEnt{InodeID: id, Name: name}); err != 0 {
		return 0, err
	}
	return id, 0
}

// removeChild is the shared implementation behind Delete (path-based,
// ops.go) and RemoveChild (id-based, above). Caller holds f.mu.
func (f *FS) removeChild(parentID uint64, parent *Inode, name string) defs.Err_t {
	e, _, found, err := f.dirLookup(parent, name)
	if err != 0 {
		return err
	}
	if !found {
		return defs.ENOENT
	}
	target, err := f.readInode(e.InodeID)
	if err != 0 {
		return err
	}
	if target.Type == defs.FtDir {
		children, err := f.dirList(target)
		if err != 0 {
			return err
		}
		if len(children) != 0 {
			return defs.ENOTEMPTY
		}
	}
	if err := f.freeInodeData(target); err != 0 {
		return err
	}
	f.inodeBitmap.clearBit(e.InodeID)
	return f.dirRemove(parentID, parent, name)
}
