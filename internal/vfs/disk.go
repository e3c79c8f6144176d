package vfs

import (
	"sync"

	"rvos/internal/defs"
	"rvos/internal/fs"
)

// diskFileNode is the DiskFile variant: a regular file backed by one
// inode in the mounted disk filesystem.
type diskFileNode struct {
	notADir
	backing
}

func (n *diskFileNode) Type() NodeType { return NodeFile }

func (n *diskFileNode) Size() int {
	in, err := n.fsys.ReadInode(n.id)
	if err != 0 {
		return 0
	}
	return int(in.Size)
}

func (n *diskFileNode) ReadAt(offset int, buf []byte) (int, defs.Err_t) {
	return n.fsys.ReadAt(n.id, offset, buf)
}

func (n *diskFileNode) WriteAt(offset int, data []byte) (int, defs.Err_t) {
	return n.fsys.WriteAt(n.id, offset, data)
}

func (n *diskFileNode) Truncate(size int) defs.Err_t {
	return n.fsys.Truncate(n.id, size)
}

// diskDirNode is the DiskDir variant: a directory backed by one inode,
// with a lazily populated dentry cache (spec §4.9: "each directory node
// holds a mutable map from name to node").
type diskDirNode struct {
	notAFile
	backing

	mu    sync.Mutex
	cache map[string]Node
}

func newDiskDirNode(v *VFS, fsys *fs.FS, id uint64, name string, parentID uint64, hasParent bool) *diskDirNode {
	return &diskDirNode{
		backing: backing{v: v, fsys: fsys, id: id, name: name, parentID: parentID, hasParent: hasParent},
		cache:   make(map[string]Node),
	}
}

func (n *diskDirNode) Type() NodeType { return NodeDir }

func (n *diskDirNode) Size() int {
	in, err := n.fsys.ReadInode(n.id)
	if err != 0 {
		return 0
	}
	return int(in.Size)
}

// LookupChild returns the cached node if present; otherwise it reads
// the on-disk directory, builds a fresh node of the correct variant
// linked back to n via a revalidatable parent reference, caches it, and
// returns it (spec §4.9 dentry-cache semantics).
func (n *diskDirNode) LookupChild(name string) (Node, defs.Err_t) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cached, ok := n.cache[name]; ok {
		return cached, 0
	}

	childID, typ, err := n.fsys.LookupChild(n.id, name)
	if err != 0 {
		return nil, err
	}

	var child Node
	if typ == defs.FtDir {
		child = n.v.nodeForDir(n.fsys, childID, name, n.id, true)
	} else {
		child = &diskFileNode{backing: backing{v: n.v, fsys: n.fsys, id: childID, name: name, parentID: n.id, hasParent: true}}
	}
	n.cache[name] = child
	return child, 0
}

func (n *diskDirNode) ListChildren() ([]string, defs.Err_t) {
	return n.fsys.ListChildren(n.id)
}

func (n *diskDirNode) CreateChild(name string, dir bool) (Node, defs.Err_t) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, err := n.fsys.CreateChild(n.id, name, dir)
	if err != 0 {
		return nil, err
	}
	var child Node
	if dir {
		child = n.v.nodeForDir(n.fsys, id, name, n.id, true)
	} else {
		child = &diskFileNode{backing: backing{v: n.v, fsys: n.fsys, id: id, name: name, parentID: n.id, hasParent: true}}
	}
	n.cache[name] = child
	return child, 0
}

func (n *diskDirNode) RemoveChild(name string) defs.Err_t {
	n.mu.Lock()
	defer n.mu.Unlock()

	removed, hadCache := n.cache[name]
	if err := n.fsys.RemoveChild(n.id, name); err != 0 {
		return err
	}
	delete(n.cache, name)
	if hadCache {
		if dir, ok := removed.(*diskDirNode); ok {
			n.v.forgetDir(n.fsys, dir.id)
		}
	}
	return 0
}

// backing is the data every disk-backed node variant shares: which FS
// it lives on, its own inode id and name, and its parent's id — stored
// by value, not as a live pointer, so the "weak back-reference" spec §9
// calls for is simply re-resolved through the owning VFS/dentry cache
// whenever Parent() is called, rather than held as a reference that
// could keep the parent alive or go stale.
type backing struct {
	v         *VFS
	fsys      *fs.FS
	id        uint64
	name      string
	parentID  uint64
	hasParent bool
}

func (b backing) Name() string { return b.name }

func (b backing) Parent() (Node, bool) {
	if !b.hasParent {
		return nil, false
	}
	return b.v.nodeForDir(b.fsys, b.parentID, "", 0, false), true
}
