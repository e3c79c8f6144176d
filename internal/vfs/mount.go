package vfs

import (
	"strings"
	"sync"

	"rvos/internal/defs"
	"rvos/internal/fs"
)

// Mount is one entry in the mount table: every path beginning with
// prefix is resolved against root instead of the main filesystem (spec
// §4.9: "a mount table is an ordered list of prefix matches, scanned in
// registration order").
type Mount struct {
	prefix string
	root   Node
	fsys   *fs.FS
}

// VFS is the process-wide path-resolution façade: a mount table plus
// the shared cache of disk directory nodes each mount's tree is built
// from, so two different lookup paths that land on the same inode
// (e.g. a child's Parent() call and a fresh path walk) observe the same
// node and its dentry cache rather than building a second, divergent
// copy.
type VFS struct {
	mounts []Mount

	mu   sync.Mutex
	dirs map[*fs.FS]map[uint64]*diskDirNode
}

// New creates an empty VFS with no mounts registered yet.
func New() *VFS {
	return &VFS{
		dirs: make(map[*fs.FS]map[uint64]*diskDirNode),
	}
}

// Mount registers fsys's root directory at prefix (spec §4.9). The main
// filesystem is conventionally mounted at "/".
func (v *VFS) Mount(prefix string, fsys *fs.FS) {
	root := v.nodeForDir(fsys, fs.RootInode, "", 0, false)
	v.mounts = append(v.mounts, Mount{prefix: prefix, root: root, fsys: fsys})
}

// nodeForDir returns the cached diskDirNode for (fsys, id), building one
// the first time it's needed. name/parentID/hasParent seed a freshly
// built node's identity and back-reference; an already-cached node
// keeps whatever it was built with, since an inode's parent directory
// and name never change in this filesystem (no rename/link across
// directories).
func (v *VFS) nodeForDir(fsys *fs.FS, id uint64, name string, parentID uint64, hasParent bool) *diskDirNode {
	v.mu.Lock()
	defer v.mu.Unlock()

	byID, ok := v.dirs[fsys]
	if !ok {
		byID = make(map[uint64]*diskDirNode)
		v.dirs[fsys] = byID
	}
	if n, ok := byID[id]; ok {
		return n
	}
	n := newDiskDirNode(v, fsys, id, name, parentID, hasParent)
	byID[id] = n
	return n
}

// forgetDir evicts a deleted directory's node from the cross-directory
// cache so a later reuse of its inode id (the bitmap allocator will hand
// it out again) never resolves to the stale node.
func (v *VFS) forgetDir(fsys *fs.FS, id uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if byID, ok := v.dirs[fsys]; ok {
		delete(byID, id)
	}
}

// longestMount finds the mount whose prefix matches path most
// specifically, scanning in registration order as spec §4.9 specifies
// for ties.
func (v *VFS) longestMount(path string) (Mount, bool) {
	best := -1
	var bestMount Mount
	for _, m := range v.mounts {
		if strings.HasPrefix(path, m.prefix) {
			if len(m.prefix) > best {
				best = len(m.prefix)
				bestMount = m
			}
		}
	}
	return bestMount, best >= 0
}

// Resolve walks path to its Node, starting from the most specific
// registered mount (spec §4.9: "." is a no-op, ".." asks the current
// node for its parent, other components look up a named child; an
// empty path or "/" resolves to the main filesystem's root).
func (v *VFS) Resolve(path string) (Node, defs.Err_t) {
	m, ok := v.longestMount(path)
	if !ok {
		return nil, defs.ENOENT
	}

	rel := strings.TrimPrefix(path, m.prefix)
	cur := m.root
	for _, comp := range splitPath(rel) {
		switch comp {
		case ".":
			continue
		case "..":
			parent, ok := cur.Parent()
			if !ok {
				continue // ".." at a mount root stays put
			}
			cur = parent
		default:
			child, err := cur.LookupChild(comp)
			if err != 0 {
				return nil, err
			}
			cur = child
		}
	}
	return cur, 0
}

// ResolveParent splits path into its containing directory's Node and
// final path component, for callers that need to create or remove an
// entry rather than look one up.
func (v *VFS) ResolveParent(path string) (Node, string, defs.Err_t) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", defs.EINVAL
	}
	name := parts[len(parts)-1]
	dir, err := v.Resolve("/" + strings.Join(parts[:len(parts)-1], "/"))
	if err != 0 {
		return nil, "", err
	}
	return dir, name, 0
}

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
