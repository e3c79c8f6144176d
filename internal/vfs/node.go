// Package vfs is the VFS façade (spec §4.9): a capability-set node
// abstraction over disk directories/files and the two stdio variants, a
// per-directory dentry cache, a mount table scanned by prefix, and a
// file descriptor layer with open flags and an offset.
//
// Grounded on biscuit/src/ufs/ufs.go's shape (one façade wrapping an
// underlying filesystem plus a `cwd`, with path-taking
// Mk.../Read/Unlink methods) generalized from ufs.go's single concrete
// backing into the tagged-variant capability set spec §4.9 and §9's
// design note both describe, since ufs.go itself is a test harness over
// a disk filesystem package that was not retrieved (only blk.go/
// super.go survived from biscuit/src/fs). The dentry cache is a plain
// mutex-guarded map per directory node rather than an adaptation of
// biscuit/src/hashtable/hashtable.go's sharded, lock-free table: that
// structure solves high-concurrency access to one global table, which
// this single-CPU kernel's per-directory cache does not need.
package vfs

import "rvos/internal/defs"

// NodeType distinguishes the four VFS node variants spec §3 lists.
type NodeType int

const (
	NodeDir NodeType = iota
	NodeFile
	NodeStdin
	NodeStdout
)

// Node is the capability-set handle spec §3/§4.9 describe: a concrete
// variant implements the operations it supports and fails the rest with
// a kind-specific error (a directory fails file-shaped calls with
// EISDIR; a file fails directory-shaped calls with ENOTDIR; stdio nodes
// implement only one direction of read/write).
type Node interface {
	Type() NodeType
	Name() string
	Size() int

	ReadAt(offset int, buf []byte) (int, defs.Err_t)
	WriteAt(offset int, data []byte) (int, defs.Err_t)
	Truncate(size int) defs.Err_t

	Parent() (Node, bool)
	LookupChild(name string) (Node, defs.Err_t)
	ListChildren() ([]string, defs.Err_t)
	CreateChild(name string, dir bool) (Node, defs.Err_t)
	RemoveChild(name string) defs.Err_t
}

// notAFile/notADir are the shared capability-set failure stubs every
// concrete variant embeds for the operations it lacks.
type notAFile struct{}

func (notAFile) ReadAt(int, []byte) (int, defs.Err_t)  { return 0, defs.EISDIR }
func (notAFile) WriteAt(int, []byte) (int, defs.Err_t) { return 0, defs.EISDIR }
func (notAFile) Truncate(int) defs.Err_t               { return defs.EISDIR }

// notADir stubs the directory-shaped operations a file lacks. Parent()
// is deliberately not among them: every disk-backed node (file or
// directory) has a real parent, supplied by the embedded backing
// struct instead, so a file's capability set still exposes a working
// Parent() while ListChildren/LookupChild/CreateChild/RemoveChild all
// fail ENOTDIR as spec §4.9 requires.
type notADir struct{}

func (notADir) LookupChild(string) (Node, defs.Err_t)       { return nil, defs.ENOTDIR }
func (notADir) ListChildren() ([]string, defs.Err_t)        { return nil, defs.ENOTDIR }
func (notADir) CreateChild(string, bool) (Node, defs.Err_t) { return nil, defs.ENOTDIR }
func (notADir) RemoveChild(string) defs.Err_t               { return defs.ENOTDIR }
