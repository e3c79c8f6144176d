package vfs

import (
	"bytes"
	"strings"
	"testing"

	"rvos/internal/blockdev"
	"rvos/internal/defs"
	"rvos/internal/fs"
	"rvos/internal/sched"
)

func newTestVFS(t *testing.T) (*VFS, *fs.FS) {
	t.Helper()
	dev := blockdev.NewMemDevice(700)
	fsys, err := fs.Mount(dev)
	if err != 0 {
		t.Fatalf("fs.Mount: %v", err)
	}
	v := New()
	v.Mount("/", fsys)
	return v, fsys
}

func TestResolveRoot(t *testing.T) {
	v, _ := newTestVFS(t)
	root, err := v.Resolve("/")
	if err != 0 {
		t.Fatalf("Resolve(/): %v", err)
	}
	if root.Type() != NodeDir {
		t.Fatalf("root type = %v, want dir", root.Type())
	}
}

func TestDiskFileCapabilitySetFailsDirOps(t *testing.T) {
	v, _ := newTestVFS(t)
	root, _ := v.Resolve("/")
	file, err := root.CreateChild("a.txt", false)
	if err != 0 {
		t.Fatalf("CreateChild: %v", err)
	}
	if _, err := file.LookupChild("x"); err != defs.ENOTDIR {
		t.Fatalf("LookupChild on file = %v, want ENOTDIR", err)
	}
	if err := file.RemoveChild("x"); err != defs.ENOTDIR {
		t.Fatalf("RemoveChild on file = %v, want ENOTDIR", err)
	}
}

func TestDiskDirCapabilitySetFailsFileOps(t *testing.T) {
	v, _ := newTestVFS(t)
	root, _ := v.Resolve("/")
	if _, err := root.ReadAt(0, make([]byte, 4)); err != defs.EISDIR {
		t.Fatalf("ReadAt on dir = %v, want EISDIR", err)
	}
	if _, err := root.WriteAt(0, []byte("x")); err != defs.EISDIR {
		t.Fatalf("WriteAt on dir = %v, want EISDIR", err)
	}
}

func TestLookupChildCachesNode(t *testing.T) {
	v, _ := newTestVFS(t)
	root, _ := v.Resolve("/")
	if _, err := root.CreateChild("sub", true); err != 0 {
		t.Fatalf("CreateChild: %v", err)
	}
	first, err := root.LookupChild("sub")
	if err != 0 {
		t.Fatalf("LookupChild 1: %v", err)
	}
	second, err := root.LookupChild("sub")
	if err != 0 {
		t.Fatalf("LookupChild 2: %v", err)
	}
	if first != second {
		t.Fatalf("LookupChild returned different nodes across calls")
	}
}

func TestPathResolutionDotAndDotDot(t *testing.T) {
	v, _ := newTestVFS(t)
	root, _ := v.Resolve("/")
	if _, err := root.CreateChild("dir1", true); err != 0 {
		t.Fatalf("CreateChild: %v", err)
	}

	n, err := v.Resolve("/dir1/./..")
	if err != 0 {
		t.Fatalf("Resolve: %v", err)
	}
	if n.Type() != NodeDir {
		t.Fatalf("type = %v, want dir", n.Type())
	}
	if n != root {
		t.Fatalf("/dir1/./.. did not resolve back to root")
	}
}

func TestParentAtMountRootStaysPut(t *testing.T) {
	v, _ := newTestVFS(t)
	n, err := v.Resolve("/..")
	if err != 0 {
		t.Fatalf("Resolve: %v", err)
	}
	if n.Type() != NodeDir {
		t.Fatalf("type = %v, want dir", n.Type())
	}
}

func TestOpenCreateWritesAndReads(t *testing.T) {
	v, _ := newTestVFS(t)
	fd, err := Open(v, "/hello.txt", OpenFlags{Read: true, Write: true, Create: true})
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	n, err := fd.Write([]byte("hello"))
	if err != 0 || n != 5 {
		t.Fatalf("Write = %d, %v", n, err)
	}

	fd2, err := Open(v, "/hello.txt", OpenFlags{Read: true})
	if err != 0 {
		t.Fatalf("Open 2: %v", err)
	}
	buf := make([]byte, 5)
	n, err = fd2.Read(buf)
	if err != 0 || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %q, %d, %v", buf[:n], n, err)
	}
}

func TestOpenAppendStartsAtEnd(t *testing.T) {
	v, _ := newTestVFS(t)
	fd, _ := Open(v, "/a.txt", OpenFlags{Write: true, Create: true})
	fd.Write([]byte("abc"))

	appendFd, err := Open(v, "/a.txt", OpenFlags{Write: true, Append: true})
	if err != 0 {
		t.Fatalf("Open append: %v", err)
	}
	if appendFd.Offset != 3 {
		t.Fatalf("append offset = %d, want 3", appendFd.Offset)
	}
}

func TestOpenTruncateResetsFile(t *testing.T) {
	v, _ := newTestVFS(t)
	fd, _ := Open(v, "/b.txt", OpenFlags{Write: true, Create: true})
	fd.Write([]byte("abcdef"))

	truncFd, err := Open(v, "/b.txt", OpenFlags{Write: true, Truncate: true})
	if err != 0 {
		t.Fatalf("Open truncate: %v", err)
	}
	if truncFd.Node.Size() != 0 {
		t.Fatalf("size after truncate open = %d, want 0", truncFd.Node.Size())
	}
}

func TestReadWriteFailsWithoutPermission(t *testing.T) {
	v, _ := newTestVFS(t)
	fd, _ := Open(v, "/c.txt", OpenFlags{Write: true, Create: true})
	if _, err := fd.Read(make([]byte, 1)); err != defs.EPERM {
		t.Fatalf("Read without Read flag = %v, want EPERM", err)
	}

	readOnly, _ := Open(v, "/c.txt", OpenFlags{Read: true})
	if _, err := readOnly.Write([]byte("x")); err != defs.EPERM {
		t.Fatalf("Write without Write flag = %v, want EPERM", err)
	}
}

func TestFileTableStdioRoundTrip(t *testing.T) {
	table := NewTable()
	in := strings.NewReader("input data")
	var out bytes.Buffer

	pid := sched.PID(1)
	table.Preopen(pid, NewStdin(in), NewStdout(&out))

	buf := make([]byte, 5)
	n, err := table.Read(pid, FdStdin, buf)
	if err != 0 || n != 5 || string(buf) != "input" {
		t.Fatalf("Read = %q, %d, %v", buf[:n], n, err)
	}

	n, err = table.Write(pid, FdStdout, []byte("output"))
	if err != 0 || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if out.String() != "output" {
		t.Fatalf("stdout = %q", out.String())
	}
}

func TestFileTableUnknownFdFails(t *testing.T) {
	table := NewTable()
	pid := sched.PID(1)
	table.Preopen(pid, NewStdin(strings.NewReader("")), NewStdout(&bytes.Buffer{}))

	if _, err := table.Read(pid, 99, make([]byte, 1)); err != defs.EINVAL {
		t.Fatalf("Read unknown fd = %v, want EINVAL", err)
	}
}

func TestDeleteEvictsDentryAndCrossDirCache(t *testing.T) {
	v, fsys := newTestVFS(t)
	root, _ := v.Resolve("/")
	sub, err := root.CreateChild("tmp", true)
	if err != 0 {
		t.Fatalf("CreateChild: %v", err)
	}
	subID := sub.(*diskDirNode).id
	if err := root.RemoveChild("tmp"); err != 0 {
		t.Fatalf("RemoveChild: %v", err)
	}
	if _, err := root.LookupChild("tmp"); err != defs.ENOENT {
		t.Fatalf("LookupChild after remove = %v, want ENOENT", err)
	}
	if _, cached := v.dirs[fsys][subID]; cached {
		t.Fatalf("removed directory still in the cross-directory cache")
	}
}
