package vfs

import (
	"sync"

	"rvos/internal/defs"
	"rvos/internal/sched"
)

// OpenFlags are the permission/mode bits an open descriptor carries
// (spec §4.9). Grounded on biscuit/src/fd/fd.go's FD_READ/FD_WRITE
// permission bits, widened into named booleans plus the three open-time
// behaviors (append/create/truncate) spec §4.9 adds on top.
type OpenFlags struct {
	Read     bool
	Write    bool
	Append   bool
	Create   bool
	Truncate bool
}

// FileDescriptor is one open file: a Node, a mutable byte offset, and
// the flags it was opened with (spec §4.9). Grounded on
// biscuit/src/fd/fd.go's Fd_t{Fops, Perms} pair, generalized from one
// fops-per-fd to this capability-set Node plus an explicit Offset field
// (Fd_t's offset lives inside its Fops implementation instead).
type FileDescriptor struct {
	Node   Node
	Offset int
	Flags  OpenFlags
}

// Open resolves path against v and builds a descriptor for it, applying
// spec §4.9's open-time behaviors: Create makes the file first if it is
// missing, Append starts the offset at the file's current size, and
// Truncate resets the file to empty before the offset is set.
func Open(v *VFS, path string, flags OpenFlags) (*FileDescriptor, defs.Err_t) {
	node, err := v.Resolve(path)
	if err == defs.ENOENT && flags.Create {
		parent, name, perr := v.ResolveParent(path)
		if perr != 0 {
			return nil, perr
		}
		created, cerr := parent.CreateChild(name, false)
		if cerr != 0 {
			return nil, cerr
		}
		node = created
		err = 0
	}
	if err != 0 {
		return nil, err
	}

	if flags.Truncate {
		if terr := node.Truncate(0); terr != 0 {
			return nil, terr
		}
	}

	fd := &FileDescriptor{Node: node, Flags: flags}
	if flags.Append {
		fd.Offset = node.Size()
	}
	return fd, 0
}

// Read reads into buf at the descriptor's current offset, failing with
// EPERM if it wasn't opened for reading (spec §4.9), and advances the
// offset by the number of bytes actually transferred.
func (fd *FileDescriptor) Read(buf []byte) (int, defs.Err_t) {
	if !fd.Flags.Read {
		return 0, defs.EPERM
	}
	n, err := fd.Node.ReadAt(fd.Offset, buf)
	fd.Offset += n
	return n, err
}

// Write writes data at the descriptor's current offset, failing with
// EPERM if it wasn't opened for writing, and advances the offset by the
// number of bytes actually transferred.
func (fd *FileDescriptor) Write(data []byte) (int, defs.Err_t) {
	if !fd.Flags.Write {
		return 0, defs.EPERM
	}
	n, err := fd.Node.WriteAt(fd.Offset, data)
	fd.Offset += n
	return n, err
}

// Stdin/Stdout fd numbers every task is preopened with (spec §4.9/§9).
const (
	FdStdin  = 0
	FdStdout = 1
)

// Table is a process-wide map from pid to its open file descriptors,
// implementing syscall.FileTable directly. Grounded on
// biscuit/src/fd/fd.go's per-process descriptor ownership, here kept as
// one table shared across tasks and keyed explicitly by pid rather than
// hung off a per-task struct field, since this kernel's sched.TCB
// doesn't otherwise carry filesystem state.
type Table struct {
	mu    sync.Mutex
	byPID map[sched.PID]map[int]*FileDescriptor
}

// NewTable creates an empty descriptor table.
func NewTable() *Table {
	return &Table{byPID: make(map[sched.PID]map[int]*FileDescriptor)}
}

// Preopen registers pid's stdio descriptors (fd 0 = stdin, fd 1 =
// stdout), as every task has at creation (spec §9).
func (t *Table) Preopen(pid sched.PID, stdin, stdout Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fds := map[int]*FileDescriptor{
		FdStdin:  {Node: stdin, Flags: OpenFlags{Read: true}},
		FdStdout: {Node: stdout, Flags: OpenFlags{Write: true}},
	}
	t.byPID[pid] = fds
}

// Drop forgets every descriptor pid held, called when a task exits.
func (t *Table) Drop(pid sched.PID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPID, pid)
}

// Insert adds fd as pid's next-available descriptor number, returning
// it, for callers that open a disk file beyond the preopened stdio pair
// (reserved for a future Open syscall; spec §4.7's table has none today,
// so nothing currently reaches this outside tests).
func (t *Table) Insert(pid sched.PID, fd *FileDescriptor) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fds, ok := t.byPID[pid]
	if !ok {
		fds = make(map[int]*FileDescriptor)
		t.byPID[pid] = fds
	}
	n := 0
	for {
		if _, taken := fds[n]; !taken {
			fds[n] = fd
			return n
		}
		n++
	}
}

func (t *Table) get(pid sched.PID, fd int) (*FileDescriptor, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fds, ok := t.byPID[pid]
	if !ok {
		return nil, defs.EINVAL
	}
	f, ok := fds[fd]
	if !ok {
		return nil, defs.EINVAL
	}
	return f, 0
}

// Write implements syscall.FileTable.
func (t *Table) Write(pid sched.PID, fd int, data []byte) (int, defs.Err_t) {
	f, err := t.get(pid, fd)
	if err != 0 {
		return 0, err
	}
	return f.Write(data)
}

// Read implements syscall.FileTable.
func (t *Table) Read(pid sched.PID, fd int, buf []byte) (int, defs.Err_t) {
	f, err := t.get(pid, fd)
	if err != 0 {
		return 0, err
	}
	return f.Read(buf)
}
