package syscall

import (
	"testing"

	"rvos/internal/config"
	"rvos/internal/defs"
	"rvos/internal/mem"
	"rvos/internal/sched"
	"rvos/internal/trapframe"
	"rvos/internal/vmm"
)

func newTestAlloc(nframes int) *mem.FrameAllocator {
	start := mem.PhysAddr(0x80000000)
	end := mem.PhysAddr(uint64(start) + uint64(nframes)*config.PageSize)
	return mem.NewFrameAllocator(start, end, true)
}

// newBackedTask builds a user task with one page mmap'd and faulted in
// at va, ready for user-buffer copies to and from it.
func newBackedTask(t *testing.T, alloc *mem.FrameAllocator, va mem.VirtAddr) (*sched.TCB, *sched.Scheduler) {
	t.Helper()
	space := vmm.NewUser(alloc)
	if err := space.Mmap(va, config.PageSize); err != 0 {
		t.Fatalf("Mmap: %v", err)
	}
	if !space.HandlePageFault(va) {
		t.Fatal("expected the mmap'd page to be faultable")
	}
	sc := sched.NewScheduler(8)
	pid, _ := sc.AllocPID()
	tf := trapframe.NewInitial(0x1000, uint64(va)+config.PageSize, 0, 0, 0, 0)
	task := sched.NewTCB(pid, space, tf)
	sc.Add(task)
	sc.RunFirstTask()
	return task, sc
}

type fakeFiles struct {
	writes map[int][]byte
	reads  map[int][]byte
}

func (f *fakeFiles) Write(pid sched.PID, fd int, data []byte) (int, defs.Err_t) {
	if f.writes == nil {
		f.writes = make(map[int][]byte)
	}
	f.writes[fd] = append(f.writes[fd], data...)
	return len(data), 0
}

func (f *fakeFiles) Read(pid sched.PID, fd int, buf []byte) (int, defs.Err_t) {
	src := f.reads[fd]
	n := copy(buf, src)
	return n, 0
}

type fakeFS struct {
	created []string
	deleted []string
	mkdirs  []string
	files   map[string][]byte
}

func (f *fakeFS) Create(path string) defs.Err_t { f.created = append(f.created, path); return 0 }
func (f *fakeFS) Delete(path string) defs.Err_t { f.deleted = append(f.deleted, path); return 0 }
func (f *fakeFS) Mkdir(path string) defs.Err_t  { f.mkdirs = append(f.mkdirs, path); return 0 }
func (f *fakeFS) ReadFile(path string) ([]byte, defs.Err_t) {
	data, ok := f.files[path]
	if !ok {
		return nil, defs.ENOENT
	}
	return data, 0
}

type fakeClock struct{ sec, ms uint64 }

func (c fakeClock) Now() (uint64, uint64) { return c.sec, c.ms }

func TestDispatchWriteCopiesUserBufToFile(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, sc := newBackedTask(t, alloc, va)

	payload := []byte("hello")
	ub := NewUserBuf(alloc, task.Space.SatpToken(), va, len(payload))
	if n, err := ub.CopyOut(payload); err != 0 || n != len(payload) {
		t.Fatalf("seeding user buffer failed: n=%d err=%v", n, err)
	}

	files := &fakeFiles{}
	m := &Machine{Alloc: alloc, Scheduler: sc, Files: files, FS: &fakeFS{}, Clock: fakeClock{}}

	tf := task.TrapFrame
	tf.X[17] = uint64(defs.SysWrite)
	tf.X[10] = uint64(va)
	tf.X[11] = 3 // fd
	tf.X[12] = uint64(len(payload))

	m.Dispatch(task)

	if tf.X[10] != uint64(len(payload)) {
		t.Fatalf("return value = %d, want %d", tf.X[10], len(payload))
	}
	if string(files.writes[3]) != "hello" {
		t.Fatalf("file received %q, want %q", files.writes[3], "hello")
	}
}

func TestDispatchReadCopiesFileIntoUserBuf(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, sc := newBackedTask(t, alloc, va)

	files := &fakeFiles{reads: map[int][]byte{5: []byte("world")}}
	m := &Machine{Alloc: alloc, Scheduler: sc, Files: files, FS: &fakeFS{}, Clock: fakeClock{}}

	tf := task.TrapFrame
	tf.X[17] = uint64(defs.SysRead)
	tf.X[10] = uint64(va)
	tf.X[11] = 5
	tf.X[12] = 5

	m.Dispatch(task)

	if tf.X[10] != 5 {
		t.Fatalf("return value = %d, want 5", tf.X[10])
	}
	if _, err := NewUserBuf(alloc, task.Space.SatpToken(), va, 5).CopyIn(make([]byte, 5)); err != 0 {
		t.Fatalf("reading back user buf: %v", err)
	}
}

func TestDispatchGetTimeWritesRecord(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, sc := newBackedTask(t, alloc, va)

	m := &Machine{Alloc: alloc, Scheduler: sc, Files: &fakeFiles{}, FS: &fakeFS{}, Clock: fakeClock{sec: 42, ms: 7}}

	tf := task.TrapFrame
	tf.X[17] = uint64(defs.SysGetTime)
	tf.X[10] = uint64(va)

	m.Dispatch(task)

	if tf.X[10] != 0 {
		t.Fatalf("GetTime return = %d, want 0", tf.X[10])
	}
	buf := make([]byte, 16)
	if _, err := NewUserBuf(alloc, task.Space.SatpToken(), va, 16).CopyIn(buf); err != 0 {
		t.Fatalf("reading back time record: %v", err)
	}
	sec := uint64(0)
	for i := 7; i >= 0; i-- {
		sec = sec<<8 | uint64(buf[i])
	}
	if sec != 42 {
		t.Fatalf("sec = %d, want 42", sec)
	}
}

func TestDispatchCreateDeleteMkdir(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, sc := newBackedTask(t, alloc, va)

	path := []byte("/tmp/x\x00")
	ub := NewUserBuf(alloc, task.Space.SatpToken(), va, len(path))
	if _, err := ub.CopyOut(path); err != 0 {
		t.Fatalf("seeding path: %v", err)
	}

	fs := &fakeFS{}
	m := &Machine{Alloc: alloc, Scheduler: sc, Files: &fakeFiles{}, FS: fs, Clock: fakeClock{}}

	for _, id := range []defs.Err_t{defs.SysCreate, defs.SysDelete, defs.SysMkdir} {
		tf := task.TrapFrame
		tf.X[17] = uint64(id)
		tf.X[10] = uint64(va)
		m.Dispatch(task)
		if tf.X[10] != 0 {
			t.Fatalf("syscall %d return = %d, want 0", id, tf.X[10])
		}
	}
	if len(fs.created) != 1 || fs.created[0] != "/tmp/x" {
		t.Fatalf("created = %v", fs.created)
	}
	if len(fs.deleted) != 1 || fs.deleted[0] != "/tmp/x" {
		t.Fatalf("deleted = %v", fs.deleted)
	}
	if len(fs.mkdirs) != 1 || fs.mkdirs[0] != "/tmp/x" {
		t.Fatalf("mkdirs = %v", fs.mkdirs)
	}
}

func TestDispatchForkAddsChildWithZeroReturn(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, sc := newBackedTask(t, alloc, va)

	m := &Machine{Alloc: alloc, Scheduler: sc, Files: &fakeFiles{}, FS: &fakeFS{}, Clock: fakeClock{}}

	tf := task.TrapFrame
	tf.X[17] = uint64(defs.SysFork)
	m.Dispatch(task)

	childPID := sched.PID(tf.X[10])
	if childPID == task.PID {
		t.Fatal("fork returned the parent's own pid")
	}

	sc.SuspendAndRunNext()
	child := sc.Current()
	if child.PID != childPID {
		t.Fatalf("expected to switch into child %d, got %d", childPID, child.PID)
	}
	if child.TrapFrame.X[10] != 0 {
		t.Fatalf("child's x[10] = %d, want 0", child.TrapFrame.X[10])
	}
}

func TestReadCStringStopsAtNUL(t *testing.T) {
	alloc := newTestAlloc(8)
	va := mem.VirtAddr(0x1000_0000)
	task, _ := newBackedTask(t, alloc, va)

	raw := append([]byte("/a/b"), 0, 'X', 'X')
	ub := NewUserBuf(alloc, task.Space.SatpToken(), va, len(raw))
	if _, err := ub.CopyOut(raw); err != 0 {
		t.Fatalf("seeding string: %v", err)
	}

	got, err := ReadCString(alloc, task.Space.SatpToken(), va)
	if err != 0 {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "/a/b" {
		t.Fatalf("ReadCString = %q, want %q", got, "/a/b")
	}
}
