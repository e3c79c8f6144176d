package syscall

import (
	"rvos/internal/defs"
	"rvos/internal/elfload"
	"rvos/internal/klog"
	"rvos/internal/mem"
	"rvos/internal/sched"
)

// FileTable is the subset of file-descriptor behavior Write/Read need.
// Grounded on biscuit/src/fd/fd.go's Fd_t, whose Fops interface is
// implemented per concrete node kind (disk file, directory, stdio);
// here the capability set is narrowed to the two operations the syscall
// table actually dispatches to.
type FileTable interface {
	Write(pid sched.PID, fd int, data []byte) (int, defs.Err_t)
	Read(pid sched.PID, fd int, buf []byte) (int, defs.Err_t)
}

// FS is the subset of VFS behavior the path-taking syscalls need.
// ReadFile backs Exec's image load, not a syscall of its own.
type FS interface {
	Create(path string) defs.Err_t
	Delete(path string) defs.Err_t
	Mkdir(path string) defs.Err_t
	ReadFile(path string) ([]byte, defs.Err_t)
}

// Clock supplies GetTime's {sec, ms} pair.
type Clock interface {
	Now() (sec, ms uint64)
}

// Machine bundles everything Dispatch needs to reach outside the
// syscalling task itself: the frame allocator (for user-buffer
// translation), the scheduler (for Exit/Yield/Fork), open files, the
// filesystem, and the clock.
type Machine struct {
	Alloc     *mem.FrameAllocator
	Scheduler *sched.Scheduler
	Files     FileTable
	FS        FS
	Clock     Clock
}

// timeRecord is GetTime's {sec, ms} output record (spec §4.7).
type timeRecord struct {
	Sec uint64
	Ms  uint64
}

func (tr timeRecord) bytes() []byte {
	buf := make([]byte, 16)
	putU64(buf[0:8], tr.Sec)
	putU64(buf[8:16], tr.Ms)
	return buf
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Dispatch decodes task's trap frame (x[17] id, x[10..12] args) and
// executes the named syscall (spec §4.7), writing the result into x[10]
// unless the call is Exit (which never returns to the caller). satp is
// the task's own address-space token, used to translate every user
// pointer argument.
func (m *Machine) Dispatch(task *sched.TCB) {
	tf := task.TrapFrame
	id := tf.X[17]
	a0, a1, a2 := tf.X[10], tf.X[11], tf.X[12]
	satp := task.Space.SatpToken()

	var ret int64
	switch defs.Err_t(id) {
	case defs.SysGetTime:
		ret = m.sysGetTime(satp, a0)
	case defs.SysWrite:
		ret = m.sysWrite(task.PID, satp, a0, a1, a2)
	case defs.SysRead:
		ret = m.sysRead(task.PID, satp, a0, a1, a2)
	case defs.SysExit:
		m.sysExit(task, int(a0))
		return // never reaches the caller: KillCurrentAndRunNext switched away
	case defs.SysYield:
		m.Scheduler.SuspendAndRunNext()
		ret = 0
	case defs.SysMmap:
		ret = errToRet(task.Space.Mmap(mem.VirtAddr(a0), a1))
	case defs.SysUnmap:
		ret = errToRet(task.Space.Unmap(mem.VirtAddr(a0), a1))
	case defs.SysCreate:
		ret = m.sysPath(satp, a0, m.FS.Create)
	case defs.SysDelete:
		ret = m.sysPath(satp, a0, m.FS.Delete)
	case defs.SysMkdir:
		ret = m.sysPath(satp, a0, m.FS.Mkdir)
	case defs.SysFork:
		ret = m.sysFork(task)
	case defs.SysExec:
		ret = m.sysExec(task, satp, a0)
	default:
		ret = -1
	}
	tf.X[10] = uint64(ret)
}

func errToRet(err defs.Err_t) int64 {
	if err != 0 {
		return -1
	}
	return 0
}

func (m *Machine) sysGetTime(satp uint64, va uint64) int64 {
	sec, ms := m.Clock.Now()
	ub := NewUserBuf(m.Alloc, satp, mem.VirtAddr(va), 16)
	rec := timeRecord{Sec: sec, Ms: ms}.bytes()
	if n, err := ub.CopyOut(rec); err != 0 || n != len(rec) {
		return -1
	}
	return 0
}

func (m *Machine) sysWrite(pid sched.PID, satp uint64, va, fd, length uint64) int64 {
	buf := make([]byte, length)
	ub := NewUserBuf(m.Alloc, satp, mem.VirtAddr(va), int(length))
	n, err := ub.CopyIn(buf)
	if err != 0 && n == 0 {
		return -1
	}
	written, err := m.Files.Write(pid, int(fd), buf[:n])
	if err != 0 {
		return -1
	}
	return int64(written)
}

func (m *Machine) sysRead(pid sched.PID, satp uint64, va, fd, length uint64) int64 {
	buf := make([]byte, length)
	n, err := m.Files.Read(pid, int(fd), buf)
	if err != 0 {
		return -1
	}
	ub := NewUserBuf(m.Alloc, satp, mem.VirtAddr(va), n)
	written, err := ub.CopyOut(buf[:n])
	if err != 0 {
		return -1
	}
	return int64(written)
}

func (m *Machine) sysExit(task *sched.TCB, code int) {
	if code != 0 {
		klog.Warn("pid %d exited with code %d", task.PID, code)
	}
	m.Scheduler.KillCurrentAndRunNext(code)
}

func (m *Machine) sysPath(satp uint64, va uint64, op func(string) defs.Err_t) int64 {
	path, err := ReadCString(m.Alloc, satp, mem.VirtAddr(va))
	if err != 0 {
		return -1
	}
	return errToRet(op(path))
}

// sysFork implements Fork minimally (spec §9: reserved, implementation
// open): the child is a new task that starts with the parent's trap
// frame duplicated (so it resumes at the same pc/sp) except for its
// return value, which is forced to 0 per the conventional Unix contract
// "0 in the child, child pid in the parent". Its address space is not
// actually copy-on-write here — it shares the parent's MemorySet
// pointer, which is adequate for this kernel's minimal process model but
// means the two tasks are not isolated the way a full fork(2) would be;
// a real copy-on-write implementation is future work this minimal build
// does not attempt.
func (m *Machine) sysFork(parent *sched.TCB) int64 {
	childPID, ok := m.Scheduler.AllocPID()
	if !ok {
		return -1
	}
	childFrame := *parent.TrapFrame
	childFrame.X[10] = 0
	child := sched.NewTCB(childPID, parent.Space, &childFrame)
	m.Scheduler.Add(child)
	return int64(childPID)
}

// sysExec implements Exec minimally (spec §9): it reads the ELF image at
// the user-supplied path, validates it with elfload.Load, and sets the
// trap frame's pc (Sepc) to the image's entry point. It does not map or
// copy the image's segments into the address space, and it leaves sp
// and the caller's existing mappings unchanged.
func (m *Machine) sysExec(task *sched.TCB, satp uint64, pathVA uint64) int64 {
	path, err := ReadCString(m.Alloc, satp, mem.VirtAddr(pathVA))
	if err != 0 {
		return -1
	}
	data, derr := m.FS.ReadFile(path)
	if derr != 0 {
		return -1
	}
	img, lerr := elfload.Load(data)
	if lerr != 0 {
		return -1
	}
	task.TrapFrame.Sepc = img.Entry
	return 0
}
