// Command kernel is the boot-glue binary: it wires every subsystem
// together in this order (logging, frame allocator, kernel page table
// activation, task manager and descriptor table, block device, file
// system, trap vector, timer, first task) and hands off to
// run_first_task. There is no separate heap step, and the trap vector
// and timer are set up after the file system is mounted, not before.
//
// biscuit/src/kernel/ only retrieved chentry.go, a build-time tool, not
// its own boot/main.go, so this file has no single teacher source to
// adapt line-for-line; its shape instead follows the same terse,
// doc-comment-per-step style the rest of this module uses, and every
// subsystem it wires is built and tested elsewhere in this tree.
package main

import (
	"flag"
	"reflect"
	"time"

	"rvos/internal/blockdev"
	"rvos/internal/config"
	"rvos/internal/firmware"
	"rvos/internal/fs"
	"rvos/internal/klog"
	"rvos/internal/mem"
	"rvos/internal/pagetable"
	"rvos/internal/sched"
	"rvos/internal/syscall"
	"rvos/internal/trapframe"
	"rvos/internal/vfs"
	"rvos/internal/vmm"
)

// ticksPerQuantum is the SBI timer interval between preemptions, at
// config.TimerFreqHz assuming (as qemu-virt does) a 10 MHz mtime counter.
const ticksPerQuantum = 10_000_000 / config.TimerFreqHz

func main() {
	diskPath := flag.String("disk", "disk.img", "path to the block device image")
	initPath := flag.String("init", "/init", "path within the filesystem of the first task's ELF image")
	flag.Parse()

	sbi := firmware.QemuSBI{}
	console := firmware.Console{SBI: sbi}

	// logging
	klog.SetOutputSink(console)
	klog.Printf("booting\n")

	// heap / frame allocator
	alloc := mem.NewFrameAllocator(0, mem.PhysAddr(config.FramePoolPages*config.PageSize), true)
	klog.Printf("frame allocator: %d pages free\n", alloc.NumFree())

	// kernel page table activation
	trampoline := alloc.Alloc()
	regions := []vmm.Region{
		{
			Name:  "ram",
			Start: 0,
			End:   mem.VirtAddr(config.FramePoolPages * config.PageSize),
			Perm:  pagetable.FlagR | pagetable.FlagW | pagetable.FlagX,
		},
	}
	kernelSpace := vmm.NewKernelSpace(alloc, regions, trampoline.PPN())
	kernelSpace.Activate()
	klog.Printf("kernel address space activated\n")

	// task manager and file descriptor table, needed by the trap vector
	// below before either is populated.
	scheduler := sched.NewScheduler(config.MaxPID)
	files := vfs.NewTable()
	clk := wallClock{}

	// block device and file system
	dev, err := blockdev.OpenFileDevice(*diskPath)
	if err != nil {
		klog.Panic("opening block device %q: %v", *diskPath, err)
	}
	fsys, ferr := fs.Mount(dev)
	if ferr != 0 {
		klog.Panic("mounting filesystem: errno %d", ferr)
	}
	klog.Printf("filesystem mounted from %q\n", *diskPath)

	machine := &syscall.Machine{
		Alloc:     alloc,
		Scheduler: scheduler,
		Files:     files,
		FS:        fsys,
		Clock:     clk,
	}

	// trap vector
	dispatcher := trapframe.NewDispatcher(fatalTrap)
	dispatcher.Register(trapframe.CauseUserEnvCall, syscallTrap(machine, scheduler))
	dispatcher.Register(trapframe.CauseLoadPageFault, pageFaultTrap(scheduler))
	dispatcher.Register(trapframe.CauseStorePageFault, pageFaultTrap(scheduler))
	dispatcher.Register(trapframe.CauseInstructionPageFault, pageFaultTrap(scheduler))
	dispatcher.Register(trapframe.CauseSupervisorTimer, timerTrap(scheduler, sbi))

	// timer
	sbi.SetTimer(ticksPerQuantum)
	klog.Printf("timer armed, quantum=%d ticks\n", ticksPerQuantum)

	// first task
	data, rerr := fsys.ReadFile(*initPath)
	if rerr != 0 {
		klog.Panic("reading init image %q: errno %d", *initPath, rerr)
	}
	pid, ok := scheduler.AllocPID()
	if !ok {
		klog.Panic("no PIDs available for the first task")
	}
	userSpace, img, lerr := kernelSpace.NewUserFromELF(alloc, int(pid), data, trampoline.PPN())
	if lerr != 0 {
		klog.Panic("loading init image %q: errno %d", *initPath, lerr)
	}

	tf := trapframe.NewInitial(img.EntryPC, img.UserSP, config.UserRetAddr, kernelSpace.SatpToken(), img.KernelSPTop, trapHandlerAddr())

	task := sched.NewTCB(pid, userSpace, tf)
	task.Context.Ra = trapReturnAddr()
	task.Context.Sp = img.KernelSPTop

	files.Preopen(pid, vfs.NewStdin(console), vfs.NewStdout(console))

	scheduler.Add(task)
	klog.Printf("starting pid %d at entry %#x\n", pid, img.EntryPC)

	if !scheduler.RunFirstTask() {
		klog.Panic("no runnable task at boot")
	}
}

// wallClock implements syscall.Clock over the host's wall clock — the
// real RTC/mtime wiring this stands in for is an out-of-scope firmware
// collaborator (spec §1), same as Console standing in for the UART.
type wallClock struct{}

func (wallClock) Now() (sec, ms uint64) {
	now := time.Now()
	return uint64(now.Unix()), uint64(now.Nanosecond() / 1_000_000)
}

func syscallTrap(m *syscall.Machine, s *sched.Scheduler) trapframe.Handler {
	return func(tf *trapframe.TrapFrame, cause trapframe.Cause, stval uint64) (*trapframe.TrapFrame, bool) {
		task := s.Current()
		if task == nil {
			return tf, false
		}
		m.Dispatch(task)
		if cur := s.Current(); cur != nil {
			return cur.TrapFrame, true
		}
		return tf, false
	}
}

func pageFaultTrap(s *sched.Scheduler) trapframe.Handler {
	return func(tf *trapframe.TrapFrame, cause trapframe.Cause, stval uint64) (*trapframe.TrapFrame, bool) {
		task := s.Current()
		if task == nil || task.Space == nil {
			return tf, false
		}
		if !task.Space.HandlePageFault(mem.VirtAddr(stval)) {
			return tf, false
		}
		return tf, true
	}
}

// timerTrap rearms the timer for the next quantum and preempts the
// current task (spec §5).
func timerTrap(s *sched.Scheduler, sbi firmware.SBI) trapframe.Handler {
	next := uint64(ticksPerQuantum)
	return func(tf *trapframe.TrapFrame, cause trapframe.Cause, stval uint64) (*trapframe.TrapFrame, bool) {
		next += ticksPerQuantum
		sbi.SetTimer(next)
		s.SuspendAndRunNext()
		cur := s.Current()
		if cur == nil {
			return tf, false
		}
		return cur.TrapFrame, true
	}
}

// fatalTrap is the dispatcher's fallback: any cause with no registered
// handler is a kernel bug, not a recoverable user fault (spec §7).
func fatalTrap(tf *trapframe.TrapFrame, cause trapframe.Cause, stval uint64) (*trapframe.TrapFrame, bool) {
	klog.Panic("unhandled trap: cause=%#x stval=%#x", uint64(cause), stval)
	return nil, false
}

// trapHandlerAddr and trapReturnAddr resolve the trampoline's Go function
// values to the raw addresses the TrapFrame/TaskContext ABI stores as
// plain uint64s (spec §4.4/§4.5) — the one place this module needs a
// function's address rather than calling it, so reflect is the least
// surprising stdlib tool for it; nothing in the retrieved pack offers a
// higher-level equivalent.
func trapHandlerAddr() uint64 {
	return funcAddr(trapframe.TrapEntry)
}

func trapReturnAddr() uint64 {
	return funcAddr(trapframe.TrapReturn)
}

func funcAddr(fn func()) uint64 {
	return uint64(reflect.ValueOf(fn).Pointer())
}
