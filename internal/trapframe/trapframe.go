// Package trapframe implements the fixed-layout trap frame (spec §4.4)
// and the scause-keyed dispatch table the trap handler consults once the
// trampoline has saved user context and switched to the kernel page
// table.
//
// Grounded on biscuit/src/stat/stat.go's Bytes() (expose a fixed-layout
// struct's raw bytes via unsafe.Pointer, so the frame can be written into
// and read back out of a physical page the same way the page table writes
// PTE words) and on gopher-os's kernel/irq dispatch shape
// (ExceptionHandler/ExceptionHandlerWithCode registered per exception
// number) generalized here to a map keyed by scause instead of a fixed
// array, since RISC-V's cause encoding uses the top bit to distinguish
// interrupts from exceptions rather than a small dense vector.
package trapframe

import "unsafe"

// Cause identifies why a trap occurred: an exception cause has its top
// bit clear, an interrupt cause has it set (RISC-V privileged spec).
type Cause uint64

const (
	interruptBit = uint64(1) << 63

	CauseUserEnvCall          Cause = 8
	CauseIllegalInstruction   Cause = 2
	CauseLoadPageFault        Cause = 13
	CauseStorePageFault       Cause = 15
	CauseInstructionPageFault Cause = 12
	CauseSupervisorTimer      Cause = Cause(interruptBit | 5)
	CauseSupervisorExternal   Cause = Cause(interruptBit | 9)
)

// IsInterrupt reports whether c is an interrupt cause rather than an
// exception.
func (c Cause) IsInterrupt() bool { return uint64(c)&interruptBit != 0 }

// sstatus bit positions this package sets on a fresh trap frame.
const (
	sstatusSPIE = uint64(1) << 5 // enable interrupts on sret back to U mode
	// SPP is bit 8; leaving it 0 selects User mode, spec §4.4's required
	// initial value, so it is never set here.
)

// TrapFrame is the fixed 37-word record the trampoline saves user
// context into and restores it from (spec §4.4). Field order and types
// must not change: the assembly trampoline (trampoline_riscv64.s)
// addresses every field by its byte offset, not by name. x0..x31 occupy
// words 0..31, sstatus word 32, sepc word 33, kernel_satp word 34,
// kernel_sp word 35, trap_handler word 36.
type TrapFrame struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

// Bytes exposes the frame's raw bytes, the same unsafe-pointer trick
// biscuit's Stat_t.Bytes() uses, so the frame can be copied verbatim into
// the physical page backing TRAP_CONTEXT_ADDR.
func (tf *TrapFrame) Bytes() []byte {
	const sz = unsafe.Sizeof(TrapFrame{})
	sl := (*[sz]byte)(unsafe.Pointer(tf))
	return sl[:]
}

// FromBytes interprets buf (which must be at least TrapFrame-sized) as a
// *TrapFrame in place, without copying — used when buf is already the
// physical page backing a task's trap frame.
func FromBytes(buf []byte) *TrapFrame {
	return (*TrapFrame)(unsafe.Pointer(&buf[0]))
}

// NewInitial builds the trap frame a freshly created task starts with
// (spec §4.4): SPP=User, SPIE=1, sepc at the ELF entry point, x[2]
// (sp) at the user stack pointer, x[1] (ra) at the user start-return
// trampoline so returning from main lands somewhere safe, and the kernel
// bookkeeping fields the trap entry path needs to get back into the
// kernel on the next trap.
func NewInitial(entryPC, userSP, userRetAddr, kernelSatp, kernelSP, trapHandler uint64) *TrapFrame {
	tf := &TrapFrame{
		Sstatus:     sstatusSPIE,
		Sepc:        entryPC,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSP,
		TrapHandler: trapHandler,
	}
	tf.X[1] = userRetAddr
	tf.X[2] = userSP
	return tf
}

// Handler processes one trap once the trampoline has saved context and
// switched to the kernel page table. stval carries scause's supplementary
// value (the faulting address for a page fault). It returns the
// (possibly unchanged) trap frame to resume with, and recovered=false if
// the current task must be killed rather than resumed.
type Handler func(tf *TrapFrame, cause Cause, stval uint64) (resume *TrapFrame, recovered bool)

// Dispatcher routes a trap to the handler registered for its cause.
type Dispatcher struct {
	handlers map[Cause]Handler
	fallback Handler
}

// NewDispatcher builds an empty dispatch table. fallback is invoked for
// any cause with no registered handler — spec §4.4's "Other: panic"
// default.
func NewDispatcher(fallback Handler) *Dispatcher {
	return &Dispatcher{handlers: make(map[Cause]Handler), fallback: fallback}
}

// Register installs handler for cause, replacing any previous one.
func (d *Dispatcher) Register(cause Cause, handler Handler) {
	d.handlers[cause] = handler
}

// Dispatch routes one trap to its registered handler, or to fallback.
func (d *Dispatcher) Dispatch(tf *TrapFrame, cause Cause, stval uint64) (*TrapFrame, bool) {
	if h, ok := d.handlers[cause]; ok {
		return h(tf, cause, stval)
	}
	return d.fallback(tf, cause, stval)
}
