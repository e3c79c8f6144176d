// Package taskctx implements TaskContext and the __switch context-switch
// primitive (spec §4.5). TaskContext's field layout is part of the ABI
// between the assembly switcher and the rest of the kernel (spec §9:
// "the TaskContext record layout is part of the ABI between the switcher
// and the surrounding code"), so its fields may not be reordered.
//
// Grounded on biscuit/src/tinfo/tinfo.go for the task-lifecycle-adjacent
// naming this package's callers (sched) use, and on gopher-os's
// architecture-suffixed file split (kernel/cpu, kernel/irq pair a bodyless
// `_amd64.go` declaration with an `_amd64.s` assembly definition) for how
// Switch itself is expressed: see switch_riscv64.go/switch_riscv64.s.
package taskctx

// TaskContext holds the registers __switch saves and restores: the return
// address, the stack pointer, and the twelve callee-saved registers
// s0..s11 (spec §4.5 offsets: ra@0, sp@8, s0..s11@16..112).
type TaskContext struct {
	Ra uint64
	Sp uint64
	S  [12]uint64
}

// Zero returns a TaskContext suitable as the scratch "current" context
// run_first_task switches out of (spec §4.6): its fields are never read
// because nothing switches back into it.
func Zero() TaskContext {
	return TaskContext{}
}
