package trapframe

// TrapEntry is the trampoline's user-trap entry point (spec §6's reserved
// trampoline page, spec §4.4): it swaps in the kernel page table and
// kernel stack recorded in the active TrapFrame, saves the interrupted
// user registers into that frame, then jumps to TrapHandler. It is
// mapped at the same virtual address in every address space so the
// sret/sfence sequence can run before the user page table is torn down.
// Defined in trampoline_riscv64.s.
func TrapEntry()

// TrapReturn is the trampoline's counterpart that restores user
// registers from a TrapFrame, switches back to the user page table, and
// sret's to sepc. Defined in trampoline_riscv64.s.
func TrapReturn()
