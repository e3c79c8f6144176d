package taskctx

// Switch saves the caller's ra/sp/s0..s11 into *out and loads the same
// fields from *in, then returns executing with *in's registers (spec
// §4.5: "no page-table change; floating-point state is not preserved;
// interrupts must be disabled across the body"). The caller must ensure
// S-mode interrupts are already off — the scheduler (per §5) runs with
// interrupts disabled throughout its internals, so this is established at
// every call site before Switch runs. Defined in switch_riscv64.s.
func Switch(out, in *TaskContext)
