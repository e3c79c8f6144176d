package sched

import "sync/atomic"

// Accnt accumulates a task's run-time accounting: nanoseconds spent
// executing, for diagnostics. Adapted from biscuit/src/accnt/accnt.go's Accnt_t, trimmed
// to the fields this kernel actually needs: biscuit's Userns/Sysns user-
// vs-system split and its rusage serialization exist to back a POSIX
// rusage(2)-shaped syscall this kernel does not implement (spec §1
// Non-goals has no getrusage), so a single running-time counter is kept.
// The scheduler neither charges nor reads it.
type Accnt struct {
	runNs int64
}

// Add adds delta nanoseconds of run time, the same atomic-counter pattern
// as Accnt_t.Utadd/Systadd.
func (a *Accnt) Add(delta int64) {
	atomic.AddInt64(&a.runNs, delta)
}

// RunNs returns the accumulated run time in nanoseconds.
func (a *Accnt) RunNs() int64 {
	return atomic.LoadInt64(&a.runNs)
}
