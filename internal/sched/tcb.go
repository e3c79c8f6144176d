// Package sched implements the stride scheduler (spec §4.6): task control
// blocks, a PID pool, per-task accounting, and the ready-queue operations
// (add, remove_current, suspend_and_run_next, run_first_task,
// kill_current_and_run_next) built on top of taskctx.Switch.
//
// biscuit/src/proc (the teacher's own process/scheduler package) was
// retrieved with a go.mod only and no source, so this package's shape
// is grounded piecewise on the adjacent packages that did retrieve:
// tinfo.go's per-task note (state/killed bookkeeping), msi.go's
// allocate-from-a-bounded-set pool (see pidpool.go), and accnt.go's
// run-time accounting (see accnt.go).
package sched

import (
	"sync"

	"rvos/internal/config"
	"rvos/internal/defs"
	"rvos/internal/taskctx"
	"rvos/internal/trapframe"
	"rvos/internal/vmm"
)

// TCB is one task's control block. State is protected by the owning
// Scheduler's mutex; fields a running task touches without the scheduler
// lock held (Context, via Switch) are only ever touched by the one
// goroutine executing that task.
type TCB struct {
	PID   PID
	State defs.TaskState_t

	Context   taskctx.TaskContext
	TrapFrame *trapframe.TrapFrame
	Space     *vmm.MemorySet

	// Stride-scheduler bookkeeping (spec §4.6): Ticket is the task's
	// share weight, Stride = BigStride/Ticket, Pass accumulates Stride
	// each time SuspendAndRunNext suspends the task; it is not advanced
	// when the task is picked to run. The ready task with the
	// smallest Pass runs next; ties break toward the lowest insertion
	// index.
	Ticket int
	Stride uint64
	Pass   uint64

	Accnt Accnt

	// ExitCode is valid once State == defs.Zombie.
	ExitCode int
}

// NewTCB builds a task control block with the default ticket count
// (spec §4.6) and zeroed stride accounting — a task's Pass starts at 0,
// same as every other newly added task, so it is never starved relative
// to tasks that have been ready longer.
func NewTCB(pid PID, space *vmm.MemorySet, tf *trapframe.TrapFrame) *TCB {
	ticket := config.DefaultTicket
	return &TCB{
		PID:       pid,
		State:     defs.Ready,
		TrapFrame: tf,
		Space:     space,
		Ticket:    ticket,
		Stride:    config.BigStride / uint64(ticket),
	}
}

// Scheduler owns the ready queue and the notion of "current task". One
// Scheduler instance corresponds to spec §4.6's single scheduling
// context; this kernel has no SMP support, so there is exactly one.
type Scheduler struct {
	mu      sync.Mutex
	ready   []*TCB
	current *TCB
	seq     uint64 // insertion sequence, for stable tie-breaking
	order   map[PID]uint64

	pids *PIDPool
}

// NewScheduler builds an empty scheduler backed by a PID pool of the
// given capacity.
func NewScheduler(pidCapacity int) *Scheduler {
	return &Scheduler{
		pids:  NewPIDPool(pidCapacity),
		order: make(map[PID]uint64),
	}
}

// AllocPID reserves a PID for a new task, or ok=false if the pool is
// exhausted (spec §7: allocation failure is reported to the caller, not
// panicked).
func (s *Scheduler) AllocPID() (PID, bool) {
	return s.pids.Alloc()
}

// Add inserts t into the ready queue (spec §4.6 add).
func (s *Scheduler) Add(t *TCB) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.State = defs.Ready
	s.seq++
	s.order[t.PID] = s.seq
	s.ready = append(s.ready, t)
}

// pickNext removes and returns the ready task with the smallest Pass,
// breaking ties toward whichever was added earlier. Must be called with
// s.mu held. Returns nil if the ready queue is empty.
func (s *Scheduler) pickNext() *TCB {
	if len(s.ready) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(s.ready); i++ {
		c := s.ready[i]
		b := s.ready[best]
		if c.Pass < b.Pass || (c.Pass == b.Pass && s.order[c.PID] < s.order[b.PID]) {
			best = i
		}
	}
	next := s.ready[best]
	s.ready = append(s.ready[:best], s.ready[best+1:]...)
	delete(s.order, next.PID)
	return next
}

// RunFirstTask picks the highest-priority ready task and switches into it
// for the first time, using scratch as the outgoing context (spec §4.6
// run_first_task: its contents are never read again, since nothing
// switches back into it). It does not return until the kernel is shut
// down or the chosen task itself yields back through a later
// suspend_and_run_next/kill_current_and_run_next call that eventually
// switches into scratch again — in practice it does not return at all in
// a real boot, matching the spec's framing of run_first_task as a
// one-way trip.
func (s *Scheduler) RunFirstTask() bool {
	s.mu.Lock()
	next := s.pickNext()
	if next == nil {
		s.mu.Unlock()
		return false
	}
	next.State = defs.Running
	s.current = next
	s.mu.Unlock()

	var scratch taskctx.TaskContext
	if next.Space != nil {
		next.Space.Activate()
	}
	taskctx.Switch(&scratch, &next.Context)
	return true
}

// GetCurrentSatp returns the current task's address-space token, for the
// trap dispatcher to compare against on kernel re-entry.
func (s *Scheduler) GetCurrentSatp() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Space == nil {
		return 0, false
	}
	return s.current.Space.SatpToken(), true
}

// GetCurrentTrapFrame returns the current task's trap frame.
func (s *Scheduler) GetCurrentTrapFrame() (*trapframe.TrapFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current.TrapFrame, true
}

// Current returns the currently running task, or nil if none is running
// (e.g. before RunFirstTask or after the last task exits).
func (s *Scheduler) Current() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SuspendAndRunNext re-enqueues the current task as Ready, advances its
// Pass by its Stride (spec §4.6), picks the next task by stride order,
// and switches into it. Returns false if there is no other task to run,
// in which case the current task keeps running and the call is a no-op.
func (s *Scheduler) SuspendAndRunNext() bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil {
		s.mu.Unlock()
		return false
	}
	next := s.pickNext()
	if next == nil {
		s.mu.Unlock()
		return false
	}

	cur.Pass += cur.Stride
	cur.State = defs.Ready
	s.seq++
	s.order[cur.PID] = s.seq
	s.ready = append(s.ready, cur)

	next.State = defs.Running
	s.current = next
	s.mu.Unlock()

	if next.Space != nil {
		next.Space.Activate()
	}
	taskctx.Switch(&cur.Context, &next.Context)
	return true
}

// RemoveCurrent clears the scheduler's notion of "current" without
// touching the ready queue or freeing any resources, for a caller that
// has already taken over full ownership of the outgoing task.
func (s *Scheduler) RemoveCurrent() *TCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current
	s.current = nil
	return cur
}

// KillCurrentAndRunNext marks the current task Zombie with the given
// exit code, releases its PID, and switches into the next ready task
// (spec §4.6 kill_current_and_run_next). It panics if there is no other
// ready task: spec §9 treats "no other runnable task when the last one
// exits" as the kernel's own shutdown condition, not a schedulable state.
func (s *Scheduler) KillCurrentAndRunNext(exitCode int) {
	s.mu.Lock()
	cur := s.current
	if cur == nil {
		s.mu.Unlock()
		panic("sched: KillCurrentAndRunNext with no current task")
	}
	cur.State = defs.Zombie
	cur.ExitCode = exitCode

	next := s.pickNext()
	if next == nil {
		s.mu.Unlock()
		s.pids.Free(cur.PID)
		panic("sched: no runnable task remains")
	}

	next.State = defs.Running
	s.current = next
	s.mu.Unlock()

	s.pids.Free(cur.PID)

	if next.Space != nil {
		next.Space.Activate()
	}
	var discard taskctx.TaskContext
	taskctx.Switch(&discard, &next.Context)
}
