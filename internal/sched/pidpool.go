package sched

import "sync"

// PID is a task identifier, a small integer in [0, MaxPID) (spec §3).
type PID int

// PIDPool hands out and reclaims PIDs from a fixed-size pool. Grounded on
// biscuit/src/msi/msi.go's Msivecs_t: both are "allocate a free small
// integer from a bounded set, panic on double free" pools, generalized
// here from MSI's fixed 8-vector set to a parameterized capacity and
// switched from a map to a bool slice, since the PID space is large
// enough (MaxPID) that a slice scan is the simpler and more cache-local
// choice than the map biscuit uses for its 8-entry set.
type PIDPool struct {
	mu    sync.Mutex
	avail []bool
	next  int // next index to probe, round-robins to avoid always rescanning from 0
}

// NewPIDPool builds a pool with every PID in [0, capacity) initially free.
func NewPIDPool(capacity int) *PIDPool {
	avail := make([]bool, capacity)
	for i := range avail {
		avail[i] = true
	}
	return &PIDPool{avail: avail}
}

// Alloc reserves and returns a free PID, or ok=false if the pool is
// exhausted.
func (p *PIDPool) Alloc() (PID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.avail)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.avail[idx] {
			p.avail[idx] = false
			p.next = (idx + 1) % n
			return PID(idx), true
		}
	}
	return 0, false
}

// Free releases pid back to the pool. It panics on a double free, the
// same contract as Msi_free.
func (p *PIDPool) Free(pid PID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(pid) < 0 || int(pid) >= len(p.avail) {
		panic("sched: Free of out-of-range pid")
	}
	if p.avail[pid] {
		panic("sched: double free of pid")
	}
	p.avail[pid] = true
}
