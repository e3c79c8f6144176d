package mem

import (
	"runtime"
	"sync"

	"rvos/internal/config"
	"rvos/internal/defs"
	"rvos/internal/klog"
)

// FrameAllocator owns a half-open PPN interval [start, end) plus a
// recycled-set of returned PPNs (spec §4.1). alloc prefers a recycled PPN;
// otherwise it advances the bump pointer. Protected by a single mutex, as
// §5 requires for the frame allocator's shared state.
type FrameAllocator struct {
	mu       sync.Mutex
	start    PPN
	end      PPN
	next     PPN          // bump pointer; next never-yet-issued PPN
	free     map[PPN]bool // recycled PPNs available for reuse
	issued   map[PPN]bool // PPNs currently on loan (for dealloc validation)
	panicOOM bool

	// store backs every issued frame with PageSize bytes, standing in for
	// the direct-mapped physical memory biscuit's Physmem_t.Dmap exposes
	// on real hardware (biscuit/src/mem/mem.go); this kernel has no real
	// physical RAM to address from a hosted Go process, so the allocator
	// owns the backing bytes itself and hands out slices into them.
	store map[PPN][]byte
}

// NewFrameAllocator rounds start up and end down to a page boundary and
// initializes the bump pointer to the rounded start, per spec §4.1.
// panicOOM selects the allocation-failure policy: true panics (biscuit's and
// this kernel's default), false returns a nil tracker and notifies OOMChan
// so a caller can surface ENOMEM (the alternative spec §4.1 explicitly
// allows, adapted from biscuit/src/oommsg/oommsg.go's notification channel).
func NewFrameAllocator(start, end PhysAddr, panicOOM bool) *FrameAllocator {
	s := PPN((uint64(start) + config.PageSize - 1) >> config.PageShift)
	e := PPN(uint64(end) >> config.PageShift)
	if e < s {
		e = s
	}
	return &FrameAllocator{
		start:    s,
		end:      e,
		next:     s,
		free:     make(map[PPN]bool),
		issued:   make(map[PPN]bool),
		panicOOM: panicOOM,
		store:    make(map[PPN][]byte),
	}
}

// Alloc returns a freshly zeroed FrameTracker, or nil if the pool is
// exhausted and panicOOM is false.
func (fa *FrameAllocator) Alloc() *FrameTracker {
	fa.mu.Lock()
	var ppn PPN
	ok := false
	for p := range fa.free {
		ppn = p
		ok = true
		delete(fa.free, p)
		break
	}
	if !ok {
		if fa.next < fa.end {
			ppn = fa.next
			fa.next++
			ok = true
		}
	}
	if ok {
		fa.issued[ppn] = true
		if buf, present := fa.store[ppn]; present {
			clear(buf)
		} else {
			fa.store[ppn] = make([]byte, config.PageSize)
		}
	}
	fa.mu.Unlock()

	if !ok {
		if fa.panicOOM {
			klog.Panic("frame allocator exhausted")
		}
		select {
		case OOMChan <- OOMMsg{Need: 1}:
		default:
		}
		return nil
	}
	ft := &FrameTracker{ppn: ppn, owner: fa}
	trackFinalizer(ft)
	return ft
}

// Bytes returns the PageSize-byte slice backing ppn, standing in for
// biscuit's Physmem_t.Dmap8 direct-map accessor. Valid for any PPN that has
// ever been issued by this allocator, even after Dealloc (the bytes are
// reused, not released, matching how a real direct map behaves: the
// physical page still exists, only its ownership changed).
func (fa *FrameAllocator) Bytes(ppn PPN) []byte {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	buf, ok := fa.store[ppn]
	if !ok {
		klog.Panic("Bytes: ppn %#x was never issued by this allocator", uint64(ppn))
	}
	return buf
}

// Dealloc returns ppn to the free list. It panics (spec §4.1, §7: "double-
// free of a frame" is one of the only fatal conditions) on a PPN outside the
// origin range, a PPN at or above the bump pointer that was never issued, or
// a PPN already in the free list.
func (fa *FrameAllocator) Dealloc(ppn PPN) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if ppn < fa.start || ppn >= fa.next {
		klog.Panic("dealloc: ppn %#x outside issued range", uint64(ppn))
	}
	if !fa.issued[ppn] {
		klog.Panic("dealloc: ppn %#x double free", uint64(ppn))
	}
	if fa.free[ppn] {
		klog.Panic("dealloc: ppn %#x already free", uint64(ppn))
	}
	delete(fa.issued, ppn)
	fa.free[ppn] = true
}

// NumFree reports the number of frames immediately available (recycled plus
// never-yet-issued); used by tests and by OOM diagnostics.
func (fa *FrameAllocator) NumFree() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return len(fa.free) + int(fa.end-fa.next)
}

// FrameTracker exclusively owns one allocated frame (spec §3: "A
// FrameTracker value exclusively owns one allocated frame; when it is
// dropped, the frame returns to the allocator... Frames are never shared.").
// Go has no deterministic destructors, so ownership is enforced by
// convention plus a finalizer safety net: callers must call Free exactly
// once when they are done with the frame (mirroring Rust's explicit `drop`
// call sites in the original), and a GC finalizer reclaims frames whose
// owner forgot to, logging a warning so the bug is visible instead of
// leaking physical memory silently.
type FrameTracker struct {
	ppn   PPN
	owner *FrameAllocator
	freed bool
}

// PPN returns the physical page number this tracker owns.
func (ft *FrameTracker) PPN() PPN {
	return ft.ppn
}

// Free releases the frame back to its allocator. Calling Free more than
// once panics, matching the allocator's own double-free check.
func (ft *FrameTracker) Free() {
	if ft.freed {
		klog.Panic("FrameTracker double free: ppn %#x", uint64(ft.ppn))
	}
	ft.freed = true
	runtime.SetFinalizer(ft, nil)
	ft.owner.Dealloc(ft.ppn)
}

// trackFinalizer arms the GC safety net described on FrameTracker.
func trackFinalizer(ft *FrameTracker) {
	runtime.SetFinalizer(ft, func(leaked *FrameTracker) {
		if leaked.freed {
			return
		}
		klog.Warn("FrameTracker for ppn %#x was garbage collected without Free", uint64(leaked.ppn))
		leaked.owner.Dealloc(leaked.ppn)
	})
}

// OOMMsg is sent on OOMChan when the frame allocator is configured to
// surface exhaustion instead of panicking (spec §4.1's alternative policy),
// adapted directly from biscuit/src/oommsg/oommsg.go's Oommsg_t/OomCh: Need
// is the number of frames the failed request wanted, and Resume lets a
// future reclaim daemon signal the requester to retry.
type OOMMsg struct {
	Need   int
	Resume chan bool
}

// OOMChan is notified on allocation failure when panicOOM is false.
var OOMChan = make(chan OOMMsg, 16)

// ErrFromAlloc maps a nil FrameTracker to defs.ENOMEM, the convention every
// caller above the allocator uses.
func ErrFromAlloc(ft *FrameTracker) defs.Err_t {
	if ft == nil {
		return defs.ENOMEM
	}
	return 0
}
