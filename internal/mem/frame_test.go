package mem

import (
	"testing"

	"rvos/internal/config"
)

func newTestAllocator(nframes int) *FrameAllocator {
	start := PhysAddr(0x80000000)
	end := PhysAddr(uint64(start) + uint64(nframes)*config.PageSize)
	return NewFrameAllocator(start, end, true)
}

func TestAllocDeallocReuse(t *testing.T) {
	fa := newTestAllocator(4)
	f1 := fa.Alloc()
	if f1 == nil {
		t.Fatal("expected successful alloc")
	}
	ppn := f1.PPN()
	f1.Free()

	f2 := fa.Alloc()
	if f2 == nil {
		t.Fatal("expected successful alloc after free")
	}
	if f2.PPN() != ppn {
		t.Errorf("expected reused ppn %#x, got %#x", ppn, f2.PPN())
	}
}

func TestAllocExhaustionPanics(t *testing.T) {
	fa := newTestAllocator(1)
	fa.Alloc()
	defer func() {
		if recover() == nil {
			t.Error("expected panic on exhaustion")
		}
	}()
	fa.Alloc()
}

func TestAllocExhaustionReturnsNilWithOOMPolicy(t *testing.T) {
	fa := NewFrameAllocator(PhysAddr(0x80000000), PhysAddr(0x80000000+config.PageSize), false)
	fa.Alloc()
	if got := fa.Alloc(); got != nil {
		t.Error("expected nil on exhaustion under non-panic policy")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	fa := newTestAllocator(2)
	f := fa.Alloc()
	f.Free()
	defer func() {
		if recover() == nil {
			t.Error("expected panic on double free")
		}
	}()
	f.Free()
}

func TestDistinctFramesNeverAlias(t *testing.T) {
	fa := newTestAllocator(3)
	f1 := fa.Alloc()
	f2 := fa.Alloc()
	f3 := fa.Alloc()
	seen := map[PPN]bool{}
	for _, f := range []*FrameTracker{f1, f2, f3} {
		if seen[f.PPN()] {
			t.Fatalf("ppn %#x issued twice concurrently", f.PPN())
		}
		seen[f.PPN()] = true
	}
}
