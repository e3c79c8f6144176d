package vmm

import (
	"testing"

	"rvos/internal/config"
	"rvos/internal/mem"
	"rvos/internal/pagetable"
)

func newTestAlloc(nframes int) *mem.FrameAllocator {
	start := mem.PhysAddr(0x80000000)
	end := mem.PhysAddr(uint64(start) + uint64(nframes)*config.PageSize)
	return mem.NewFrameAllocator(start, end, true)
}

func TestMmapThenUnmapIdempotence(t *testing.T) {
	alloc := newTestAlloc(32)
	ms := NewUser(alloc)

	if errno := ms.Mmap(0x600000, 4096); errno != 0 {
		t.Fatalf("first mmap should succeed, got errno %d", errno)
	}
	if errno := ms.Mmap(0x600000, 4096); errno == 0 {
		t.Error("second overlapping mmap should fail")
	}

	if errno := ms.Unmap(0x600000, 4096); errno != 0 {
		t.Fatalf("first unmap should succeed, got errno %d", errno)
	}
	if errno := ms.Unmap(0x600000, 4096); errno == 0 {
		t.Error("second unmap of the same range should fail")
	}
}

func TestLazyAreaFaultsOnceThenStable(t *testing.T) {
	alloc := newTestAlloc(32)
	ms := NewUser(alloc)

	if errno := ms.Mmap(0x600000, 4096); errno != 0 {
		t.Fatalf("mmap failed: errno %d", errno)
	}

	if ms.pt.IsMapped(mem.VPNOf(0x600000)) {
		t.Fatal("lazy area must not be backed before first access")
	}

	if !ms.HandlePageFault(0x600000) {
		t.Fatal("expected page fault to be recovered")
	}
	if !ms.pt.IsMapped(mem.VPNOf(0x600000)) {
		t.Fatal("expected vpn to be mapped after fault")
	}

	ppnAfterFirst, _, _ := ms.pt.Translate(mem.VPNOf(0x600000))

	if !ms.HandlePageFault(0x600000) {
		t.Fatal("second fault on the same page should still report recovered")
	}
	ppnAfterSecond, _, _ := ms.pt.Translate(mem.VPNOf(0x600000))
	if ppnAfterFirst != ppnAfterSecond {
		t.Error("second fault allocated a new frame instead of reusing the existing one")
	}
}

func TestFaultOutsideAnyAreaIsFatal(t *testing.T) {
	alloc := newTestAlloc(32)
	ms := NewUser(alloc)

	if ms.HandlePageFault(0x700000) {
		t.Fatal("expected fault with no covering area to be unrecovered")
	}
}

func TestUnmapRefusesDefaultArea(t *testing.T) {
	alloc := newTestAlloc(32)
	ms := NewUser(alloc)
	if errno := ms.mapIdentical(0x1000, 0x2000, pagetable.FlagR|pagetable.FlagW); errno != 0 {
		t.Fatalf("mapIdentical failed: %d", errno)
	}
	if errno := ms.Unmap(0x1000, 0x1000); errno == 0 {
		t.Error("expected unmap of a Default area to fail")
	}
}

func TestKernelSpaceIdentityMapsRegions(t *testing.T) {
	alloc := newTestAlloc(64)
	trampoline := alloc.Alloc()
	regions := []Region{
		{Name: "text", Start: 0x80200000, End: 0x80201000, Perm: pagetable.FlagR | pagetable.FlagX},
	}
	ks := NewKernelSpace(alloc, regions, trampoline.PPN())

	pa, ok := ks.Translate(0x80200123)
	if !ok {
		t.Fatal("expected identity-mapped text region to translate")
	}
	if uint64(pa) != 0x80200123 {
		t.Errorf("expected identity translation, got %#x", pa)
	}

	_, ok = ks.Translate(mem.VirtAddr(config.TrapTopAddr))
	if !ok {
		t.Error("expected trampoline page to be mapped in kernel space")
	}
}
