package pagetable

import (
	"testing"

	"rvos/internal/config"
	"rvos/internal/mem"
)

func newTestAlloc(nframes int) *mem.FrameAllocator {
	start := mem.PhysAddr(0x80000000)
	end := mem.PhysAddr(uint64(start) + uint64(nframes)*config.PageSize)
	return mem.NewFrameAllocator(start, end, true)
}

func TestMapTranslateRoundTrip(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	data := alloc.Alloc()
	vpn := mem.VPN(0x1234)
	pt.Map(vpn, data.PPN(), FlagV|FlagR|FlagW|FlagU)
	pt.TrackFrame(vpn, data)

	ppn, flags, ok := pt.Translate(vpn)
	if !ok {
		t.Fatal("expected vpn to be mapped")
	}
	if ppn != data.PPN() {
		t.Errorf("translate returned ppn %#x, want %#x", ppn, data.PPN())
	}
	if !flags.Has(FlagR) || !flags.Has(FlagW) || !flags.Has(FlagU) {
		t.Errorf("flags lost: %b", flags)
	}
	if !pt.IsMapped(vpn) {
		t.Error("IsMapped should be true")
	}
}

func TestUnmapClearsMapping(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	data := alloc.Alloc()
	vpn := mem.VPN(7)
	pt.Map(vpn, data.PPN(), FlagV|FlagR)
	pt.Unmap(vpn)

	if pt.IsMapped(vpn) {
		t.Error("expected vpn to be unmapped")
	}
	data.Free()
}

func TestUnmapAbsentIsIgnored(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	pt.Unmap(mem.VPN(99)) // should log and return, not panic
}

func TestDistinctVPNsDoNotAlias(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	f1 := alloc.Alloc()
	f2 := alloc.Alloc()
	pt.Map(mem.VPN(1), f1.PPN(), FlagV|FlagR)
	pt.Map(mem.VPN(2), f2.PPN(), FlagV|FlagR)
	pt.TrackFrame(mem.VPN(1), f1)
	pt.TrackFrame(mem.VPN(2), f2)

	p1, _, _ := pt.Translate(mem.VPN(1))
	p2, _, _ := pt.Translate(mem.VPN(2))
	if p1 == p2 {
		t.Fatal("distinct vpns resolved to the same ppn")
	}
}

func TestSatpTokenEncodesMode(t *testing.T) {
	alloc := newTestAlloc(4)
	pt := New(alloc)
	defer pt.Drop()

	satp := pt.SatpToken()
	if satp>>60 != config.SatpMode {
		t.Errorf("expected mode field %d, got %d", config.SatpMode, satp>>60)
	}
}

func TestGetMutSliceFromSatpReadsMappedByte(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	data := alloc.Alloc()
	buf := alloc.Bytes(data.PPN())
	buf[5] = 0xAB

	va := mem.VirtAddr(0x3000)
	pt.Map(mem.VPNOf(va), data.PPN(), FlagV|FlagR|FlagW)
	pt.TrackFrame(mem.VPNOf(va), data)

	slice, errno := GetMutSliceFromSatp(alloc, pt.SatpToken(), mem.VirtAddr(0x3005), 1)
	if errno != 0 {
		t.Fatalf("expected success, got errno %d", errno)
	}
	if slice[0] != 0xAB {
		t.Errorf("expected 0xAB, got %#x", slice[0])
	}
}

func TestGetMutSliceFromSatpFaultsOnUnmapped(t *testing.T) {
	alloc := newTestAlloc(16)
	pt := New(alloc)
	defer pt.Drop()

	_, errno := GetMutSliceFromSatp(alloc, pt.SatpToken(), mem.VirtAddr(0x9000), 1)
	if errno == 0 {
		t.Error("expected EFAULT on unmapped address")
	}
}
