package pagetable

import (
	"encoding/binary"

	"rvos/internal/config"
	"rvos/internal/defs"
	"rvos/internal/klog"
	"rvos/internal/mem"
)

const pteBytes = 8

// PageTable is one Sv39 address space's three-level tree of 512-entry
// tables. It owns the root's FrameTracker, each intermediate table's own
// tracker, and every leaf frame registered through TrackFrame (Map itself
// registers none) so Drop can return them all to the
// allocator in one pass, mirroring how a Vm_t's Pmap is torn down alongside
// its process in biscuit.
type PageTable struct {
	alloc   *mem.FrameAllocator
	root    *mem.FrameTracker // nil for a viewed (non-owning) table; see ViewFrom
	rootPPN mem.PPN           // valid only when root == nil
	owned   []*mem.FrameTracker           // intermediate (non-root) tables this PageTable created
	frames  map[mem.VPN]*mem.FrameTracker // leaf data frames this PageTable owns (registered via TrackFrame)
}

// New allocates a fresh, zeroed root table.
func New(alloc *mem.FrameAllocator) *PageTable {
	root := alloc.Alloc()
	if root == nil {
		klog.Panic("pagetable: out of frames for root table")
	}
	return &PageTable{
		alloc:  alloc,
		root:   root,
		frames: make(map[mem.VPN]*mem.FrameTracker),
	}
}

// ViewFrom builds a non-owning handle over an already-populated root table,
// identified by a satp token (spec §4.2's get_mut_slice_from_satp entry
// point: the kernel is handed a satp value, not a live PageTable, when it
// needs to reach into a user address space it does not own). Drop on a
// viewed table is a no-op: ownership of every frame it reaches still
// belongs to whichever PageTable originally called New.
func ViewFrom(alloc *mem.FrameAllocator, satp uint64) *PageTable {
	return &PageTable{
		alloc:   alloc,
		rootPPN: mem.PPN(satp & pteAddrMask),
		frames:  make(map[mem.VPN]*mem.FrameTracker),
	}
}

// SatpToken returns the satp register value activating this page table in
// Sv39 mode (spec §4.2, §6).
func (pt *PageTable) SatpToken() uint64 {
	return uint64(config.SatpMode)<<60 | uint64(pt.rootPPNValue())
}

func (pt *PageTable) rootPPNValue() mem.PPN {
	if pt.root != nil {
		return pt.root.PPN()
	}
	return pt.rootPPN
}

func (pt *PageTable) readPTE(ppn mem.PPN, idx uint64) pte {
	buf := pt.alloc.Bytes(ppn)
	off := idx * pteBytes
	return pte(binary.LittleEndian.Uint64(buf[off : off+pteBytes]))
}

func (pt *PageTable) writePTE(ppn mem.PPN, idx uint64, p pte) {
	buf := pt.alloc.Bytes(ppn)
	off := idx * pteBytes
	binary.LittleEndian.PutUint64(buf[off:off+pteBytes], uint64(p))
}

// walk descends the three table levels for vpn, allocating intermediate
// tables as needed when create is true. It returns the leaf table's PPN and
// the index within it, or ok=false if create is false and a level is
// missing.
func (pt *PageTable) walk(vpn mem.VPN, create bool) (tablePPN mem.PPN, idx uint64, ok bool) {
	idxs := vpn.Indices()
	cur := pt.rootPPNValue()
	for level := 0; level < 3; level++ {
		i := idxs[level]
		if level == 2 {
			return cur, i, true
		}
		entry := pt.readPTE(cur, i)
		if !entry.valid() {
			if !create {
				return 0, 0, false
			}
			next := pt.alloc.Alloc()
			if next == nil {
				klog.Panic("pagetable: out of frames walking vpn %#x", uint64(vpn))
			}
			pt.owned = append(pt.owned, next)
			pt.writePTE(cur, i, newDirPTE(next.PPN()))
			cur = next.PPN()
			continue
		}
		if entry.isLeaf() {
			klog.Panic("pagetable: vpn %#x aliases a superpage at level %d", uint64(vpn), level)
		}
		cur = entry.ppn()
	}
	return 0, 0, false
}

// Map installs vpn -> ppn with the given flags. Remapping an already-valid
// VPN is logged and the old mapping overwritten (spec §7: non-fatal,
// recoverable condition).
func (pt *PageTable) Map(vpn mem.VPN, ppn mem.PPN, flags PTEFlag) {
	tablePPN, idx, _ := pt.walk(vpn, true)
	if pt.readPTE(tablePPN, idx).valid() {
		klog.Warn("pagetable: remapping already-mapped vpn %#x", uint64(vpn))
	}
	pt.writePTE(tablePPN, idx, newLeafPTE(ppn, flags))
}

// Unmap clears vpn's leaf entry. Unmapping an absent VPN is logged and
// ignored (spec §7).
func (pt *PageTable) Unmap(vpn mem.VPN) {
	tablePPN, idx, ok := pt.walk(vpn, false)
	if !ok || !pt.readPTE(tablePPN, idx).valid() {
		klog.Warn("pagetable: unmapping absent vpn %#x", uint64(vpn))
		return
	}
	pt.writePTE(tablePPN, idx, pte(0))
}

// Translate walks vpn without creating intermediate tables and returns its
// PTE, or ok=false if any level (including the leaf) is unmapped.
func (pt *PageTable) Translate(vpn mem.VPN) (ppn mem.PPN, flags PTEFlag, ok bool) {
	tablePPN, idx, walked := pt.walk(vpn, false)
	if !walked {
		return 0, 0, false
	}
	entry := pt.readPTE(tablePPN, idx)
	if !entry.valid() {
		return 0, 0, false
	}
	return entry.ppn(), entry.flags(), true
}

// IsMapped reports whether vpn has a valid leaf entry.
func (pt *PageTable) IsMapped(vpn mem.VPN) bool {
	_, _, ok := pt.Translate(vpn)
	return ok
}

// TrackFrame records that pt owns the leaf frame backing vpn, so Drop can
// release it. Callers that map borrowed/identity-mapped frames (kernel
// text, MMIO) should not call this; only owning allocations (user pages)
// should.
func (pt *PageTable) TrackFrame(vpn mem.VPN, ft *mem.FrameTracker) {
	pt.frames[vpn] = ft
}

// UntrackFrame releases ownership of vpn's leaf frame, if this PageTable
// was tracking one, returning it to the allocator.
func (pt *PageTable) UntrackFrame(vpn mem.VPN) {
	if ft, ok := pt.frames[vpn]; ok {
		ft.Free()
		delete(pt.frames, vpn)
	}
}

// GetMutSliceFromSatp returns the byte slice of length n starting at start
// within the address space identified by satp (spec §4.2): used by the
// kernel to read/write a user buffer that may span a page boundary without
// itself being the owner of that address space's PageTable. A single-page
// slice only; callers spanning multiple pages must stitch segments
// together (mirrored on biscuit's Userdmap8_inner, which also returns one
// page's worth of mapped bytes per call).
func GetMutSliceFromSatp(alloc *mem.FrameAllocator, satp uint64, start mem.VirtAddr, n int) ([]byte, defs.Err_t) {
	view := ViewFrom(alloc, satp)
	vpn := mem.VPNOf(start)
	ppn, flags, ok := view.Translate(vpn)
	if !ok || flags&FlagV == 0 {
		return nil, defs.EFAULT
	}
	off := mem.PageOffset(start)
	buf := alloc.Bytes(ppn)
	end := int(off) + n
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end], 0
}

// Drop returns every frame this PageTable owns (root, intermediate tables,
// and tracked leaf frames) to its allocator. A viewed table (ViewFrom) owns
// nothing and Drop is a no-op on it.
func (pt *PageTable) Drop() {
	for vpn := range pt.frames {
		pt.UntrackFrame(vpn)
	}
	for _, ft := range pt.owned {
		ft.Free()
	}
	pt.owned = nil
	if pt.root != nil {
		pt.root.Free()
		pt.root = nil
	}
}
