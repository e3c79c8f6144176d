// Package vmm implements the address-space abstraction (spec §4.3):
// MemorySet composes an ordered list of MapAreas over one owned page
// table, builds the kernel's identity-mapped space, loads ELF images into
// fresh user spaces, and services mmap/unmap and demand-paging faults.
//
// Grounded on biscuit/src/vm/as.go's Vm_t (one mutex-protected Pmap plus a
// Vmregion list of logical regions) and its page-at-a-time user-copy loops
// (Userreadn/Userwriten/K2user_inner), which this package's CopyIn/CopyOut
// generalize from biscuit's single-page-slice-at-a-time style. biscuit's
// own Vmregion_t source was not retrieved, so the area list and overlap
// logic below are original, built directly from spec §3's invariants
// rather than copied from an unseen file.
package vmm

import (
	"rvos/internal/config"
	"rvos/internal/defs"
	"rvos/internal/elfload"
	"rvos/internal/klog"
	"rvos/internal/mem"
	"rvos/internal/pagetable"
)

// AreaKind distinguishes an eagerly-backed region from one whose frames
// are allocated on first access.
type AreaKind int

const (
	KindDefault AreaKind = iota
	KindLazy
)

// MapKind distinguishes an identity mapping (VPN == PPN, used for kernel
// regions) from one backed by independently allocated frames.
type MapKind int

const (
	MapIdentical MapKind = iota
	MapMapped
)

// MapArea is an inclusive-VPN logical region: a
// contiguous run of virtual pages sharing one permission set, MapKind, and
// AreaKind. A Mapped area owns exactly one FrameTracker per VPN it has
// actually backed; a Lazy area starts with none.
type MapArea struct {
	StartVPN mem.VPN
	EndVPN   mem.VPN // inclusive
	Perm     pagetable.PTEFlag
	MapKind  MapKind
	AreaKind AreaKind
	Frames   map[mem.VPN]*mem.FrameTracker
}

func newArea(start, end mem.VPN, perm pagetable.PTEFlag, mk MapKind, ak AreaKind) *MapArea {
	return &MapArea{StartVPN: start, EndVPN: end, Perm: perm, MapKind: mk, AreaKind: ak, Frames: make(map[mem.VPN]*mem.FrameTracker)}
}

func (a *MapArea) contains(vpn mem.VPN) bool { return vpn >= a.StartVPN && vpn <= a.EndVPN }

func overlaps(aStart, aEnd, bStart, bEnd mem.VPN) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// MemorySet is one address space: a page table plus the ordered list of
// areas it has installed. No two Default areas may overlap (spec §3).
type MemorySet struct {
	alloc *mem.FrameAllocator
	pt    *pagetable.PageTable
	areas []*MapArea
}

// activateFn is the hook that actually writes satp and fences; production
// boot glue overrides it, tests leave it a no-op so Activate is callable
// without a real CPU.
var activateFn = func(satp uint64) {}

// NewUser allocates an empty user address space (just a root page table,
// no areas yet).
func NewUser(alloc *mem.FrameAllocator) *MemorySet {
	return &MemorySet{alloc: alloc, pt: pagetable.New(alloc)}
}

// Region describes one named linker-provided span of the kernel image
// (text/rodata/data/bss/physmem-pool/MMIO) to identity-map into the
// kernel's own address space. In a freestanding build these addresses
// come from linker symbols; this module runs hosted and has none, so the
// boot glue that knows the real layout supplies them here instead.
type Region struct {
	Name  string
	Start mem.VirtAddr
	End   mem.VirtAddr // exclusive
	Perm  pagetable.PTEFlag
}

// NewKernelSpace builds the kernel address space (spec §4.3): one
// identity area per Region, plus the shared trampoline page mapped at the
// fixed high address every address space reserves for it.
func NewKernelSpace(alloc *mem.FrameAllocator, regions []Region, trampolinePPN mem.PPN) *MemorySet {
	ms := &MemorySet{alloc: alloc, pt: pagetable.New(alloc)}
	for _, r := range regions {
		if err := ms.mapIdentical(r.Start, r.End, r.Perm); err != 0 {
			klog.Panic("vmm: kernel region %q could not be mapped: errno %d", r.Name, err)
		}
	}
	ms.mapTrampoline(trampolinePPN)
	return ms
}

func (ms *MemorySet) mapTrampoline(ppn mem.PPN) {
	vpn := mem.VPNOf(mem.VirtAddr(config.TrapTopAddr))
	perm := pagetable.FlagR | pagetable.FlagX
	ms.pt.Map(vpn, ppn, perm|pagetable.FlagV)
	ms.areas = append(ms.areas, &MapArea{StartVPN: vpn, EndVPN: vpn, Perm: perm, MapKind: MapIdentical, AreaKind: KindDefault, Frames: map[mem.VPN]*mem.FrameTracker{}})
}

// mapIdentical installs a Default/Identical area over [start, end) with
// perm, rejecting the call if it would overlap an existing Default area.
func (ms *MemorySet) mapIdentical(start, end mem.VirtAddr, perm pagetable.PTEFlag) defs.Err_t {
	startVPN, endVPN := mem.VPNOf(start), mem.VPNOf(mem.VirtAddr(uint64(end)-1))
	if ms.overlapsDefault(startVPN, endVPN) {
		return defs.EINVAL
	}
	for vpn := startVPN; vpn <= endVPN; vpn++ {
		ms.pt.Map(vpn, mem.PPN(vpn), perm|pagetable.FlagV)
	}
	ms.areas = append(ms.areas, newArea(startVPN, endVPN, perm, MapIdentical, KindDefault))
	return 0
}

func (ms *MemorySet) overlapsDefault(start, end mem.VPN) bool {
	for _, a := range ms.areas {
		if a.AreaKind == KindDefault && overlaps(start, end, a.StartVPN, a.EndVPN) {
			return true
		}
	}
	return false
}

func (ms *MemorySet) overlapsAny(start, end mem.VPN) *MapArea {
	for _, a := range ms.areas {
		if overlaps(start, end, a.StartVPN, a.EndVPN) {
			return a
		}
	}
	return nil
}

// mapAnonymous installs a Default/Mapped area over [start, end], allocating
// one frame per VPN and zeroing it (the allocator already zeroes on
// Alloc). Used for the trap-frame page, user stack, and user heap.
func (ms *MemorySet) mapAnonymous(start, end mem.VPN, perm pagetable.PTEFlag) *MapArea {
	area := newArea(start, end, perm, MapMapped, KindDefault)
	for vpn := start; vpn <= end; vpn++ {
		ft := ms.alloc.Alloc()
		if ft == nil {
			klog.Panic("vmm: out of frames mapping anonymous area")
		}
		ms.pt.Map(vpn, ft.PPN(), perm|pagetable.FlagV)
		area.Frames[vpn] = ft
	}
	ms.areas = append(ms.areas, area)
	return area
}

// UserImage is everything NewUserFromELF hands back beyond the MemorySet
// itself: where the task should start running and its initial stack/heap.
type UserImage struct {
	EntryPC     uint64
	UserSP      uint64
	UserHeapTop uint64
	KernelSPTop uint64
}

// NewUserFromELF builds a user address space from a parsed ELF payload
// (spec §4.3 "User address space construction from ELF bytes"), also
// carving that task's kernel stack out of the receiver (the kernel address
// space), keyed by taskSlotID.
func (kernel *MemorySet) NewUserFromELF(alloc *mem.FrameAllocator, taskSlotID int, raw []byte, trampolinePPN mem.PPN) (*MemorySet, UserImage, defs.Err_t) {
	img, errno := elfload.Load(raw)
	if errno != 0 {
		return nil, UserImage{}, errno
	}

	ms := NewUser(alloc)
	var maxVA uint64
	for _, seg := range img.Segments {
		perm := pagetable.FlagU
		if seg.Read {
			perm |= pagetable.FlagR
		}
		if seg.Write {
			perm |= pagetable.FlagW
		}
		if seg.Exec {
			perm |= pagetable.FlagX
		}
		start := mem.VPNOf(mem.VirtAddr(seg.VAddr))
		end := mem.VPNOf(mem.VirtAddr(seg.VAddr + seg.MemSize - 1))
		area := ms.mapAnonymous(start, end, perm)
		copySegmentInto(alloc, area, mem.VirtAddr(seg.VAddr), seg.Data)
		if top := seg.VAddr + seg.MemSize; top > maxVA {
			maxVA = top
		}
	}

	ms.mapTrampoline(trampolinePPN)

	trapFrameVPN := mem.VPNOf(mem.VirtAddr(config.TrapContextAddr))
	ms.mapAnonymous(trapFrameVPN, trapFrameVPN, pagetable.FlagR|pagetable.FlagW)

	stackBase := (mem.VirtAddr(maxVA) + config.PageSize) &^ (config.PageSize - 1)
	stackBase += config.PageSize // guard page below the stack
	stackArea := ms.mapAnonymous(mem.VPNOf(stackBase), mem.VPNOf(stackBase), pagetable.FlagR|pagetable.FlagW|pagetable.FlagU)
	userSP := uint64(stackArea.EndVPN.Addr()) + config.PageSize

	heapBase := stackBase + config.PageSize
	ms.mapAnonymous(mem.VPNOf(heapBase), mem.VPNOf(heapBase), pagetable.FlagR|pagetable.FlagW|pagetable.FlagU)
	heapTop := uint64(heapBase) + config.PageSize

	kernelSPTop := kernel.allocTaskKernelStack(taskSlotID)

	return ms, UserImage{
		EntryPC:     img.Entry,
		UserSP:      userSP,
		UserHeapTop: heapTop,
		KernelSPTop: kernelSPTop,
	}, 0
}

func copySegmentInto(alloc *mem.FrameAllocator, area *MapArea, vaddr mem.VirtAddr, data []byte) {
	off := 0
	for vpn := area.StartVPN; vpn <= area.EndVPN && off < len(data); vpn++ {
		ft := area.Frames[vpn]
		buf := alloc.Bytes(ft.PPN())
		pageStart := uint64(vpn.Addr())
		writeStart := uint64(vaddr) + uint64(off)
		dstOff := uint64(0)
		if writeStart > pageStart {
			dstOff = writeStart - pageStart
		}
		n := copy(buf[dstOff:], data[off:])
		off += n
	}
}

// allocTaskKernelStack installs an identity-mapped kernel stack area for
// taskSlotID, preceded by a guard page, and returns the stack's top
// address (spec §4.3 step 7).
func (kernel *MemorySet) allocTaskKernelStack(taskSlotID int) uint64 {
	slotSize := uint64(config.KernelStackSize + config.KernelStackGuard)
	top := mem.VirtAddr(config.KernelStackAreaTop) - mem.VirtAddr(uint64(taskSlotID)*slotSize)
	bottom := top - config.KernelStackSize
	area := newArea(mem.VPNOf(bottom), mem.VPNOf(top-1), pagetable.FlagR|pagetable.FlagW, MapMapped, KindDefault)
	for vpn := area.StartVPN; vpn <= area.EndVPN; vpn++ {
		ft := kernel.alloc.Alloc()
		if ft == nil {
			klog.Panic("vmm: out of frames allocating kernel stack for slot %d", taskSlotID)
		}
		kernel.pt.Map(vpn, ft.PPN(), area.Perm|pagetable.FlagV)
		area.Frames[vpn] = ft
	}
	kernel.areas = append(kernel.areas, area)
	return uint64(top)
}

// Mmap installs a Lazy/Mapped area over [start, start+size) with R|W|X|U
// permissions and no backing frames (spec §4.3's mmap). Returns EINVAL if
// the range overlaps any existing area.
func (ms *MemorySet) Mmap(start mem.VirtAddr, size uint64) defs.Err_t {
	if size == 0 {
		return defs.EINVAL
	}
	startVPN := mem.VPNOf(start)
	endVPN := mem.VPNOf(mem.VirtAddr(uint64(start) + size - 1))
	if ms.overlapsAny(startVPN, endVPN) != nil {
		return defs.EINVAL
	}
	ms.areas = append(ms.areas, newArea(startVPN, endVPN, pagetable.FlagR|pagetable.FlagW|pagetable.FlagX|pagetable.FlagU, MapMapped, KindLazy))
	return 0
}

// Unmap reverses a prior Mmap over exactly the overlapping area(s) (spec
// §4.3's unmap): fails if nothing overlaps, or if any overlapping area is
// of kind Default (only previously-mmapped regions may be unmapped here).
func (ms *MemorySet) Unmap(start mem.VirtAddr, size uint64) defs.Err_t {
	if size == 0 {
		return defs.EINVAL
	}
	startVPN := mem.VPNOf(start)
	endVPN := mem.VPNOf(mem.VirtAddr(uint64(start) + size - 1))

	var hit bool
	for _, a := range ms.areas {
		if overlaps(startVPN, endVPN, a.StartVPN, a.EndVPN) {
			hit = true
			if a.AreaKind == KindDefault {
				return defs.EINVAL
			}
		}
	}
	if !hit {
		return defs.EINVAL
	}

	for vpn := startVPN; vpn <= endVPN; vpn++ {
		if ms.pt.IsMapped(vpn) {
			ms.pt.Unmap(vpn)
		}
	}

	kept := ms.areas[:0]
	for _, a := range ms.areas {
		if overlaps(startVPN, endVPN, a.StartVPN, a.EndVPN) {
			for _, ft := range a.Frames {
				ft.Free()
			}
			continue
		}
		kept = append(kept, a)
	}
	ms.areas = kept
	return 0
}

// HandlePageFault services a fault at faultVA (spec §4.3): if a Lazy area
// covers the faulting page, backs it with a freshly allocated frame and
// returns true (recovered). Otherwise returns false — the caller must
// treat the fault as fatal to the current task.
func (ms *MemorySet) HandlePageFault(faultVA mem.VirtAddr) bool {
	vpn := mem.VPNOf(faultVA)
	for _, a := range ms.areas {
		if a.AreaKind != KindLazy || !a.contains(vpn) {
			continue
		}
		if _, already := a.Frames[vpn]; already {
			return true // second access: already backed, nothing to do
		}
		ft := ms.alloc.Alloc()
		if ft == nil {
			klog.Panic("vmm: out of frames servicing page fault at %#x", uint64(faultVA))
		}
		a.Frames[vpn] = ft
		ms.pt.Map(vpn, ft.PPN(), a.Perm|pagetable.FlagV)
		return true
	}
	return false
}

// Translate exposes the underlying page table's translation, used by
// tests and by the trap path to check a user pointer before trusting it.
func (ms *MemorySet) Translate(va mem.VirtAddr) (mem.PhysAddr, bool) {
	ppn, _, ok := ms.pt.Translate(mem.VPNOf(va))
	if !ok {
		return 0, false
	}
	return mem.PhysAddr(uint64(ppn.Addr()) | mem.PageOffset(va)), true
}

// SatpToken returns the satp value that activates this address space.
func (ms *MemorySet) SatpToken() uint64 { return ms.pt.SatpToken() }

// Activate writes this address space's satp token (spec §4.3's
// activation: "all subsequent supervisor-mode memory accesses must
// resolve through that table").
func (ms *MemorySet) Activate() {
	activateFn(ms.SatpToken())
}

// PageTable exposes the owned page table for callers (trap entry setup,
// syscall buffer translation) that need lower-level access than
// MemorySet's own methods provide.
func (ms *MemorySet) PageTable() *pagetable.PageTable { return ms.pt }
