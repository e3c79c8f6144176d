// Package pagetable implements the Sv39 three-level page table (spec §4.2):
// PTE flag bits, the walk/create-on-demand logic that descends the three
// 9-bit VPN indices, and the satp token an address space hands to hardware
// (or, here, to a software MMU stand-in) to activate itself.
//
// Grounded on biscuit/src/mem/mem.go's PTE_P/PTE_W/PTE_U/PTE_G flag
// constants and its Pa_t/Pmap_t naming (a page table entry holds a physical
// address plus flag bits; a page table is 512 entries). Biscuit's own
// walk/allocate-on-demand code (Ptefor, referenced from
// biscuit/src/vm/as.go) was not among the retrieved files, so the walk
// below is original, shaped after gopher-os's kernel/mm/vmm page-directory
// style (kernel/mm/vmm/pdt.go: Map/Unmap take a flags value and silently
// allocate intermediate tables) and retargeted from x86-64's 4-level,
// recursively-mapped scheme to Sv39's 3-level, frame-allocator-backed one.
package pagetable

import "rvos/internal/mem"

// PTEFlag is a single Sv39 page table entry flag bit (riscv-privileged §4.3).
type PTEFlag uint64

const (
	FlagV PTEFlag = 1 << 0 // Valid: entry is used by the walker
	FlagR PTEFlag = 1 << 1 // Readable
	FlagW PTEFlag = 1 << 2 // Writable
	FlagX PTEFlag = 1 << 3 // Executable
	FlagU PTEFlag = 1 << 4 // Accessible in U-mode
	FlagG PTEFlag = 1 << 5 // Global mapping
	FlagA PTEFlag = 1 << 6 // Accessed
	FlagD PTEFlag = 1 << 7 // Dirty
)

// Has reports whether every bit set in f is also set in the receiver.
func (flags PTEFlag) Has(f PTEFlag) bool { return flags&f == f }

// rwx is the subset of flags that mark a PTE as a leaf rather than a
// pointer to the next table level: any of R/W/X set means "leaf".
const rwx = FlagR | FlagW | FlagX

// pteFlagBits is where the PPN field begins within a 64-bit Sv39 PTE, and
// pteAddrMask/ppnBits bound how wide that field is (44 bits of PPN in Sv39).
const (
	pteFlagBits  = 10
	ppnBits      = 44
	pteAddrMask  = (uint64(1) << ppnBits) - 1
)

// pte is a single raw 64-bit Sv39 page table entry, stored little-endian in
// an 8-byte slice of a PageTable's backing frame.
type pte uint64

func newLeafPTE(ppn mem.PPN, flags PTEFlag) pte {
	return pte(uint64(ppn)<<pteFlagBits | uint64(flags) | uint64(FlagV))
}

func newDirPTE(ppn mem.PPN) pte {
	return pte(uint64(ppn)<<pteFlagBits | uint64(FlagV))
}

func (p pte) valid() bool    { return uint64(p)&uint64(FlagV) != 0 }
func (p pte) isLeaf() bool   { return uint64(p)&uint64(rwx) != 0 }
func (p pte) flags() PTEFlag { return PTEFlag(uint64(p) & (1<<pteFlagBits - 1)) }
func (p pte) ppn() mem.PPN   { return mem.PPN((uint64(p) >> pteFlagBits) & pteAddrMask) }
