// Package config centralizes the compile-time constants of the kernel
// (page size, Sv39 geometry, fixed high-address slots, timer frequency) and
// the runtime resource limits tracked against them.
//
// The address constants are adapted from biscuit/src/mem/dmap.go's
// VREC/VDIRECT/VUSER slot scheme, retargeted from biscuit's x86-64 4-level
// paging to this kernel's Sv39 address space (§6 of the spec: the topmost
// page is the trampoline, the page below it the trap frame, the page below
// that the user start-return trampoline).
package config

const (
	// PageShift is the base-2 exponent of the page size; PageSize is 4 KiB.
	PageShift = 12
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1

	// Sv39 has 39 virtual address bits: a 12-bit offset plus three 9-bit
	// VPN indices.
	VPNBits  = 9
	VPNMask  = (1 << VPNBits) - 1
	SatpMode = 8 // Sv39 mode field, shifted into satp[63:60] by PageTable.SatpToken.

	// MaxVA is the first address outside the Sv39 virtual address space.
	MaxVA uint64 = 1 << 39

	// TrapTopAddr is the first address of the topmost page,
	// [2^64-4096, 2^64), reserved in every address space for the
	// trampoline (trap entry/exit).
	TrapTopAddr uint64 = ^uint64(0) - PageSize + 1

	// TrapContextAddr is the page below the trampoline, holding the
	// per-task trap frame.
	TrapContextAddr = TrapTopAddr - PageSize

	// UserRetAddr is the page below the trap frame, reserved for the
	// user-mode start-return trampoline (the x[1]/ra value installed in a
	// fresh task's trap frame so returning from main lands somewhere
	// known-safe instead of into garbage).
	UserRetAddr = TrapContextAddr - PageSize

	// KernelStackSize is the size, in bytes, of each task's private
	// kernel stack.
	KernelStackSize = 2 * PageSize

	// KernelStackGuard adds one unmapped guard page below each kernel
	// stack so overflow faults instead of corrupting a neighbor.
	KernelStackGuard = PageSize

	// KernelStackAreaTop is the first address below the three reserved
	// trampoline/trap-frame/user-return pages (§6) at which per-task
	// kernel stacks are carved out, one KernelStackSize+KernelStackGuard
	// slot per task_slot_id, growing downward.
	KernelStackAreaTop = UserRetAddr - PageSize

	// MaxPID bounds the process-id pool (spec §3: "a small integer in
	// [0, MAX_PID)").
	MaxPID = 4096

	// TimerFreqHz is the target preemption tick rate (spec §5: "e.g. 100 Hz").
	TimerFreqHz = 100

	// BigStride is the stride-scheduler normalization constant (spec §4.6).
	BigStride = 1000000

	// DefaultTicket is a task's initial ticket count absent an explicit
	// override (spec §4.6).
	DefaultTicket = 100

	// FramePoolPages sizes the frame allocator's backing pool (spec §4.1).
	// This kernel's allocator owns its frames as host Go memory rather
	// than addressing a fixed physical DRAM range (see mem.FrameAllocator),
	// so there is no linker-provided _end symbol to size it against; this
	// is simply a generous boot-time choice for the small disk images and
	// task counts this kernel targets.
	FramePoolPages = 16384 // 64 MiB worth of 4 KiB pages
)

// Limits tracks runtime resource ceilings, adapted from
// biscuit/src/limits/limits.go's Syslimit_t. Biscuit tracks process/futex/
// network-route counts system-wide; this kernel has no network stack and
// no futexes (§1 Non-goals), so the fields are retargeted to the resources
// this kernel actually allocates: live tasks, open file descriptors per
// task-less global cap, and cached dentries.
type Limits struct {
	MaxTasks        int
	MaxOpenFiles    int
	MaxCachedDentry int
}

// DefaultLimits mirrors limits.go's MkSysLimit: a generous, fixed default
// suitable for the small VM images this kernel targets.
func DefaultLimits() Limits {
	return Limits{
		MaxTasks:        MaxPID,
		MaxOpenFiles:    256,
		MaxCachedDentry: 4096,
	}
}
