package firmware

// legacy SBI extension ids (the "legacy" SBI calls, stable since the
// earliest OpenSBI releases and still what qemu-virt answers).
const (
	sbiSetTimer     = 0
	sbiConsolePutCh = 1
	sbiConsoleGetCh = 2
	sbiShutdownEID  = 8
)

// QemuSBI is the concrete SBI implementation for qemu-virt: each method
// is one ecall through sbiCall, defined in sbi_riscv64.s following the
// same Plan 9 asm convention as taskctx.Switch/trapframe.TrapEntry.
type QemuSBI struct{}

func (QemuSBI) SetTimer(absTicks uint64) {
	sbiCall(sbiSetTimer, absTicks)
}

func (QemuSBI) PutChar(b byte) {
	sbiCall(sbiConsolePutCh, uint64(b))
}

func (QemuSBI) GetChar() int {
	return int(int64(sbiCall(sbiConsoleGetCh, 0)))
}

func (QemuSBI) Shutdown() {
	sbiCall(sbiShutdownEID, 0)
}

// sbiCall issues `ecall` with eid in a7 and arg0 in a0, returning a0 on
// return. Defined in sbi_riscv64.s.
func sbiCall(eid, arg0 uint64) uint64
