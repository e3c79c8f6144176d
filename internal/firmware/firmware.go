// Package firmware defines the SBI-style collaborator boundary spec §6
// lists: four functions the kernel consumes from the firmware underneath
// it (set_timer, putc, getc, shutdown) and nothing more — the firmware
// itself, like the virtio-blk driver and the UART wiring behind it, is
// explicitly out of scope (spec §1 Non-goals); this package only pins
// down the interface the rest of the kernel is written against, plus one
// concrete SBI-ecall implementation of it for qemu-virt.
package firmware

// SBI is the firmware interface spec §6 names. GetChar returns -1 when
// no character is pending.
type SBI interface {
	SetTimer(absTicks uint64)
	PutChar(b byte)
	GetChar() int
	Shutdown()
}
