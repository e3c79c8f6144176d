package trapframe

import (
	"testing"
	"unsafe"
)

// TestFieldOffsetsMatchSpecLayout guards the byte layout
// trampoline_riscv64.s depends on: x0..x31 at words 0..31, then sstatus,
// sepc, kernel_satp, kernel_sp, trap_handler at words 32..36.
func TestFieldOffsetsMatchSpecLayout(t *testing.T) {
	var tf TrapFrame
	if off := unsafe.Offsetof(tf.X); off != 0 {
		t.Errorf("X offset = %d, want 0", off)
	}
	if off := unsafe.Offsetof(tf.Sstatus); off != 32*8 {
		t.Errorf("Sstatus offset = %d, want %d", off, 32*8)
	}
	if off := unsafe.Offsetof(tf.Sepc); off != 33*8 {
		t.Errorf("Sepc offset = %d, want %d", off, 33*8)
	}
	if off := unsafe.Offsetof(tf.KernelSatp); off != 34*8 {
		t.Errorf("KernelSatp offset = %d, want %d", off, 34*8)
	}
	if off := unsafe.Offsetof(tf.KernelSp); off != 35*8 {
		t.Errorf("KernelSp offset = %d, want %d", off, 35*8)
	}
	if off := unsafe.Offsetof(tf.TrapHandler); off != 36*8 {
		t.Errorf("TrapHandler offset = %d, want %d", off, 36*8)
	}
	if sz := unsafe.Sizeof(tf); sz != 37*8 {
		t.Errorf("TrapFrame size = %d, want %d", sz, 37*8)
	}
}

func TestNewInitialSetsSpecifiedFields(t *testing.T) {
	tf := NewInitial(0x1000, 0x4000_0000, 0x3000, 0x8000_0009, 0x8100_0000, 0x8020_0000)

	if tf.Sstatus != sstatusSPIE {
		t.Errorf("Sstatus = %#x, want SPIE set and SPP clear", tf.Sstatus)
	}
	if tf.Sepc != 0x1000 {
		t.Errorf("Sepc = %#x, want entry pc", tf.Sepc)
	}
	if tf.X[2] != 0x4000_0000 {
		t.Errorf("X[2] (sp) = %#x, want user sp", tf.X[2])
	}
	if tf.X[1] != 0x3000 {
		t.Errorf("X[1] (ra) = %#x, want user-ret trampoline addr", tf.X[1])
	}
	if tf.KernelSatp != 0x8000_0009 || tf.KernelSp != 0x8100_0000 || tf.TrapHandler != 0x8020_0000 {
		t.Errorf("kernel bookkeeping fields not set as given")
	}
	for i, v := range tf.X {
		if i == 1 || i == 2 {
			continue
		}
		if v != 0 {
			t.Errorf("X[%d] = %#x, want 0", i, v)
		}
	}
}

func TestBytesRoundTripsThroughFromBytes(t *testing.T) {
	tf := NewInitial(0x1000, 0x2000, 0x3000, 0x9, 0x4000, 0x5000)
	buf := make([]byte, unsafe.Sizeof(TrapFrame{}))
	copy(buf, tf.Bytes())

	got := FromBytes(buf)
	if *got != *tf {
		t.Fatalf("FromBytes(Bytes()) = %+v, want %+v", *got, *tf)
	}

	got.Sepc = 0xdead
	if tf.Sepc == 0xdead {
		t.Fatal("FromBytes aliased the original frame instead of buf")
	}
}

func TestDispatchRoutesByCauseAndFallsBack(t *testing.T) {
	var routed Cause
	d := NewDispatcher(func(tf *TrapFrame, cause Cause, stval uint64) (*TrapFrame, bool) {
		routed = cause
		return tf, false
	})
	d.Register(CauseUserEnvCall, func(tf *TrapFrame, cause Cause, stval uint64) (*TrapFrame, bool) {
		tf.Sepc += 4
		return tf, true
	})

	tf := &TrapFrame{Sepc: 0x100}
	resume, ok := d.Dispatch(tf, CauseUserEnvCall, 0)
	if !ok || resume.Sepc != 0x104 {
		t.Fatalf("ecall handler not invoked correctly: ok=%v sepc=%#x", ok, resume.Sepc)
	}

	_, ok = d.Dispatch(tf, CauseIllegalInstruction, 0)
	if ok || routed != CauseIllegalInstruction {
		t.Fatalf("expected fallback for unregistered cause, routed=%v ok=%v", routed, ok)
	}
}

func TestCauseIsInterrupt(t *testing.T) {
	if CauseUserEnvCall.IsInterrupt() {
		t.Error("ecall should not be classified as an interrupt")
	}
	if !CauseSupervisorTimer.IsInterrupt() {
		t.Error("timer cause should be classified as an interrupt")
	}
}
