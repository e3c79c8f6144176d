package taskctx

import (
	"testing"
	"unsafe"
)

// TestFieldOffsetsMatchSwitchABI guards the one invariant switch_riscv64.s
// depends on: TaskContext's in-memory layout must stay ra@0, sp@8,
// s0..s11@16..104, since the assembly addresses these fields by raw byte
// offset, not by field name.
func TestFieldOffsetsMatchSwitchABI(t *testing.T) {
	var tc TaskContext
	if off := unsafe.Offsetof(tc.Ra); off != 0 {
		t.Errorf("Ra offset = %d, want 0", off)
	}
	if off := unsafe.Offsetof(tc.Sp); off != 8 {
		t.Errorf("Sp offset = %d, want 8", off)
	}
	if off := unsafe.Offsetof(tc.S); off != 16 {
		t.Errorf("S offset = %d, want 16", off)
	}
	if sz := unsafe.Sizeof(tc); sz != 112 {
		t.Errorf("TaskContext size = %d, want 112", sz)
	}
}

func TestZeroIsAllZero(t *testing.T) {
	tc := Zero()
	if tc.Ra != 0 || tc.Sp != 0 {
		t.Fatal("expected zero context")
	}
	for i, v := range tc.S {
		if v != 0 {
			t.Fatalf("S[%d] = %d, want 0", i, v)
		}
	}
}
