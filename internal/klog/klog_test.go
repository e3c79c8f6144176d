package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestEarlyBufferDrainsOnSetOutputSink(t *testing.T) {
	defer SetOutputSink(nil)
	SetOutputSink(nil)
	Printf("hello %d\n", 1)
	Printf("world %d\n", 2)

	var buf bytes.Buffer
	SetOutputSink(&buf)
	if got := buf.String(); got != "hello 1\nworld 2\n" {
		t.Errorf("drain mismatch: got %q", got)
	}

	Printf("direct\n")
	if got := buf.String(); !strings.HasSuffix(got, "direct\n") {
		t.Errorf("expected direct write to reach sink, got %q", got)
	}
}

func TestRingBufferWraps(t *testing.T) {
	r := newRingBuffer(4)
	r.Write([]byte("abcdef"))
	var out bytes.Buffer
	r.drainTo(&out)
	if got := out.String(); got != "cdef" {
		t.Errorf("expected wrapped tail 'cdef', got %q", got)
	}
}

func TestPanicCallsHaltAndPrints(t *testing.T) {
	defer SetOutputSink(nil)
	var buf bytes.Buffer
	SetOutputSink(&buf)

	halted := false
	orig := haltFn
	haltFn = func() { halted = true }
	defer func() { haltFn = orig }()

	Panic("test failure %d", 42)

	if !halted {
		t.Error("expected haltFn to be invoked")
	}
	if !strings.Contains(buf.String(), "test failure 42") {
		t.Errorf("expected panic message in output, got %q", buf.String())
	}
}
