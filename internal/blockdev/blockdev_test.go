package blockdev

import (
	"path/filepath"
	"testing"
)

func TestMemDeviceReadWriteRoundTrip(t *testing.T) {
	d := NewMemDevice(4)
	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := d.WriteBlock(2, buf); err != 0 {
		t.Fatalf("WriteBlock: %v", err)
	}
	got := make([]byte, BlockSize)
	if err := d.ReadBlock(2, got); err != 0 {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i := range got {
		if got[i] != buf[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], buf[i])
		}
	}
}

func TestMemDeviceRejectsOutOfRangeBlock(t *testing.T) {
	d := NewMemDevice(1)
	buf := make([]byte, BlockSize)
	if err := d.ReadBlock(5, buf); err == 0 {
		t.Fatal("expected an error reading an out-of-range block")
	}
}

func TestMemDeviceRejectsWrongSizedBuffer(t *testing.T) {
	d := NewMemDevice(1)
	if err := d.WriteBlock(0, make([]byte, 100)); err == 0 {
		t.Fatal("expected an error writing a wrong-sized buffer")
	}
}

func TestFileDeviceCreateWriteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	fd, err := CreateFileDevice(path, 4)
	if err != nil {
		t.Fatalf("CreateFileDevice: %v", err)
	}
	buf := make([]byte, BlockSize)
	buf[0] = 0xAB
	if derr := fd.WriteBlock(1, buf); derr != 0 {
		t.Fatalf("WriteBlock: %v", derr)
	}
	fd.Close()

	reopened, err := OpenFileDevice(path)
	if err != nil {
		t.Fatalf("OpenFileDevice: %v", err)
	}
	defer reopened.Close()
	if reopened.NumBlocks() != 4 {
		t.Fatalf("NumBlocks = %d, want 4", reopened.NumBlocks())
	}
	got := make([]byte, BlockSize)
	if derr := reopened.ReadBlock(1, got); derr != 0 {
		t.Fatalf("ReadBlock: %v", derr)
	}
	if got[0] != 0xAB {
		t.Fatalf("got[0] = %#x, want 0xAB", got[0])
	}
}
