package firmware

import (
	"bytes"
	"strings"
	"testing"
)

var _ SBI = QemuSBI{}

func TestConsoleWriteSendsEveryByte(t *testing.T) {
	var out bytes.Buffer
	c := Console{SBI: &recordingSBI{w: &out}}
	n, err := c.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = %d, %v; want 5, nil", n, err)
	}
	if out.String() != "hello" {
		t.Fatalf("console wrote %q, want %q", out.String(), "hello")
	}
}

func TestConsoleReadStopsAtFirstGap(t *testing.T) {
	c := Console{SBI: &feedSBI{r: strings.NewReader("hi")}}
	buf := make([]byte, 8)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hi")
	}
}

func TestConsoleReadEmptyBufferIsNoop(t *testing.T) {
	c := Console{SBI: &feedSBI{r: strings.NewReader("x")}}
	n, err := c.Read(nil)
	if n != 0 || err != nil {
		t.Fatalf("Read(nil) = %d, %v; want 0, nil", n, err)
	}
}

// recordingSBI forwards PutChar into an io.Writer; the other three SBI
// calls are unused by Console.Write and left as no-ops.
type recordingSBI struct{ w *bytes.Buffer }

func (r *recordingSBI) SetTimer(uint64) {}
func (r *recordingSBI) PutChar(b byte)  { r.w.WriteByte(b) }
func (r *recordingSBI) GetChar() int    { return -1 }
func (r *recordingSBI) Shutdown()       {}

// feedSBI serves GetChar from an in-memory reader, returning -1 once it
// is drained — the same "nothing pending" contract the real console
// polling loop relies on.
type feedSBI struct{ r *strings.Reader }

func (f *feedSBI) SetTimer(uint64) {}
func (f *feedSBI) PutChar(byte)    {}
func (f *feedSBI) GetChar() int {
	b, err := f.r.ReadByte()
	if err != nil {
		return -1
	}
	return int(b)
}
func (f *feedSBI) Shutdown() {}
