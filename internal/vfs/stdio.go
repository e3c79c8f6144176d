package vfs

import (
	"io"

	"rvos/internal/defs"
)

// stdinNode is the StdIn variant (spec §3/§4.9): implements only read,
// backed by whatever io.Reader the kernel wires the console up to.
type stdinNode struct {
	notADir
	r io.Reader
}

// NewStdin wraps r as a StdIn node suitable for Table.Preopen.
func NewStdin(r io.Reader) Node { return &stdinNode{r: r} }

func (*stdinNode) Type() NodeType       { return NodeStdin }
func (*stdinNode) Name() string         { return "stdin" }
func (*stdinNode) Size() int            { return 0 }
func (*stdinNode) Parent() (Node, bool) { return nil, false }

func (n *stdinNode) ReadAt(_ int, buf []byte) (int, defs.Err_t) {
	read, err := n.r.Read(buf)
	if err != nil && err != io.EOF {
		return read, defs.EFAULT
	}
	return read, 0
}

func (*stdinNode) WriteAt(int, []byte) (int, defs.Err_t) { return 0, defs.EPERM }
func (*stdinNode) Truncate(int) defs.Err_t               { return defs.EPERM }

// stdoutNode is the StdOut variant: implements only write.
type stdoutNode struct {
	notADir
	w io.Writer
}

// NewStdout wraps w as a StdOut node suitable for Table.Preopen.
func NewStdout(w io.Writer) Node { return &stdoutNode{w: w} }

func (*stdoutNode) Type() NodeType       { return NodeStdout }
func (*stdoutNode) Name() string         { return "stdout" }
func (*stdoutNode) Size() int            { return 0 }
func (*stdoutNode) Parent() (Node, bool) { return nil, false }

func (*stdoutNode) ReadAt(int, []byte) (int, defs.Err_t) { return 0, defs.EPERM }

func (n *stdoutNode) WriteAt(_ int, data []byte) (int, defs.Err_t) {
	written, err := n.w.Write(data)
	if err != nil {
		return written, defs.EFAULT
	}
	return written, 0
}

func (*stdoutNode) Truncate(int) defs.Err_t { return defs.EPERM }
