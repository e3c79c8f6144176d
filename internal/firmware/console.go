package firmware

// Console adapts an SBI implementation to io.Writer/io.Reader, so the rest
// of the kernel (klog's output sink, the stdin/stdout VFS nodes) can treat
// the firmware console like any other stream instead of calling PutChar/
// GetChar directly.
type Console struct {
	SBI SBI
}

// Write sends every byte of p through PutChar, one at a time, since the
// legacy SBI console call has no batched form.
func (c Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.SBI.PutChar(b)
	}
	return len(p), nil
}

// Read blocks spinning on GetChar until at least one byte is available
// (GetChar returns -1 when nothing is pending), then fills as much of buf
// as is immediately available without blocking further.
func (c Console) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var first int
	for {
		first = c.SBI.GetChar()
		if first >= 0 {
			break
		}
	}
	buf[0] = byte(first)
	n := 1
	for n < len(buf) {
		ch := c.SBI.GetChar()
		if ch < 0 {
			break
		}
		buf[n] = byte(ch)
		n++
	}
	return n, nil
}
