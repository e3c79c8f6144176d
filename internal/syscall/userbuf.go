// Package syscall implements the syscall dispatch table (spec §4.7):
// decoding the trap frame's id/argument/return-value registers, copying
// data across the user/kernel boundary a page at a time, and routing to
// the file, memory, and filesystem operations a syscall number names.
package syscall

import (
	"rvos/internal/defs"
	"rvos/internal/mem"
	"rvos/internal/pagetable"
)

// UserBuf stitches together the single-page segments
// pagetable.GetMutSliceFromSatp returns into a contiguous read or write
// of a user-space range that may span several pages. Grounded on
// biscuit/src/vm/userbuf.go's Userbuf_t._tx: both loop "translate the
// current page, copy the overlap, advance" until either the whole
// request is satisfied or a page is found unmapped, at which point they
// stop and report how much was actually transferred rather than
// faulting the kernel (spec §4.7: "fail with -1 rather than faulting the
// kernel").
type UserBuf struct {
	alloc *mem.FrameAllocator
	satp  uint64
	va    mem.VirtAddr
	len   int
}

// NewUserBuf describes a len-byte user-space range starting at va within
// the address space identified by satp.
func NewUserBuf(alloc *mem.FrameAllocator, satp uint64, va mem.VirtAddr, length int) UserBuf {
	return UserBuf{alloc: alloc, satp: satp, va: va, len: length}
}

// Len returns the buffer's declared length.
func (ub UserBuf) Len() int { return ub.len }

// tx is Userbuf_t._tx generalized over direction: toUser selects
// dst-is-user (Uiowrite), !toUser selects src-is-user (Uioread).
func (ub UserBuf) tx(buf []byte, toUser bool) (int, defs.Err_t) {
	if len(buf) > ub.len {
		buf = buf[:ub.len]
	}
	done := 0
	for done < len(buf) {
		va := ub.va + mem.VirtAddr(done)
		want := len(buf) - done
		seg, err := pagetable.GetMutSliceFromSatp(ub.alloc, ub.satp, va, want)
		if err != 0 {
			return done, err
		}
		if len(seg) == 0 {
			return done, defs.EFAULT
		}
		var n int
		if toUser {
			n = copy(seg, buf[done:])
		} else {
			n = copy(buf[done:], seg)
		}
		done += n
		if n == 0 {
			return done, defs.EFAULT
		}
	}
	return done, 0
}

// CopyOut writes src into the user range, returning the number of bytes
// actually written before any fault.
func (ub UserBuf) CopyOut(src []byte) (int, defs.Err_t) {
	return ub.tx(src, true)
}

// CopyIn reads the user range into dst, returning the number of bytes
// actually read before any fault.
func (ub UserBuf) CopyIn(dst []byte) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

// maxPathLen bounds ReadCString the same way spec §4.7 bounds Create's
// path argument: "reads a NUL-terminated path <= 4096 bytes".
const maxPathLen = 4096

// ReadCString reads a NUL-terminated string of at most maxPathLen bytes
// from user memory, one page-sized chunk at a time, stopping at the
// first NUL byte. It fails with ENAMETOOLONG if no NUL is found within
// the bound, and with EFAULT if a page in range is unmapped.
func ReadCString(alloc *mem.FrameAllocator, satp uint64, va mem.VirtAddr) (string, defs.Err_t) {
	buf := make([]byte, 0, 64)
	for off := 0; off < maxPathLen; {
		chunk, err := pagetable.GetMutSliceFromSatp(alloc, satp, va+mem.VirtAddr(off), maxPathLen-off)
		if err != 0 {
			return "", defs.EFAULT
		}
		if len(chunk) == 0 {
			return "", defs.EFAULT
		}
		for _, b := range chunk {
			if b == 0 {
				return string(buf), 0
			}
			buf = append(buf, b)
			off++
			if off >= maxPathLen {
				return "", defs.ENAMETOOLONG
			}
		}
	}
	return "", defs.ENAMETOOLONG
}
