// Package elfload parses the static little-endian ELF64/RV64 executables
// this kernel loads into a fresh user address space (spec §4.3, §6).
//
// Grounded on biscuit/src/kernel/chentry.go, which already uses the
// standard library's debug/elf to validate and rewrite an ELF header at
// build time (chkELF); this package performs the equivalent validation at
// load time and additionally walks PT_LOAD program headers, which chentry
// has no need to do.
package elfload

import (
	"bytes"
	"debug/elf"

	"rvos/internal/defs"
)

// Segment is one PT_LOAD program header, reduced to what a loader needs:
// where it goes in the address space, how many bytes come from the file
// versus are zero-filled, the permission bits, and the segment's bytes.
type Segment struct {
	VAddr    uint64
	MemSize  uint64
	FileSize uint64
	Data     []byte // FileSize bytes read from the image; never longer
	Read     bool
	Write    bool
	Exec     bool
}

// Image is a validated, parsed ELF64 RISC-V executable.
type Image struct {
	Entry    uint64
	Segments []Segment
}

// Load parses raw ELF bytes and returns every PT_LOAD segment in program-
// header order, or defs.EINVAL if the file fails validation (wrong magic,
// wrong class, wrong machine, or not an executable).
func Load(raw []byte) (*Image, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, defs.EINVAL
	}
	defer f.Close()

	if err := check(&f.FileHeader); err != 0 {
		return nil, err
	}

	img := &Image{Entry: f.FileHeader.Entry}
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, ph.Filesz)
		r := ph.Open()
		if _, rerr := fullRead(r, data); rerr != nil {
			return nil, defs.EINVAL
		}
		img.Segments = append(img.Segments, Segment{
			VAddr:    ph.Vaddr,
			MemSize:  ph.Memsz,
			FileSize: ph.Filesz,
			Data:     data,
			Read:     ph.Flags&elf.PF_R != 0,
			Write:    ph.Flags&elf.PF_W != 0,
			Exec:     ph.Flags&elf.PF_X != 0,
		})
	}
	return img, 0
}

// check mirrors chentry.go's chkELF, retargeted from x86-64 to RISC-V and
// from a build-time rewrite tool to a load-time validator: little-endian
// encoding, 64-bit class, executable type, and machine must all match
// before the kernel trusts the program headers. The magic bytes are
// already checked by elf.NewFile, which rejects a file without them.
func check(eh *elf.FileHeader) defs.Err_t {
	if eh.Data != elf.ELFDATA2LSB {
		return defs.EINVAL
	}
	if eh.Class != elf.ELFCLASS64 {
		return defs.EINVAL
	}
	if eh.Type != elf.ET_EXEC {
		return defs.EINVAL
	}
	if eh.Machine != elf.EM_RISCV {
		return defs.EINVAL
	}
	return 0
}

type reader interface {
	Read(p []byte) (int, error)
}

func fullRead(r reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
