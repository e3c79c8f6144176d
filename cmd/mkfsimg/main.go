// Command mkfsimg builds a disk image for the kernel's block device: a
// fixed-size, freshly mkfs'd filesystem with a host directory tree
// copied in, for qemu-virt's virtio-blk to present at boot (spec §9:
// "Test/app loader ... Loads static ELF payloads into the FS at boot").
//
// Grounded on biscuit/src/mkfs/mkfs.go's shape (walk a host skeleton
// directory, replicate it into the target filesystem via Mkdir/Create +
// chunked copydata), adapted from biscuit's ufs.Ufs_t/MkDisk/BootFS/
// ustr.Ustr plumbing to this module's own internal/blockdev.Device and
// internal/fs.FS.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rvos/internal/blockdev"
	"rvos/internal/fs"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: mkfsimg <image path> <size in blocks> <skel dir>\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 4 {
		usage()
	}
	imagePath := os.Args[1]
	var numBlocks uint64
	if _, err := fmt.Sscanf(os.Args[2], "%d", &numBlocks); err != nil {
		usage()
	}
	skelDir := os.Args[3]

	dev, err := blockdev.CreateFileDevice(imagePath, numBlocks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfsimg: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	fsys, ferr := fs.Mount(dev)
	if ferr != 0 {
		fmt.Fprintf(os.Stderr, "mkfsimg: mount/mkfs failed: %v\n", ferr)
		os.Exit(1)
	}

	if _, _, lerr := fsys.Lookup("/"); lerr != 0 {
		fmt.Fprintf(os.Stderr, "mkfsimg: not a valid fs: no root inode\n")
		os.Exit(1)
	}

	if err := addFiles(fsys, skelDir); err != nil {
		fmt.Fprintf(os.Stderr, "mkfsimg: %v\n", err)
		os.Exit(1)
	}
}

// addFiles walks skelDir on the host and replicates its contents into
// fsys, creating a directory for every host directory and a file for
// every host file.
func addFiles(fsys *fs.FS, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %q: %w", path, err)
		}
		rel := strings.TrimPrefix(path, skelDir)
		if rel == "" {
			return nil
		}
		rel = "/" + strings.TrimPrefix(rel, "/")

		if d.IsDir() {
			if ferr := fsys.Mkdir(rel); ferr != 0 {
				return fmt.Errorf("mkdir %q: %v", rel, ferr)
			}
			return nil
		}
		if ferr := fsys.Create(rel); ferr != 0 {
			return fmt.Errorf("create %q: %v", rel, ferr)
		}
		return copyData(path, fsys, rel)
	})
}

// copyData streams the host file at src into fsys at dst, one block at
// a time so arbitrarily large payloads never need to be held in memory
// whole.
func copyData(src string, fsys *fs.FS, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	id, _, lerr := fsys.Lookup(dst)
	if lerr != 0 {
		return fmt.Errorf("lookup %q: %v", dst, lerr)
	}

	buf := make([]byte, blockdev.BlockSize)
	offset := 0
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if _, werr := fsys.WriteAt(id, offset, buf[:n]); werr != 0 {
				return fmt.Errorf("write %q: %v", dst, werr)
			}
			offset += n
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
