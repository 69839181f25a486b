//go:build linux

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

// probe discovers the addressable length and alignment unit. Regular files
// report their stat size and byte granularity; block devices are asked via
// the BLKGETSIZE64 and BLKSSZGET ioctls, since stat reports zero for device
// nodes.
func (h *Handle) probe(info os.FileInfo) error {
	if !h.device {
		h.size = info.Size()
		h.align = 1
		return nil
	}

	fd := int(h.f.Fd())

	// BLKGETSIZE64 fills a u64; int is 64 bits wide on every Linux target
	// this builds for.
	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return err
	}
	h.size = int64(size)

	sector, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil || sector <= 0 {
		sector = 512
	}
	h.align = int64(sector)
	return nil
}
