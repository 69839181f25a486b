//go:build !linux

package store

import (
	"io"
	"os"
)

// probe discovers the addressable length and alignment unit. Without the
// Linux block ioctls, device length falls back to seeking the end of the
// descriptor and the alignment unit to the traditional 512-byte sector.
func (h *Handle) probe(info os.FileInfo) error {
	if !h.device {
		h.size = info.Size()
		h.align = 1
		return nil
	}

	end, err := h.f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := h.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h.size = end
	h.align = 512
	return nil
}
