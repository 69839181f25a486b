package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mwfern/blocksync/internal/platform"
)

// Handle is a seekable, block-addressable byte range: a raw block device or
// a regular file acting as a disk image. All I/O is positional — no method
// touches an implicit cursor, so concurrent readers on the same handle do
// not interfere through shared seek state.
type Handle struct {
	f        *os.File
	path     string
	size     int64
	align    int64
	device   bool
	readOnly bool
	ring     *platform.Ring
}

// Options controls how a handle is opened.
type Options struct {
	// Write opens the endpoint read-write. Handles without Write refuse WriteAt.
	Write bool
	// Create permits creating a missing regular-file endpoint. Only honored
	// together with Write; a fresh endpoint starts at length zero.
	Create bool
	// GrowTo, when > 0 and the endpoint is a regular file shorter than this
	// length, extends the file (sparse-safe) at open.
	GrowTo int64
	// Ring, when non-nil, routes reads and writes through io_uring.
	Ring *platform.Ring
}

// Open opens path and probes its addressable length and alignment unit.
func Open(path string, opts Options) (*Handle, error) {
	flags := os.O_RDONLY
	if opts.Write {
		flags = os.O_RDWR
		if opts.Create {
			flags |= os.O_CREATE
		}
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	device := info.Mode()&os.ModeDevice != 0

	h := &Handle{
		f:        f,
		path:     path,
		device:   device,
		readOnly: !opts.Write,
		ring:     opts.Ring,
	}

	if err := h.probe(info); err != nil {
		f.Close()
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	if opts.GrowTo > 0 && !device && h.size < opts.GrowTo {
		if err := h.Truncate(opts.GrowTo); err != nil {
			f.Close()
			return nil, err
		}
	}

	return h, nil
}

// Size returns the total addressable length in bytes.
func (h *Handle) Size() int64 { return h.size }

// Alignment returns the minimum offset/length granularity the endpoint
// accepts: the device sector size, or 1 for regular files.
func (h *Handle) Alignment() int64 { return h.align }

// IsDevice reports whether the endpoint is a device node.
func (h *Handle) IsDevice() bool { return h.device }

// Path returns the path the handle was opened with.
func (h *Handle) Path() string { return h.path }

// ReadAt fills buf from the given offset. It returns fewer bytes than
// requested only when the end of the addressable range is reached; an error
// mid-range is a device error.
func (h *Handle) ReadAt(buf []byte, off int64) (int, error) {
	fd := int(h.f.Fd())
	total := 0
	for total < len(buf) {
		var n int
		var err error
		if h.ring != nil {
			n, err = h.ring.ReadAt(int32(fd), buf[total:], off+int64(total))
		} else {
			n, err = unix.Pread(fd, buf[total:], off+int64(total))
		}
		if err != nil {
			return total, fmt.Errorf("read %s at %d: %w", h.path, off+int64(total), err)
		}
		if n == 0 {
			break // end of range
		}
		total += n
	}
	return total, nil
}

// WriteAt writes buf at the given offset. The write is all-or-nothing for
// the caller: any failure to commit every byte is an error, since a
// half-written block is worse than not writing at all.
func (h *Handle) WriteAt(buf []byte, off int64) error {
	if h.readOnly {
		return fmt.Errorf("write %s: handle is read-only", h.path)
	}
	fd := int(h.f.Fd())
	written := 0
	for written < len(buf) {
		var n int
		var err error
		if h.ring != nil {
			n, err = h.ring.WriteAt(int32(fd), buf[written:], off+int64(written))
		} else {
			n, err = unix.Pwrite(fd, buf[written:], off+int64(written))
		}
		if err != nil {
			return fmt.Errorf("write %s at %d: %w", h.path, off+int64(written), err)
		}
		if n == 0 {
			return fmt.Errorf("write %s at %d: no progress after %d bytes", h.path, off, written)
		}
		written += n
	}
	return nil
}

// Truncate extends (or shrinks) a regular-file endpoint. Extension is
// sparse-safe: no data blocks are allocated for the new range.
func (h *Handle) Truncate(n int64) error {
	if h.device {
		return fmt.Errorf("truncate %s: endpoint is a device", h.path)
	}
	if h.readOnly {
		return fmt.Errorf("truncate %s: handle is read-only", h.path)
	}
	if err := h.f.Truncate(n); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", h.path, n, err)
	}
	h.size = n
	return nil
}

// Sync forces durable commit of all prior writes.
func (h *Handle) Sync() error {
	if h.readOnly {
		return nil
	}
	if err := h.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", h.path, err)
	}
	return nil
}

// Close releases the handle. Writable handles are synced first.
func (h *Handle) Close() error {
	var syncErr error
	if !h.readOnly {
		syncErr = h.Sync()
	}
	if err := h.f.Close(); err != nil {
		return err
	}
	return syncErr
}
