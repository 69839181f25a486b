//go:build !linux

package platform

import "errors"

// Ring is a no-op stub on non-Linux platforms.
type Ring struct{}

// NewRing always returns (nil, nil) on non-Linux platforms.
func NewRing(_ uint32) (*Ring, error) {
	return nil, nil
}

func (r *Ring) ReadAt(_ int32, _ []byte, _ int64) (int, error) {
	return 0, errors.New("io_uring not supported on this platform")
}

func (r *Ring) WriteAt(_ int32, _ []byte, _ int64) (int, error) {
	return 0, errors.New("io_uring not supported on this platform")
}

func (r *Ring) Close() error { return nil }

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool {
	return false
}
