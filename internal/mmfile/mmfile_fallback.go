//go:build !unix

// Package mmfile maps windows of file descriptors into memory.
package mmfile

import "errors"

// ErrUnsupported is returned on platforms without mmap.
var ErrUnsupported = errors.New("mmfile: mmap not supported on this platform")

// MapFD is not available without mmap.
func MapFD(fd int, offset int64, length int, access Access) ([]byte, error) {
	return nil, ErrUnsupported
}

// Unmap is a no-op without mmap.
func Unmap(data []byte) error {
	return nil
}
