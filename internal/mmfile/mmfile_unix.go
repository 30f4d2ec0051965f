//go:build unix

// Package mmfile maps windows of file descriptors into memory.
package mmfile

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func (a Access) prot() int {
	prot := unix.PROT_NONE
	if a.Read {
		prot |= unix.PROT_READ
	}
	if a.Write {
		prot |= unix.PROT_WRITE
	}
	return prot
}

func (a Access) flags() int {
	if a.Private {
		return unix.MAP_PRIVATE
	}
	return unix.MAP_SHARED
}

// MapFD maps length bytes of fd starting at offset.
func MapFD(fd int, offset int64, length int, access Access) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("mmfile: invalid mapping length %d", length)
	}
	if offset < 0 {
		return nil, fmt.Errorf("mmfile: invalid mapping offset %d", offset)
	}
	data, err := unix.Mmap(fd, offset, length, access.prot(), access.flags())
	if err != nil {
		return nil, fmt.Errorf("mmfile: mmap %d bytes at %#x: %w", length, offset, err)
	}
	return data, nil
}

// Unmap releases a mapping returned by MapFD.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}
