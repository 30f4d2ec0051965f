//go:build linux

// Package ioctl encodes Linux ioctl request numbers and issues ioctls with
// pointer arguments.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Request number layout from <asm-generic/ioctl.h>.
const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	dirNone  = 0
	dirWrite = 1
	dirRead  = 2
)

// IOC encodes a request number from its direction, type, number and argument size.
func IOC(dir, typ, nr, size uintptr) uintptr {
	return dir<<dirShift | typ<<typeShift | nr<<nrShift | size<<sizeShift
}

// IO encodes a request without an argument.
func IO(typ byte, nr uintptr) uintptr {
	return IOC(dirNone, uintptr(typ), nr, 0)
}

// IOR encodes a request whose argument the kernel writes.
func IOR(typ byte, nr, size uintptr) uintptr {
	return IOC(dirRead, uintptr(typ), nr, size)
}

// IOW encodes a request whose argument the kernel reads.
func IOW(typ byte, nr, size uintptr) uintptr {
	return IOC(dirWrite, uintptr(typ), nr, size)
}

// IOWR encodes a request whose argument the kernel reads and writes.
func IOWR(typ byte, nr, size uintptr) uintptr {
	return IOC(dirRead|dirWrite, uintptr(typ), nr, size)
}

// Do issues req on fd with arg pointing at the request's argument struct.
// Interrupted calls are retried.
func Do(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}
