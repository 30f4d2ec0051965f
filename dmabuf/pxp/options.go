// Package pxp allocates DMA buffers through the i.MX PXP device.
package pxp

import (
	"fmt"
	"strings"
)

// Name identifies this backend.
const Name = "pxp"

// DefaultNode is the PXP device opened when no descriptor is supplied.
const DefaultNode = "/dev/pxp_device"

// MemoryType is the caching mode of PXP memory as seen by the CPU.
type MemoryType uint32

const (
	MemoryUncached     MemoryType = 0
	MemoryWriteCombine MemoryType = 1
)

func (t MemoryType) String() string {
	switch t {
	case MemoryUncached:
		return "uncached"
	case MemoryWriteCombine:
		return "write-combine"
	default:
		return fmt.Sprintf("MemoryType(%d)", uint32(t))
	}
}

// ParseMemoryType parses the String form of a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "write-combine", "wc":
		return MemoryWriteCombine, nil
	case "uncached":
		return MemoryUncached, nil
	}
	return 0, fmt.Errorf("pxp: unknown memory type %q", s)
}

// Options configures the PXP backend.
type Options struct {
	// FD is an already open PXP descriptor. It is borrowed: Close leaves it
	// open. A negative value makes the backend open Node itself.
	FD int
	// Node is the device path used when FD is negative.
	Node string
	// MemoryType selects the CPU caching mode of allocated memory.
	MemoryType MemoryType
}

// DefaultOptions returns options opening DefaultNode with write-combined memory.
func DefaultOptions() Options {
	return Options{FD: -1, Node: DefaultNode, MemoryType: MemoryWriteCombine}
}
