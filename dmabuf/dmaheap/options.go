// Package dmaheap allocates DMA buffers from a Linux dma-heap.
//
// Buffers are dma-buf descriptors obtained with DMA_HEAP_IOCTL_ALLOC. Their
// physical address is read with the NXP DMA_BUF_IOCTL_PHYS extension, so the
// heap must hand out physically contiguous memory (typically the CMA heap).
package dmaheap

import (
	"fmt"
	"strings"
)

// Name identifies this backend.
const Name = "dma-heap"

// DefaultNode is the heap device opened when no descriptor is supplied.
const DefaultNode = "/dev/dma_heap/linux,cma"

// SyncMode selects how CPU cache coherency is maintained for cached heaps.
type SyncMode int

const (
	// SyncPhys issues DMA_BUF_IOCTL_PHYS around CPU access. On NXP kernels
	// the PHYS ioctl flushes/invalidates the buffer as a side effect, which
	// works on heaps where DMA_BUF_IOCTL_SYNC does not.
	SyncPhys SyncMode = iota
	// SyncDmaBuf issues the standard DMA_BUF_IOCTL_SYNC start/end pair.
	SyncDmaBuf
	// SyncNone performs no coherency operations (uncached heaps).
	SyncNone
)

func (m SyncMode) String() string {
	switch m {
	case SyncPhys:
		return "phys"
	case SyncDmaBuf:
		return "dma-buf"
	case SyncNone:
		return "none"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode parses the String form of a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "phys":
		return SyncPhys, nil
	case "dma-buf", "dmabuf", "sync":
		return SyncDmaBuf, nil
	case "none":
		return SyncNone, nil
	}
	return 0, fmt.Errorf("dmaheap: unknown sync mode %q", s)
}

// Options configures the dma-heap backend.
type Options struct {
	// FD is an already open heap descriptor. It is borrowed: Close leaves it
	// open. A negative value makes the backend open Node itself.
	FD int
	// Node is the heap device path used when FD is negative.
	Node string
	// HeapFlags are passed to DMA_HEAP_IOCTL_ALLOC. Zero by default.
	HeapFlags uint64
	// FDFlags are the flags of the returned dma-buf descriptors. Zero selects
	// O_RDWR|O_CLOEXEC.
	FDFlags uint32
	// Sync selects the coherency mechanism.
	Sync SyncMode
}

// DefaultOptions returns options opening DefaultNode.
func DefaultOptions() Options {
	return Options{FD: -1, Node: DefaultNode, Sync: SyncPhys}
}
