// Package ion allocates DMA buffers through the Linux ION allocator
// (kernels 4.14 and later).
package ion

// Name identifies this backend.
const Name = "ion"

// DefaultNode is the ION device opened when no descriptor is supplied.
const DefaultNode = "/dev/ion"

// DefaultHeapIDMask selects the first heap when heap detection is unavailable.
const DefaultHeapIDMask uint32 = 1 << 0

// Options configures the ION backend.
type Options struct {
	// FD is an already open ION descriptor. It is borrowed: Close leaves it
	// open. A negative value makes the backend open Node itself.
	FD int
	// Node is the ION device path used when FD is negative.
	Node string
	// HeapIDMask is used when the kernel cannot report its DMA heaps.
	HeapIDMask uint32
	// HeapFlags are passed to ION_IOC_ALLOC.
	HeapFlags uint32
}

// DefaultOptions returns options opening DefaultNode.
func DefaultOptions() Options {
	return Options{FD: -1, Node: DefaultNode, HeapIDMask: DefaultHeapIDMask}
}
