// Package ipu allocates DMA buffers through the i.MX6 IPU device.
//
// The IPU driver hands out 32-bit bus addresses without alignment control
// and without descriptors; memory is mapped through the IPU device itself.
package ipu

// Name identifies this backend.
const Name = "ipu"

// DefaultNode is the IPU device opened when no descriptor is supplied.
const DefaultNode = "/dev/mxc_ipu"

// Options configures the IPU backend.
type Options struct {
	// FD is an already open IPU descriptor. It is borrowed: Close leaves it
	// open. A negative value makes the backend open Node itself.
	FD int
	// Node is the device path used when FD is negative.
	Node string
}

// DefaultOptions returns options opening DefaultNode.
func DefaultOptions() Options {
	return Options{FD: -1, Node: DefaultNode}
}
