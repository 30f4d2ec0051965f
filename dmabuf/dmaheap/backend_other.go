//go:build !linux

package dmaheap

import "github.com/joshuapare/dmabufkit/dmabuf"

// New reports that dma-heaps are only available on Linux.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	return nil, &dmabuf.Error{Op: "open", Backend: Name, Err: dmabuf.ErrUnsupported}
}
