//go:build !linux

package ipu

import "github.com/joshuapare/dmabufkit/dmabuf"

// New reports that the IPU is only available on Linux.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	return nil, &dmabuf.Error{Op: "open", Backend: Name, Err: dmabuf.ErrUnsupported}
}
