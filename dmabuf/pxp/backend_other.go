//go:build !linux

package pxp

import "github.com/joshuapare/dmabufkit/dmabuf"

// New reports that the PXP is only available on Linux.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	return nil, &dmabuf.Error{Op: "open", Backend: Name, Err: dmabuf.ErrUnsupported}
}
