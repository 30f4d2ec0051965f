//go:build !linux

package ion

import "github.com/joshuapare/dmabufkit/dmabuf"

// New reports that ION is only available on Linux.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	return nil, &dmabuf.Error{Op: "open", Backend: Name, Err: dmabuf.ErrUnsupported}
}
