//go:build linux

package ipu

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/buf"
	"github.com/joshuapare/dmabufkit/internal/ioctl"
	"github.com/joshuapare/dmabufkit/internal/mmfile"
)

// dmaAddr is the driver's 32-bit dma_addr_t.
type dmaAddr uint32

var (
	iocAlloc = ioctl.IOWR('I', 0x14, unsafe.Sizeof(int32(0)))
	iocFree  = ioctl.IOW('I', 0x15, unsafe.Sizeof(int32(0)))
)

// Backend allocates memory from the IPU driver.
type Backend struct {
	fd    int
	owned bool
}

var _ dmabuf.Backend = (*Backend)(nil)

// Open returns a Backend for opts.
func Open(opts Options) (*Backend, error) {
	if opts.FD >= 0 {
		return &Backend{fd: opts.FD}, nil
	}
	node := opts.Node
	if node == "" {
		node = DefaultNode
	}
	fd, err := unix.Open(node, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &dmabuf.Error{Op: "open " + node, Backend: Name, Err: err}
	}
	return &Backend{fd: fd, owned: true}, nil
}

// New returns an Allocator backed by the IPU.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return dmabuf.NewAllocator(b, allocOpts...), nil
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return Name }

// IPUFD returns the IPU device descriptor.
func (b *Backend) IPUFD() int { return b.fd }

// Close implements dmabuf.Backend. A borrowed descriptor stays open.
func (b *Backend) Close() error {
	if !b.owned || b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// Alloc implements dmabuf.Backend. The driver takes the size in and returns
// the bus address in the same word.
func (b *Backend) Alloc(size int) (dmabuf.Memory, error) {
	if !buf.FitsUint32(size) {
		return nil, dmabuf.ErrInvalidSize
	}
	arg := dmaAddr(size)
	if err := ioctl.Do(b.fd, iocAlloc, unsafe.Pointer(&arg)); err != nil {
		return nil, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: err}
	}
	if arg == 0 {
		return nil, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: unix.ENOMEM}
	}
	return &memory{backend: b, addr: arg, size: size}, nil
}

type memory struct {
	backend *Backend
	addr    dmaAddr
	size    int
}

func (m *memory) PhysicalAddress() dmabuf.PhysicalAddress { return dmabuf.PhysicalAddress(m.addr) }

// FD returns -1; IPU memory has no descriptor of its own.
func (m *memory) FD() int { return -1 }

func (m *memory) Map(flags dmabuf.MapFlags) ([]byte, error) {
	data, err := mmfile.MapFD(m.backend.fd, int64(m.addr), m.size, mmfile.AccessOf(flags))
	if err != nil {
		return nil, &dmabuf.Error{Op: "map", Backend: Name, Err: err}
	}
	return data, nil
}

func (m *memory) Unmap(data []byte) error {
	return mmfile.Unmap(data)
}

func (m *memory) Free() error {
	if m.addr == 0 {
		return nil
	}
	arg := m.addr
	if err := ioctl.Do(m.backend.fd, iocFree, unsafe.Pointer(&arg)); err != nil {
		return &dmabuf.Error{Op: "free " + dmabuf.PhysicalAddress(m.addr).String(), Backend: Name, Err: err}
	}
	m.addr = 0
	return nil
}
