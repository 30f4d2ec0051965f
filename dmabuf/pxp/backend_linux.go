//go:build linux

package pxp

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/buf"
	"github.com/joshuapare/dmabufkit/internal/ioctl"
	"github.com/joshuapare/dmabufkit/internal/mmfile"
)

// memDesc mirrors struct pxp_mem_desc. The driver header declares phys_addr
// as dma_addr_t, typedef'd to unsigned long for user space, so the field and
// the struct size follow the word size: 20 bytes on arm, 24 on arm64.
type memDesc struct {
	Handle    uint32
	Size      uint32
	PhysAddr  uint
	VirtUAddr uint32
	MType     uint32
}

var (
	iocGetPhymem = ioctl.IOWR('P', 4, unsafe.Sizeof(memDesc{}))
	iocPutPhymem = ioctl.IOW('P', 5, unsafe.Sizeof(memDesc{}))
)

// Backend allocates memory from the PXP driver.
type Backend struct {
	fd    int
	owned bool
	mtype MemoryType
}

var _ dmabuf.Backend = (*Backend)(nil)

// Open returns a Backend for opts.
func Open(opts Options) (*Backend, error) {
	if opts.FD >= 0 {
		return &Backend{fd: opts.FD, mtype: opts.MemoryType}, nil
	}
	node := opts.Node
	if node == "" {
		node = DefaultNode
	}
	fd, err := unix.Open(node, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &dmabuf.Error{Op: "open " + node, Backend: Name, Err: err}
	}
	return &Backend{fd: fd, owned: true, mtype: opts.MemoryType}, nil
}

// New returns an Allocator backed by the PXP.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return dmabuf.NewAllocator(b, allocOpts...), nil
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return Name }

// PXPFD returns the PXP device descriptor.
func (b *Backend) PXPFD() int { return b.fd }

// Close implements dmabuf.Backend. A borrowed descriptor stays open.
func (b *Backend) Close() error {
	if !b.owned || b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// Alloc implements dmabuf.Backend.
func (b *Backend) Alloc(size int) (dmabuf.Memory, error) {
	if !buf.FitsUint32(size) {
		return nil, dmabuf.ErrInvalidSize
	}
	m := &memory{backend: b, size: size}
	m.desc.Size = uint32(size)
	m.desc.MType = uint32(b.mtype)
	if err := ioctl.Do(b.fd, iocGetPhymem, unsafe.Pointer(&m.desc)); err != nil {
		return nil, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: err}
	}
	return m, nil
}

type memory struct {
	backend *Backend
	desc    memDesc
	size    int
	freed   bool
}

func (m *memory) PhysicalAddress() dmabuf.PhysicalAddress {
	return dmabuf.PhysicalAddress(m.desc.PhysAddr)
}

// FD returns -1; PXP memory has no descriptor of its own.
func (m *memory) FD() int { return -1 }

func (m *memory) Map(flags dmabuf.MapFlags) ([]byte, error) {
	data, err := mmfile.MapFD(m.backend.fd, int64(m.desc.PhysAddr), m.size, mmfile.AccessOf(flags))
	if err != nil {
		return nil, &dmabuf.Error{Op: "map", Backend: Name, Err: err}
	}
	return data, nil
}

func (m *memory) Unmap(data []byte) error {
	return mmfile.Unmap(data)
}

func (m *memory) Free() error {
	if m.freed {
		return nil
	}
	m.freed = true
	if err := ioctl.Do(m.backend.fd, iocPutPhymem, unsafe.Pointer(&m.desc)); err != nil {
		return &dmabuf.Error{Op: "free " + m.PhysicalAddress().String(), Backend: Name, Err: err}
	}
	return nil
}
