//go:build linux

package dmaheap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/ioctl"
	"github.com/joshuapare/dmabufkit/internal/mmfile"
)

// DefaultFDFlags are the flags of dma-buf descriptors when Options.FDFlags is zero.
const DefaultFDFlags = unix.O_RDWR | unix.O_CLOEXEC

// heapAllocationData mirrors struct dma_heap_allocation_data.
type heapAllocationData struct {
	Len       uint64
	FD        uint32
	FDFlags   uint32
	HeapFlags uint64
}

var heapIoctlAlloc = ioctl.IOWR('H', 0, unsafe.Sizeof(heapAllocationData{}))

// Backend allocates dma-buf descriptors from a dma-heap.
type Backend struct {
	fd    int
	owned bool
	opts  Options
}

var (
	_ dmabuf.Backend            = (*Backend)(nil)
	_ dmabuf.AlignmentGuarantee = (*Backend)(nil)
)

// Open returns a Backend for opts, opening the heap device unless opts.FD
// is a valid descriptor.
func Open(opts Options) (*Backend, error) {
	if opts.FDFlags == 0 {
		opts.FDFlags = DefaultFDFlags
	}
	if opts.FD >= 0 {
		return &Backend{fd: opts.FD, opts: opts}, nil
	}
	node := opts.Node
	if node == "" {
		node = DefaultNode
	}
	fd, err := unix.Open(node, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &dmabuf.Error{Op: "open " + node, Backend: Name, Err: err}
	}
	return &Backend{fd: fd, owned: true, opts: opts}, nil
}

// New returns an Allocator backed by a dma-heap.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return dmabuf.NewAllocator(b, allocOpts...), nil
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return Name }

// HeapFD returns the heap descriptor.
func (b *Backend) HeapFD() int { return b.fd }

// Alignment implements dmabuf.AlignmentGuarantee. dma-buf memory always
// starts on a page boundary.
func (b *Backend) Alignment() int { return os.Getpagesize() }

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
	fd, err := AllocateDmaBuf(b.fd, size, b.opts.HeapFlags, b.opts.FDFlags)
	if err != nil {
		return nil, err
	}
	addr, err := PhysicalAddressFromFD(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	m := &memory{fd: fd, addr: addr, size: size}
	if b.opts.Sync == SyncNone {
		return m, nil
	}
	return &cachedMemory{memory: m, mode: b.opts.Sync}, nil
}

// AllocateDmaBuf allocates size bytes from the heap open at heapFD and
// returns the dma-buf descriptor.
func AllocateDmaBuf(heapFD, size int, heapFlags uint64, fdFlags uint32) (int, error) {
	if size < 1 {
		return -1, dmabuf.ErrInvalidSize
	}
	data := heapAllocationData{
		Len:       uint64(size),
		FDFlags:   fdFlags,
		HeapFlags: heapFlags,
	}
	if err := ioctl.Do(heapFD, heapIoctlAlloc, unsafe.Pointer(&data)); err != nil {
		return -1, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: err}
	}
	return int(data.FD), nil
}

// PhysicalAddressFromFD returns the physical address of a dma-buf descriptor.
func PhysicalAddressFromFD(fd int) (dmabuf.PhysicalAddress, error) {
	addr, err := ioctl.PhysicalAddress(fd)
	if err != nil {
		return 0, &dmabuf.Error{Op: "get physical address", Backend: Name, Err: err}
	}
	return dmabuf.PhysicalAddress(addr), nil
}

type memory struct {
	fd   int
	addr dmabuf.PhysicalAddress
	size int
}

func (m *memory) PhysicalAddress() dmabuf.PhysicalAddress { return m.addr }

func (m *memory) FD() int { return m.fd }

func (m *memory) Map(flags dmabuf.MapFlags) ([]byte, error) {
	data, err := mmfile.MapFD(m.fd, 0, m.size, mmfile.AccessOf(flags))
	if err != nil {
		return nil, &dmabuf.Error{Op: "map", Backend: Name, Err: err}
	}
	return data, nil
}

func (m *memory) Unmap(data []byte) error {
	return mmfile.Unmap(data)
}

func (m *memory) Free() error {
	if m.fd < 0 {
		return nil
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}

type cachedMemory struct {
	*memory
	mode SyncMode
}

func (m *cachedMemory) BeginAccess(flags dmabuf.MapFlags) error {
	switch m.mode {
	case SyncDmaBuf:
		return m.sync(ioctl.SyncStart | syncFlags(flags))
	case SyncPhys:
		if flags.Has(dmabuf.MapRead) {
			return m.phys()
		}
	}
	return nil
}

func (m *cachedMemory) EndAccess(flags dmabuf.MapFlags) error {
	switch m.mode {
	case SyncDmaBuf:
		return m.sync(ioctl.SyncEnd | syncFlags(flags))
	case SyncPhys:
		if flags.Has(dmabuf.MapWrite) {
			return m.phys()
		}
	}
	return nil
}

func (m *cachedMemory) sync(flags uint64) error {
	if err := ioctl.SyncDmaBuf(m.fd, flags); err != nil {
		return &dmabuf.Error{Op: "sync", Backend: Name, Err: err}
	}
	return nil
}

func (m *cachedMemory) phys() error {
	if _, err := ioctl.PhysicalAddress(m.fd); err != nil {
		return &dmabuf.Error{Op: "sync", Backend: Name, Err: err}
	}
	return nil
}

func syncFlags(flags dmabuf.MapFlags) uint64 {
	var f uint64
	if flags.Has(dmabuf.MapRead) {
		f |= ioctl.SyncRead
	}
	if flags.Has(dmabuf.MapWrite) {
		f |= ioctl.SyncWrite
	}
	return f
}
