//go:build linux

package ion

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/ioctl"
	"github.com/joshuapare/dmabufkit/internal/logging"
	"github.com/joshuapare/dmabufkit/internal/mmfile"
)

// heapTypeDMA is ION_HEAP_TYPE_DMA.
const heapTypeDMA = 4

// allocationData mirrors struct ion_allocation_data.
type allocationData struct {
	Len        uint64
	HeapIDMask uint32
	Flags      uint32
	FD         uint32
	Unused     uint32
}

// heapQuery mirrors struct ion_heap_query.
type heapQuery struct {
	Cnt       uint32
	Reserved0 uint32
	Heaps     uint64
	Reserved1 uint32
	Reserved2 uint32
}

// heapData mirrors struct ion_heap_data.
type heapData struct {
	Name      [32]byte
	Type      uint32
	HeapID    uint32
	Reserved0 uint32
	Reserved1 uint32
	Reserved2 uint32
}

var (
	iocAlloc     = ioctl.IOWR('I', 0, unsafe.Sizeof(allocationData{}))
	iocHeapQuery = ioctl.IOWR('I', 8, unsafe.Sizeof(heapQuery{}))
)

// Backend allocates dma-buf descriptors through ION.
type Backend struct {
	fd    int
	owned bool
	mask  uint32
	flags uint32
}

var (
	_ dmabuf.Backend            = (*Backend)(nil)
	_ dmabuf.AlignmentGuarantee = (*Backend)(nil)
)

// Open returns a Backend for opts and determines the heap mask.
func Open(opts Options) (*Backend, error) {
	b := &Backend{fd: opts.FD, flags: opts.HeapFlags}
	if b.fd < 0 {
		node := opts.Node
		if node == "" {
			node = DefaultNode
		}
		fd, err := unix.Open(node, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, &dmabuf.Error{Op: "open " + node, Backend: Name, Err: err}
		}
		b.fd = fd
		b.owned = true
	}

	mask, err := HeapIDMask(b.fd)
	switch {
	case err == nil:
		b.mask = mask
	case errors.Is(err, unix.ENOTTY), errors.Is(err, unix.EINVAL), errors.Is(err, unix.EOPNOTSUPP):
		b.mask = opts.HeapIDMask
		if b.mask == 0 {
			b.mask = DefaultHeapIDMask
		}
		logging.L.WithField("backend", Name).WithError(err).
			Debugf("heap query unsupported, using heap mask %#x", b.mask)
	default:
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// New returns an Allocator backed by ION.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return dmabuf.NewAllocator(b, allocOpts...), nil
}

// HeapIDMask queries the heaps known to the ION device open at fd and
// returns the mask of all DMA heaps.
func HeapIDMask(fd int) (uint32, error) {
	var q heapQuery
	if err := ioctl.Do(fd, iocHeapQuery, unsafe.Pointer(&q)); err != nil {
		return 0, &dmabuf.Error{Op: "query heap count", Backend: Name, Err: err}
	}
	if q.Cnt == 0 {
		return 0, &dmabuf.Error{Op: "query heaps", Backend: Name, Err: errors.New("no heaps reported")}
	}

	heaps := make([]heapData, q.Cnt)
	q.Heaps = uint64(uintptr(unsafe.Pointer(&heaps[0])))
	err := ioctl.Do(fd, iocHeapQuery, unsafe.Pointer(&q))
	runtime.KeepAlive(heaps)
	if err != nil {
		return 0, &dmabuf.Error{Op: "query heaps", Backend: Name, Err: err}
	}

	var mask uint32
	for _, h := range heaps[:q.Cnt] {
		if h.Type == heapTypeDMA {
			mask |= 1 << h.HeapID
		}
	}
	if mask == 0 {
		return 0, &dmabuf.Error{Op: "query heaps", Backend: Name, Err: errors.New("no DMA heap found")}
	}
	return mask, nil
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return Name }

// IONFD returns the ION device descriptor.
func (b *Backend) IONFD() int { return b.fd }

// HeapMask returns the heap id mask used for allocations.
func (b *Backend) HeapMask() uint32 { return b.mask }

// Alignment implements dmabuf.AlignmentGuarantee.
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
	fd, err := AllocateDmaBuf(b.fd, size, b.mask, b.flags)
	if err != nil {
		return nil, err
	}
	addr, err := ioctl.PhysicalAddress(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, &dmabuf.Error{Op: "get physical address", Backend: Name, Err: err}
	}
	return &memory{fd: fd, addr: dmabuf.PhysicalAddress(addr), size: size}, nil
}

// AllocateDmaBuf allocates size bytes from the heaps in heapIDMask and
// returns the dma-buf descriptor.
func AllocateDmaBuf(ionFD, size int, heapIDMask, heapFlags uint32) (int, error) {
	if size < 1 {
		return -1, dmabuf.ErrInvalidSize
	}
	data := allocationData{
		Len:        uint64(size),
		HeapIDMask: heapIDMask,
		Flags:      heapFlags,
	}
	if err := ioctl.Do(ionFD, iocAlloc, unsafe.Pointer(&data)); err != nil {
		return -1, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: err}
	}
	return int(data.FD), nil
}

// memory is uncached ION memory; it needs no sync operations.
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
