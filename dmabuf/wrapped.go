package dmabuf

// WrappedBuffer presents memory allocated elsewhere as a Buffer.
//
// The caller fills in the fields after Init. MapFunc and UnmapFunc are
// optional; without them Map yields no mapping and Unmap does nothing.
type WrappedBuffer struct {
	MapFunc   func(wb *WrappedBuffer, flags MapFlags) ([]byte, error)
	UnmapFunc func(wb *WrappedBuffer) error

	FD              int
	PhysicalAddress PhysicalAddress
	Size            int

	owner Allocator
}

// Init zeroes every field of wb and binds it to the wrapped adapter.
func (wb *WrappedBuffer) Init() {
	*wb = WrappedBuffer{owner: wrapped}
}

// NewWrappedBuffer returns an initialized WrappedBuffer describing external memory.
func NewWrappedBuffer(fd int, addr PhysicalAddress, size int) *WrappedBuffer {
	wb := &WrappedBuffer{}
	wb.Init()
	wb.FD = fd
	wb.PhysicalAddress = addr
	wb.Size = size
	return wb
}

// Allocator implements Buffer. It is nil until Init has been called.
func (wb *WrappedBuffer) Allocator() Allocator {
	return wb.owner
}

type wrappedAllocator struct{}

var wrapped Allocator = wrappedAllocator{}

// Wrapped returns the stateless adapter shared by all wrapped buffers.
func Wrapped() Allocator {
	return wrapped
}

func asWrapped(buf Buffer) (*WrappedBuffer, error) {
	wb, ok := buf.(*WrappedBuffer)
	if !ok || wb == nil {
		return nil, ErrForeignBuffer
	}
	return wb, nil
}

// Destroy does nothing; the adapter is static.
func (wrappedAllocator) Destroy() error { return nil }

// Allocate never allocates. It returns a nil Buffer and no error.
func (wrappedAllocator) Allocate(size, alignment int) (Buffer, error) { return nil, nil }

// Deallocate does nothing; the memory belongs to someone else.
func (wrappedAllocator) Deallocate(buf Buffer) error {
	_, err := asWrapped(buf)
	return err
}

func (wrappedAllocator) Map(buf Buffer, flags MapFlags) ([]byte, error) {
	wb, err := asWrapped(buf)
	if err != nil {
		return nil, err
	}
	if wb.MapFunc == nil {
		return nil, nil
	}
	return wb.MapFunc(wb, flags)
}

func (wrappedAllocator) Unmap(buf Buffer) error {
	wb, err := asWrapped(buf)
	if err != nil {
		return err
	}
	if wb.UnmapFunc == nil {
		return nil
	}
	return wb.UnmapFunc(wb)
}

func (wrappedAllocator) StartSyncSession(buf Buffer) error {
	_, err := asWrapped(buf)
	return err
}

func (wrappedAllocator) StopSyncSession(buf Buffer) error {
	_, err := asWrapped(buf)
	return err
}

func (wrappedAllocator) PhysicalAddress(buf Buffer) PhysicalAddress {
	wb, err := asWrapped(buf)
	if err != nil {
		return 0
	}
	return wb.PhysicalAddress
}

func (wrappedAllocator) FD(buf Buffer) int {
	wb, err := asWrapped(buf)
	if err != nil {
		return -1
	}
	return wb.FD
}

func (wrappedAllocator) Size(buf Buffer) int {
	wb, err := asWrapped(buf)
	if err != nil {
		return 0
	}
	return wb.Size
}
