package dmabuf

// Allocator produces and manages DMA buffers.
//
// Implementations are not required to be safe for concurrent operations on
// the same Buffer. Distinct buffers may be used from different goroutines.
type Allocator interface {
	// Destroy releases the allocator and any device session it owns.
	Destroy() error

	// Allocate returns a buffer of exactly size bytes whose physical address
	// is a multiple of alignment. Alignments of 0 and 1 impose no constraint.
	Allocate(size, alignment int) (Buffer, error)

	// Deallocate releases buf, unmapping it first if it is still mapped.
	Deallocate(buf Buffer) error

	// Map maps buf into the process and returns its contents. Calls nest;
	// see the package documentation for the flag rules.
	Map(buf Buffer, flags MapFlags) ([]byte, error)

	// Unmap undoes one Map. Unmapping an unmapped buffer is a no-op.
	Unmap(buf Buffer) error

	// StartSyncSession begins CPU access to a buffer mapped with MapManualSync.
	StartSyncSession(buf Buffer) error

	// StopSyncSession ends CPU access begun by StartSyncSession.
	StopSyncSession(buf Buffer) error

	// PhysicalAddress returns the aligned bus address of buf.
	PhysicalAddress(buf Buffer) PhysicalAddress

	// FD returns the file descriptor backing buf, or -1 if there is none.
	// The descriptor stays owned by the allocator.
	FD(buf Buffer) int

	// Size returns the size requested when buf was allocated.
	Size(buf Buffer) int
}

// Buffer is a block of physically contiguous memory.
type Buffer interface {
	// Allocator returns the allocator that produced the buffer.
	Allocator() Allocator
}

// Allocate validates the request and obtains a buffer from a.
func Allocate(a Allocator, size, alignment int) (Buffer, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if alignment < 0 {
		return nil, ErrInvalidAlignment
	}
	return a.Allocate(size, alignment)
}

func owner(buf Buffer) (Allocator, error) {
	if buf == nil {
		return nil, ErrNilBuffer
	}
	a := buf.Allocator()
	if a == nil {
		return nil, ErrNoAllocator
	}
	return a, nil
}

// Deallocate releases buf through its allocator.
func Deallocate(buf Buffer) error {
	a, err := owner(buf)
	if err != nil {
		return err
	}
	return a.Deallocate(buf)
}

// Map maps buf through its allocator.
func Map(buf Buffer, flags MapFlags) ([]byte, error) {
	a, err := owner(buf)
	if err != nil {
		return nil, err
	}
	return a.Map(buf, flags)
}

// Unmap undoes one Map of buf.
func Unmap(buf Buffer) error {
	a, err := owner(buf)
	if err != nil {
		return err
	}
	return a.Unmap(buf)
}

// StartSyncSession begins a manual sync session on buf.
func StartSyncSession(buf Buffer) error {
	a, err := owner(buf)
	if err != nil {
		return err
	}
	return a.StartSyncSession(buf)
}

// StopSyncSession ends a manual sync session on buf.
func StopSyncSession(buf Buffer) error {
	a, err := owner(buf)
	if err != nil {
		return err
	}
	return a.StopSyncSession(buf)
}

// AddressOf returns the physical address of buf, or 0 if buf is unbound.
func AddressOf(buf Buffer) PhysicalAddress {
	a, err := owner(buf)
	if err != nil {
		return 0
	}
	return a.PhysicalAddress(buf)
}

// FDOf returns the file descriptor of buf, or -1.
func FDOf(buf Buffer) int {
	a, err := owner(buf)
	if err != nil {
		return -1
	}
	return a.FD(buf)
}

// SizeOf returns the logical size of buf, or 0 if buf is unbound.
func SizeOf(buf Buffer) int {
	a, err := owner(buf)
	if err != nil {
		return 0
	}
	return a.Size(buf)
}
