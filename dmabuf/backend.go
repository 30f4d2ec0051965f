package dmabuf

// Backend is a concrete allocation mechanism. It only supplies raw
// primitives; refcounting, sync sessions and alignment are handled by
// BackendAllocator.
type Backend interface {
	// Name identifies the backend in errors and logs.
	Name() string

	// Alloc obtains a raw block of at least size bytes.
	Alloc(size int) (Memory, error)

	// Close releases resources the backend acquired itself.
	Close() error
}

// NativeAligner is implemented by backends that can align allocations
// themselves. BackendAllocator then never over-allocates.
type NativeAligner interface {
	AllocAligned(size, alignment int) (Memory, error)
}

// AlignmentGuarantee is implemented by backends whose blocks always start on
// a fixed boundary, such as a page. Requests for alignments dividing that
// boundary need no compensation.
type AlignmentGuarantee interface {
	Alignment() int
}

// Memory is one raw block obtained from a Backend.
//
// Memory may additionally implement CacheSyncer when its CPU mapping is cached.
type Memory interface {
	// PhysicalAddress returns the bus address of the start of the block.
	PhysicalAddress() PhysicalAddress

	// FD returns the descriptor referring to the block, or -1.
	FD() int

	// Map maps the whole block.
	Map(flags MapFlags) ([]byte, error)

	// Unmap releases a mapping returned by Map.
	Unmap(data []byte) error

	// Free releases the block.
	Free() error
}
