// Package dmabuf provides a uniform abstraction over physically contiguous
// memory allocation for DMA-capable devices on embedded SoC platforms.
//
// # Overview
//
// Hardware blocks such as video codecs, display controllers and 2D/3D engines
// need memory that is physically contiguous and addressable by bus (physical)
// address. Linux offers several incompatible mechanisms for obtaining such
// memory (dma-heap, ION, IPU and PXP device ioctls). This package hides them
// behind one Allocator/Buffer contract, so callers allocate, map, synchronize
// and release buffers the same way no matter which mechanism backs them.
//
// # Allocator Interface
//
// Every Buffer carries a permanent reference to the Allocator that produced it.
// The package-level functions route through that reference:
//
//   - Allocate(a, size, alignment): obtain a new buffer
//   - Deallocate(buf): release it (forcing an unmap if still mapped)
//   - Map(buf, flags) / Unmap(buf): refcounted CPU mapping
//   - StartSyncSession(buf) / StopSyncSession(buf): manual cache coherency
//   - AddressOf(buf), FDOf(buf), SizeOf(buf): queries
//
// # Implementations
//
// BackendAllocator: generic allocator built on a Backend
//
//   - Backends only supply raw primitives (allocate, map, unmap, free)
//   - Refcounted mapping, sync sessions and alignment compensation live here
//   - Backends live in the subpackages dmaheap, ion, ipu, pxp and memfd
//
// Wrapped adapter: presents externally owned memory as a Buffer
//
//   - Allocation and deallocation are no-ops
//   - Map and Unmap forward to caller supplied functions
//
// # Usage Example
//
//	a, err := dmaheap.New(dmaheap.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer a.Destroy()
//
//	buf, err := dmabuf.Allocate(a, 4096, 16)
//	if err != nil {
//	    return err
//	}
//	defer dmabuf.Deallocate(buf)
//
//	data, err := dmabuf.Map(buf, dmabuf.MapWrite)
//	if err != nil {
//	    return err
//	}
//	copy(data, frame)
//	err = dmabuf.Unmap(buf)
//
// # Mapping
//
// Mapping is reference counted. The first Map performs the real mapping with
// the given flags; later calls only increment the count and must request a
// subset of the read/write access already granted. Flags without an access
// bit mean read+write. Each Map must be paired with an Unmap; the final Unmap
// releases the mapping, and Unmap on an unmapped buffer does nothing.
//
// # Cache Sync Sessions
//
// Backends with cached memory need explicit coherency operations. Without
// MapManualSync, Map starts a sync session and the final Unmap stops it. With
// MapManualSync the caller brackets CPU access with StartSyncSession and
// StopSyncSession while the buffer is mapped.
//
// # Alignment
//
// Allocate accepts an alignment for the physical address (0 and 1 mean none).
// Backends without native alignment support over-allocate by the alignment and
// expose an aligned window; Size and the mapped slice always reflect the
// requested size.
package dmabuf
