package dmabuf

import "github.com/joshuapare/dmabufkit/internal/buf"

// Layout describes how a logical buffer sits inside a raw allocation.
type Layout struct {
	RawSize int             // bytes actually obtained from the backend
	Size    int             // bytes visible to the caller
	Offset  int             // distance from raw start to aligned start
	Raw     PhysicalAddress // physical address of the raw allocation
	Aligned PhysicalAddress // physical address presented to the caller
}

// CompensatedSize returns the number of bytes to request from a backend that
// cannot align allocations itself. Adding the full alignment leaves room for
// any shift of up to alignment-1 bytes. It returns -1 on overflow.
func CompensatedSize(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	total, ok := buf.AddOverflowSafe(size, alignment)
	if !ok {
		return -1
	}
	return total
}

// AlignUp rounds addr up to the next multiple of alignment.
func AlignUp(addr PhysicalAddress, alignment int) PhysicalAddress {
	if alignment <= 1 {
		return addr
	}
	a := PhysicalAddress(alignment)
	return (addr + a - 1) / a * a
}

// Compensate computes the layout of a size byte buffer aligned to alignment
// inside a raw allocation at raw of CompensatedSize(size, alignment) bytes.
func Compensate(raw PhysicalAddress, size, alignment int) Layout {
	aligned := AlignUp(raw, alignment)
	return Layout{
		RawSize: CompensatedSize(size, alignment),
		Size:    size,
		Offset:  int(aligned - raw),
		Raw:     raw,
		Aligned: aligned,
	}
}

// exact is the layout of an allocation that needs no compensation.
func exact(raw PhysicalAddress, size int) Layout {
	return Layout{RawSize: size, Size: size, Raw: raw, Aligned: raw}
}
