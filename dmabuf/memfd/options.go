// Package memfd is an emulated backend for hosts without DMA hardware.
//
// Memory comes from memfd_create and is really mapped, but physical
// addresses are synthetic: they start at Base and advance by each block's
// size plus Skew. With a non-zero Skew, addresses are deliberately not
// aligned, so alignment compensation is exercised like on IPU or PXP.
package memfd

import "github.com/joshuapare/dmabufkit/dmabuf"

// Name identifies this backend.
const Name = "memfd"

// DefaultBase is the first synthetic physical address.
const DefaultBase dmabuf.PhysicalAddress = 0x1000_0000

// DefaultSkew is the gap inserted after each block.
const DefaultSkew = 8

// Options configures the emulated backend.
type Options struct {
	Base   dmabuf.PhysicalAddress
	Skew   int
	Cached bool // emulate cached memory needing sync sessions
}

// DefaultOptions returns options for uncached memory at DefaultBase.
func DefaultOptions() Options {
	return Options{Base: DefaultBase, Skew: DefaultSkew}
}

// SyncStats counts the cache operations performed on cached memory.
type SyncStats struct {
	Begins int64
	Ends   int64
}
