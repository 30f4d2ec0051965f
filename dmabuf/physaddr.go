package dmabuf

import "fmt"

// PhysicalAddress is a bus address usable by DMA-capable hardware.
// The zero value denotes "no valid physical address".
type PhysicalAddress uint64

// String renders the address in hexadecimal with a 0x prefix.
func (a PhysicalAddress) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// IsValid reports whether a is a usable address.
func (a PhysicalAddress) IsValid() bool {
	return a != 0
}

// IsAligned reports whether a is a multiple of alignment.
// Alignments of 0 and 1 are satisfied by every address.
func (a PhysicalAddress) IsAligned(alignment int) bool {
	if alignment <= 1 {
		return true
	}
	return uint64(a)%uint64(alignment) == 0
}
