//go:build linux

package ioctl

import "unsafe"

// dma-buf sync flags from <linux/dma-buf.h>.
const (
	SyncRead  uint64 = 1 << 0
	SyncWrite uint64 = 2 << 0
	SyncRW           = SyncRead | SyncWrite
	SyncStart uint64 = 0 << 2
	SyncEnd   uint64 = 1 << 2
)

type dmaBufSync struct {
	Flags uint64
}

// dmaBufPhys mirrors the NXP struct dma_buf_phys, whose single member is an
// unsigned long.
type dmaBufPhys struct {
	Phys uint
}

var (
	// DmaBufSync is DMA_BUF_IOCTL_SYNC.
	DmaBufSync = IOW('b', 0, unsafe.Sizeof(dmaBufSync{}))
	// DmaBufPhys is the NXP DMA_BUF_IOCTL_PHYS.
	DmaBufPhys = IOW('b', 10, unsafe.Sizeof(dmaBufPhys{}))
)

// SyncDmaBuf issues DMA_BUF_IOCTL_SYNC on a dma-buf descriptor.
func SyncDmaBuf(fd int, flags uint64) error {
	arg := dmaBufSync{Flags: flags}
	return Do(fd, DmaBufSync, unsafe.Pointer(&arg))
}

// PhysicalAddress returns the bus address of a dma-buf descriptor using the
// NXP DMA_BUF_IOCTL_PHYS extension.
func PhysicalAddress(fd int) (uint64, error) {
	var arg dmaBufPhys
	if err := Do(fd, DmaBufPhys, unsafe.Pointer(&arg)); err != nil {
		return 0, err
	}
	return uint64(arg.Phys), nil
}
