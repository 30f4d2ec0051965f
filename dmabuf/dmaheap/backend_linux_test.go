//go:build linux

package dmaheap

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

func TestAllocationDataLayout(t *testing.T) {
	assert.Equal(t, uintptr(24), unsafe.Sizeof(heapAllocationData{}))
	assert.Equal(t, uintptr(0xc0184800), heapIoctlAlloc)
}

func TestOpenMissingNode(t *testing.T) {
	_, err := Open(Options{FD: -1, Node: "/nonexistent/dma_heap"})
	require.Error(t, err)
	assert.Equal(t, unix.ENOENT, dmabuf.Errno(err))
}

func TestBorrowedDescriptorStaysOpen(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "heap")
	require.NoError(t, err)
	defer f.Close()
	fd := int(f.Fd())

	a, err := New(Options{FD: fd})
	require.NoError(t, err)
	assert.Equal(t, fd, a.Backend().(*Backend).HeapFD())

	_, err = a.Allocate(4096, 0)
	require.Error(t, err, "a regular file is not a heap")

	require.NoError(t, a.Destroy())
	_, err = unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	require.NoError(t, err, "borrowed descriptor must survive Destroy")
}

func TestAlignmentIsPageSize(t *testing.T) {
	b := &Backend{fd: -1}
	assert.Equal(t, os.Getpagesize(), b.Alignment())
	require.NoError(t, b.Close())
}

func TestAllocateFromHeap(t *testing.T) {
	if _, err := os.Stat(DefaultNode); err != nil {
		t.Skipf("%s not available", DefaultNode)
	}
	a, err := New(DefaultOptions())
	require.NoError(t, err, "New should not error")
	defer a.Destroy()

	buf, err := dmabuf.Allocate(a, 4096, 16)
	require.NoError(t, err)
	assert.True(t, dmabuf.AddressOf(buf).IsAligned(16))
	assert.GreaterOrEqual(t, dmabuf.FDOf(buf), 0)

	data, err := dmabuf.Map(buf, dmabuf.MapWrite)
	require.NoError(t, err)
	assert.Len(t, data, 4096)
	data[0] = 1
	require.NoError(t, dmabuf.Unmap(buf))
	require.NoError(t, dmabuf.Deallocate(buf))
}
