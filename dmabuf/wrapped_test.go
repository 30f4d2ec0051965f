package dmabuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

func TestWrappedBufferInit(t *testing.T) {
	wb := dmabuf.WrappedBuffer{FD: 7, Size: 99}
	wb.Init()

	assert.Zero(t, wb.FD)
	assert.Zero(t, wb.Size)
	assert.Nil(t, wb.MapFunc)
	assert.Equal(t, dmabuf.Wrapped(), wb.Allocator())
}

func TestWrappedBufferQueries(t *testing.T) {
	wb := dmabuf.NewWrappedBuffer(12, 0x3000_0000, 8192)

	assert.Equal(t, dmabuf.PhysicalAddress(0x3000_0000), dmabuf.AddressOf(wb))
	assert.Equal(t, 12, dmabuf.FDOf(wb))
	assert.Equal(t, 8192, dmabuf.SizeOf(wb))
}

func TestWrappedBufferWithoutMapFunctions(t *testing.T) {
	wb := dmabuf.NewWrappedBuffer(-1, 0x1000, 64)

	data, err := dmabuf.Map(wb, dmabuf.MapRead)
	require.NoError(t, err, "missing map function is not an error")
	assert.Nil(t, data)
	require.NoError(t, dmabuf.Unmap(wb))
	require.NoError(t, dmabuf.StartSyncSession(wb))
	require.NoError(t, dmabuf.StopSyncSession(wb))
	require.NoError(t, dmabuf.Deallocate(wb))
}

func TestWrappedBufferForwardsMapping(t *testing.T) {
	backing := make([]byte, 64)
	var gotFlags dmabuf.MapFlags
	unmaps := 0

	wb := dmabuf.NewWrappedBuffer(-1, 0x1000, len(backing))
	wb.MapFunc = func(w *dmabuf.WrappedBuffer, flags dmabuf.MapFlags) ([]byte, error) {
		gotFlags = flags
		return backing[:w.Size], nil
	}
	wb.UnmapFunc = func(*dmabuf.WrappedBuffer) error {
		unmaps++
		return nil
	}

	data, err := dmabuf.Map(wb, dmabuf.MapWrite)
	require.NoError(t, err)
	assert.Len(t, data, 64)
	assert.Equal(t, dmabuf.MapWrite, gotFlags, "flags are forwarded untouched")

	require.NoError(t, dmabuf.Unmap(wb))
	assert.Equal(t, 1, unmaps)
}

func TestWrappedAdapterNeverAllocates(t *testing.T) {
	a := dmabuf.Wrapped()

	buf, err := dmabuf.Allocate(a, 4096, 0)
	require.NoError(t, err)
	assert.Nil(t, buf)
	require.NoError(t, a.Destroy())

	_, err = a.Map(dmabuf.NewWrappedBuffer(0, 0, 0), 0)
	require.NoError(t, err)
}
