//go:build linux

package memfd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

func newAllocator(t *testing.T, opts Options) (*dmabuf.BackendAllocator, *Backend) {
	t.Helper()
	a, err := New(opts)
	require.NoError(t, err, "New should not error")
	t.Cleanup(func() { _ = a.Destroy() })
	return a, a.Backend().(*Backend)
}

func TestAllocateAligned(t *testing.T) {
	a, _ := newAllocator(t, DefaultOptions())

	first, err := dmabuf.Allocate(a, 4096, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBase, dmabuf.AddressOf(first))

	buf, err := dmabuf.Allocate(a, 4096, 16)
	require.NoError(t, err)
	addr := dmabuf.AddressOf(buf)
	assert.True(t, addr.IsAligned(16), "address %s should be 16-byte aligned", addr)
	assert.NotEqual(t, DefaultBase+4096+DefaultSkew, addr, "skewed raw address needs compensation")
	assert.Equal(t, 4096, dmabuf.SizeOf(buf))
	assert.GreaterOrEqual(t, dmabuf.FDOf(buf), 0)
}

func TestMapSharesMemoryThroughDescriptor(t *testing.T) {
	a, _ := newAllocator(t, DefaultOptions())

	buf, err := dmabuf.Allocate(a, 8192, 0)
	require.NoError(t, err)

	data, err := dmabuf.Map(buf, dmabuf.MapWrite)
	require.NoError(t, err)
	copy(data, "frame")
	require.NoError(t, dmabuf.Unmap(buf))

	got := make([]byte, 5)
	_, err = unix.Pread(dmabuf.FDOf(buf), got, 0)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(got))
}

func TestCompensatedWindowIsWritable(t *testing.T) {
	a, _ := newAllocator(t, Options{Skew: 3})

	buf, err := dmabuf.Allocate(a, 100, 64)
	require.NoError(t, err)

	data, err := dmabuf.Map(buf, 0)
	require.NoError(t, err)
	require.Len(t, data, 100)
	for i := range data {
		data[i] = 0x5A
	}
	require.NoError(t, dmabuf.Unmap(buf))
}

func TestCachedSyncSessions(t *testing.T) {
	a, b := newAllocator(t, Options{Cached: true})

	buf, err := dmabuf.Allocate(a, 4096, 0)
	require.NoError(t, err)

	_, err = dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	require.NoError(t, dmabuf.Unmap(buf))
	assert.Equal(t, SyncStats{Begins: 1, Ends: 1}, b.SyncStats())

	_, err = dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))
	require.NoError(t, dmabuf.StopSyncSession(buf))
	require.NoError(t, dmabuf.Unmap(buf))
	assert.Equal(t, SyncStats{Begins: 2, Ends: 2}, b.SyncStats())
}

func TestDestroyClosesDescriptors(t *testing.T) {
	a, err := New(DefaultOptions())
	require.NoError(t, err)

	buf, err := dmabuf.Allocate(a, 4096, 0)
	require.NoError(t, err)
	fd := dmabuf.FDOf(buf)
	_, err = dmabuf.Map(buf, 0)
	require.NoError(t, err)

	require.NoError(t, a.Destroy())
	_, err = unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	assert.ErrorIs(t, err, unix.EBADF, "descriptor should be closed by Destroy")
}

func TestNegativeSkew(t *testing.T) {
	_, err := New(Options{Skew: -1})
	require.Error(t, err)
}
