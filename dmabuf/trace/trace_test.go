package trace

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dmabufkit/dmabuf"
	fake "github.com/joshuapare/dmabufkit/internal/testutil"
)

func newTraced(t *testing.T, reg *prometheus.Registry) (*Allocator, *fake.Backend) {
	t.Helper()
	b := fake.NewBackend()
	b.Cached = true
	a, err := Wrap(dmabuf.NewAllocator(b), WithName("test"), WithRegisterer(reg))
	require.NoError(t, err, "Wrap should not error")
	return a, b
}

func TestCountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := newTraced(t, reg)

	buf, err := dmabuf.Allocate(a, 4096, 16)
	require.NoError(t, err)
	assert.Same(t, a, buf.Allocator(), "dispatch must route through the decorator")

	_, err = dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	_, err = dmabuf.Map(buf, dmabuf.MapWrite)
	require.ErrorIs(t, err, dmabuf.ErrIncompatibleFlags)
	require.NoError(t, dmabuf.Unmap(buf))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.allocations.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.liveBuffers.WithLabelValues("test")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(a.m.liveBytes.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.maps.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.mapFailures.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.unmaps.WithLabelValues("test")))

	require.NoError(t, dmabuf.Deallocate(buf))
	require.ErrorIs(t, dmabuf.Deallocate(buf), dmabuf.ErrDeallocated)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.deallocations.WithLabelValues("test")))
	assert.Zero(t, testutil.ToFloat64(a.m.liveBuffers.WithLabelValues("test")))
	assert.Zero(t, testutil.ToFloat64(a.m.liveBytes.WithLabelValues("test")))
}

func TestForwardsQueries(t *testing.T) {
	a, _ := newTraced(t, prometheus.NewRegistry())

	buf, err := a.Allocate(100, 64)
	require.NoError(t, err)
	inner := Unwrap(buf)
	assert.NotSame(t, buf, inner)

	assert.Equal(t, a.Inner().PhysicalAddress(inner), dmabuf.AddressOf(buf))
	assert.True(t, dmabuf.AddressOf(buf).IsAligned(64))
	assert.Equal(t, 100, dmabuf.SizeOf(buf))
	assert.Equal(t, -1, dmabuf.FDOf(buf))
}

func TestSyncSessionsCounted(t *testing.T) {
	a, b := newTraced(t, prometheus.NewRegistry())

	buf, err := a.Allocate(64, 0)
	require.NoError(t, err)
	_, err = dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))
	require.NoError(t, dmabuf.StopSyncSession(buf))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.syncSessions.WithLabelValues("test", "start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.syncSessions.WithLabelValues("test", "stop")))
	assert.Equal(t, 1, b.Stats().Begins)
}

func TestAllocationFailureCounted(t *testing.T) {
	a, b := newTraced(t, prometheus.NewRegistry())
	b.FailAlloc = true

	_, err := a.Allocate(64, 0)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.allocFailures.WithLabelValues("test")))
	assert.Zero(t, testutil.ToFloat64(a.m.liveBuffers.WithLabelValues("test")))
}

func TestDestroyAccountsLeftovers(t *testing.T) {
	a, b := newTraced(t, prometheus.NewRegistry())

	for i := 0; i < 2; i++ {
		_, err := a.Allocate(1024, 0)
		require.NoError(t, err)
	}
	require.NoError(t, a.Destroy())

	assert.Equal(t, 2, b.Stats().Frees)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.m.deallocations.WithLabelValues("test")))
	assert.Zero(t, testutil.ToFloat64(a.m.liveBytes.WithLabelValues("test")))
}

func TestForeignBufferRejected(t *testing.T) {
	a, _ := newTraced(t, prometheus.NewRegistry())
	other := dmabuf.NewAllocator(fake.NewBackend())
	buf, err := other.Allocate(64, 0)
	require.NoError(t, err)

	_, err = a.Map(buf, 0)
	require.ErrorIs(t, err, dmabuf.ErrForeignBuffer)
	require.ErrorIs(t, a.Deallocate(buf), dmabuf.ErrForeignBuffer)
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a1, _ := newTraced(t, reg)
	a2, err := Wrap(dmabuf.NewAllocator(fake.NewBackend()), WithName("second"), WithRegisterer(reg))
	require.NoError(t, err, "second Wrap on the same registry should reuse collectors")

	_, err = a1.Allocate(64, 0)
	require.NoError(t, err)
	_, err = a2.Allocate(64, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(a1.m.allocations), "both label values share one collector")
}

func TestWrappedAdapterPassThrough(t *testing.T) {
	a, err := Wrap(dmabuf.Wrapped(), WithRegisterer(nil))
	require.NoError(t, err)

	buf, err := a.Allocate(64, 0)
	require.NoError(t, err)
	assert.Nil(t, buf, "the wrapped adapter never allocates")
}
