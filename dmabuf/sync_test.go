package dmabuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/testutil"
)

func newCachedAllocator(t *testing.T) (*dmabuf.BackendAllocator, *testutil.Backend, dmabuf.Buffer) {
	t.Helper()
	b := testutil.NewBackend()
	b.Cached = true
	a := dmabuf.NewAllocator(b)
	t.Cleanup(func() { _ = a.Destroy() })
	buf, err := a.Allocate(4096, 0)
	require.NoError(t, err)
	return a, b, buf
}

func TestImplicitSyncSession(t *testing.T) {
	_, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Stats().Begins, "first map starts the session")
	assert.Equal(t, dmabuf.MapRead, b.Stats().LastBegin)

	_, err = dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Stats().Begins, "redundant map must not restart the session")

	require.NoError(t, dmabuf.Unmap(buf))
	assert.Zero(t, b.Stats().Ends)

	require.NoError(t, dmabuf.Unmap(buf))
	assert.Equal(t, 1, b.Stats().Ends, "final unmap stops the session")
	assert.Equal(t, 1, b.Stats().Unmaps)
}

func TestManualSyncSession(t *testing.T) {
	_, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapWrite|dmabuf.MapManualSync)
	require.NoError(t, err)
	assert.Zero(t, b.Stats().Begins, "manual sync suppresses the implicit start")

	require.NoError(t, dmabuf.StartSyncSession(buf))
	require.NoError(t, dmabuf.StartSyncSession(buf))
	assert.Equal(t, 1, b.Stats().Begins, "double start forwards once")
	assert.Equal(t, dmabuf.MapWrite|dmabuf.MapManualSync, b.Stats().LastBegin)

	require.NoError(t, dmabuf.StopSyncSession(buf))
	require.NoError(t, dmabuf.StopSyncSession(buf))
	assert.Equal(t, 1, b.Stats().Ends, "double stop forwards once")

	require.NoError(t, dmabuf.Unmap(buf))
	assert.Equal(t, 1, b.Stats().Ends, "manual unmap must not stop again")
	assert.Equal(t, 1, b.Stats().Unmaps)
}

func TestManualSyncSessionBlocksFinalUnmap(t *testing.T) {
	a, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))

	require.ErrorIs(t, dmabuf.Unmap(buf), dmabuf.ErrSyncSessionActive)
	assert.Zero(t, b.Stats().Unmaps, "mapping must survive the rejected unmap")

	require.NoError(t, a.StopSyncSession(buf))
	require.NoError(t, a.Unmap(buf))
	assert.Equal(t, 1, b.Stats().Unmaps)
}

func TestSyncSessionRequiresMapping(t *testing.T) {
	_, b, buf := newCachedAllocator(t)

	require.ErrorIs(t, dmabuf.StartSyncSession(buf), dmabuf.ErrNotMapped)
	require.ErrorIs(t, dmabuf.StopSyncSession(buf), dmabuf.ErrNotMapped)
	assert.Zero(t, b.Stats().Begins)
}

func TestSyncSessionIgnoredWithoutManualFlag(t *testing.T) {
	_, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))
	require.NoError(t, dmabuf.StopSyncSession(buf))

	st := b.Stats()
	assert.Equal(t, 1, st.Begins, "only the implicit start is forwarded")
	assert.Zero(t, st.Ends)
}

func TestManualFlagIgnoredOnRedundantMap(t *testing.T) {
	_, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapRead)
	require.NoError(t, err)
	_, err = dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)

	require.NoError(t, dmabuf.Unmap(buf))
	require.NoError(t, dmabuf.Unmap(buf))
	st := b.Stats()
	assert.Equal(t, 1, st.Begins)
	assert.Equal(t, 1, st.Ends, "session follows the first map's flags")
}

func TestDeallocateStopsManualSession(t *testing.T) {
	a, b, buf := newCachedAllocator(t)

	_, err := dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))

	require.NoError(t, a.Deallocate(buf))
	st := b.Stats()
	assert.Equal(t, 1, st.Ends)
	assert.Equal(t, 1, st.Unmaps)
	assert.Equal(t, 1, st.Frees)
}

func TestSyncStartFailureUndoesMapping(t *testing.T) {
	_, b, buf := newCachedAllocator(t)
	b.FailBegin = true

	_, err := dmabuf.Map(buf, dmabuf.MapRead)
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 1, b.Stats().Unmaps, "raw mapping must be undone")

	b.FailBegin = false
	_, err = dmabuf.Map(buf, dmabuf.MapWrite)
	require.NoError(t, err, "buffer must be unmapped after the failed map")
}

func TestNonCachedMemoryIgnoresSync(t *testing.T) {
	a, b := newAllocator(t)
	buf, err := a.Allocate(64, 0)
	require.NoError(t, err)

	_, err = dmabuf.Map(buf, dmabuf.MapRead|dmabuf.MapManualSync)
	require.NoError(t, err)
	require.NoError(t, dmabuf.StartSyncSession(buf))
	require.NoError(t, dmabuf.Unmap(buf), "no session is open on non-cached memory")
	assert.Equal(t, 1, b.Stats().Unmaps)
}
