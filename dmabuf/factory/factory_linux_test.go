//go:build linux

package factory

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/dmabuf/trace"
)

func TestNewMemfd(t *testing.T) {
	cfg := Default()
	cfg.Backend = "memfd"

	a, err := New(cfg)
	require.NoError(t, err, "New should not error")
	defer a.Destroy()
	_, ok := a.(*dmabuf.BackendAllocator)
	assert.True(t, ok, "untraced config yields the plain allocator")

	buf, err := dmabuf.Allocate(a, 4096, 16)
	require.NoError(t, err)
	assert.True(t, dmabuf.AddressOf(buf).IsAligned(16))
}

func TestNewTraced(t *testing.T) {
	cfg := Default()
	cfg.Backend = "memfd"
	cfg.Trace = true
	reg := prometheus.NewRegistry()

	a, err := New(cfg, WithRegisterer(reg))
	require.NoError(t, err)
	defer a.Destroy()
	_, ok := a.(*trace.Allocator)
	require.True(t, ok, "trace config yields the instrumented allocator")

	_, err = dmabuf.Allocate(a, 4096, 0)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dmabuf_allocations_total")
}

func TestNewMissingDevice(t *testing.T) {
	cfg := Default()
	cfg.Backend = "ipu"
	cfg.IPU.Node = "/nonexistent/mxc_ipu"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = "g2d"
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrUnknownBackend)
}
