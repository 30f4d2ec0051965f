//go:build linux

package memfd

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/mmfile"
)

// Backend hands out memfd-backed blocks with synthetic physical addresses.
type Backend struct {
	opts Options

	mu   sync.Mutex
	next dmabuf.PhysicalAddress

	begins atomic.Int64
	ends   atomic.Int64
}

var _ dmabuf.Backend = (*Backend)(nil)

// Open returns a Backend for opts.
func Open(opts Options) (*Backend, error) {
	if opts.Base == 0 {
		opts.Base = DefaultBase
	}
	if opts.Skew < 0 {
		return nil, fmt.Errorf("memfd: negative skew %d", opts.Skew)
	}
	return &Backend{opts: opts, next: opts.Base}, nil
}

// New returns an Allocator backed by emulated memory.
func New(opts Options, allocOpts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
	b, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return dmabuf.NewAllocator(b, allocOpts...), nil
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return Name }

// Close implements dmabuf.Backend.
func (b *Backend) Close() error { return nil }

// SyncStats returns the number of cache operations performed so far.
func (b *Backend) SyncStats() SyncStats {
	return SyncStats{Begins: b.begins.Load(), Ends: b.ends.Load()}
}

// Alloc implements dmabuf.Backend.
func (b *Backend) Alloc(size int) (dmabuf.Memory, error) {
	if size < 1 {
		return nil, dmabuf.ErrInvalidSize
	}
	fd, err := unix.MemfdCreate("dmabuf", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, &dmabuf.Error{Op: "memfd_create", Backend: Name, Err: err}
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, &dmabuf.Error{Op: fmt.Sprintf("allocate %d bytes", size), Backend: Name, Err: err}
	}

	b.mu.Lock()
	addr := b.next
	b.next += dmabuf.PhysicalAddress(size + b.opts.Skew)
	b.mu.Unlock()

	m := &memory{fd: fd, addr: addr, size: size}
	if b.opts.Cached {
		return &cachedMemory{memory: m, backend: b}, nil
	}
	return m, nil
}

type memory struct {
	fd   int
	addr dmabuf.PhysicalAddress
	size int
}

func (m *memory) PhysicalAddress() dmabuf.PhysicalAddress { return m.addr }

func (m *memory) FD() int { return m.fd }

func (m *memory) Map(flags dmabuf.MapFlags) ([]byte, error) {
	data, err := mmfile.MapFD(m.fd, 0, m.size, mmfile.AccessOf(flags))
	if err != nil {
		return nil, &dmabuf.Error{Op: "map", Backend: Name, Err: err}
	}
	return data, nil
}

func (m *memory) Unmap(data []byte) error {
	return mmfile.Unmap(data)
}

func (m *memory) Free() error {
	if m.fd < 0 {
		return nil
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}

type cachedMemory struct {
	*memory
	backend *Backend
}

func (m *cachedMemory) BeginAccess(dmabuf.MapFlags) error {
	m.backend.begins.Add(1)
	return nil
}

func (m *cachedMemory) EndAccess(dmabuf.MapFlags) error {
	m.backend.ends.Add(1)
	return nil
}
