// Package testutil provides an in-memory dmabuf backend for tests.
package testutil

import (
	"errors"
	"sync"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

// DefaultBase is the first bus address handed out by a Backend.
const DefaultBase dmabuf.PhysicalAddress = 0x4000_0004

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("testutil: injected failure")

// Stats counts the raw operations a Backend has performed.
type Stats struct {
	Allocs    int
	Frees     int
	Maps      int
	Unmaps    int
	Begins    int
	Ends      int
	Closes    int
	LastAlloc int // size of the most recent raw allocation
	LastBegin dmabuf.MapFlags
	LastEnd   dmabuf.MapFlags
}

// Backend is a dmabuf.Backend keeping memory in ordinary Go slices.
//
// Addresses start at Base and advance by the allocation size plus Skew, so
// they are deliberately not aligned to anything beyond 4 bytes.
type Backend struct {
	Base   dmabuf.PhysicalAddress
	Skew   uint64
	Cached bool // memory implements dmabuf.CacheSyncer

	// Failure injection.
	FailAlloc   bool
	FailMap     bool
	FailBegin   bool
	FailEnd     bool
	ZeroAddress bool

	// BeforeAlloc, if set, runs at the start of every Alloc.
	BeforeAlloc func()

	mu    sync.Mutex
	next  dmabuf.PhysicalAddress
	stats Stats
}

// NewBackend returns a Backend with default addressing.
func NewBackend() *Backend {
	return &Backend{Base: DefaultBase, Skew: 4}
}

// Stats returns a snapshot of the operation counters.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Name implements dmabuf.Backend.
func (b *Backend) Name() string { return "test" }

// Close implements dmabuf.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Closes++
	return nil
}

// Alloc implements dmabuf.Backend.
func (b *Backend) Alloc(size int) (dmabuf.Memory, error) {
	if b.BeforeAlloc != nil {
		b.BeforeAlloc()
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailAlloc {
		return nil, ErrInjected
	}
	if b.next == 0 {
		b.next = b.Base
	}
	addr := b.next
	if b.ZeroAddress {
		addr = 0
	}
	b.next += dmabuf.PhysicalAddress(uint64(size) + b.Skew)
	b.stats.Allocs++
	b.stats.LastAlloc = size

	m := &memory{backend: b, addr: addr, data: make([]byte, size)}
	if b.Cached {
		return &cachedMemory{memory: m}, nil
	}
	return m, nil
}

type memory struct {
	backend *Backend
	addr    dmabuf.PhysicalAddress
	data    []byte
}

func (m *memory) PhysicalAddress() dmabuf.PhysicalAddress { return m.addr }

func (m *memory) FD() int { return -1 }

func (m *memory) Map(flags dmabuf.MapFlags) ([]byte, error) {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailMap {
		return nil, ErrInjected
	}
	b.stats.Maps++
	return m.data, nil
}

func (m *memory) Unmap(data []byte) error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Unmaps++
	return nil
}

func (m *memory) Free() error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Frees++
	return nil
}

type cachedMemory struct {
	*memory
}

func (m *cachedMemory) BeginAccess(flags dmabuf.MapFlags) error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailBegin {
		return ErrInjected
	}
	b.stats.Begins++
	b.stats.LastBegin = flags
	return nil
}

func (m *cachedMemory) EndAccess(flags dmabuf.MapFlags) error {
	b := m.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailEnd {
		return ErrInjected
	}
	b.stats.Ends++
	b.stats.LastEnd = flags
	return nil
}

// PageBackend is a Backend whose blocks all start on a page boundary.
type PageBackend struct {
	*Backend
	PageSize int
}

// NewPageBackend returns a PageBackend with 4 KiB pages.
func NewPageBackend() *PageBackend {
	b := NewBackend()
	b.Base = 0x8000_0000
	return &PageBackend{Backend: b, PageSize: 4096}
}

// Alignment implements dmabuf.AlignmentGuarantee.
func (p *PageBackend) Alignment() int { return p.PageSize }

// Alloc rounds every block up to whole pages so addresses stay page aligned.
func (p *PageBackend) Alloc(size int) (dmabuf.Memory, error) {
	p.Skew = uint64((p.PageSize - size%p.PageSize) % p.PageSize)
	return p.Backend.Alloc(size)
}
