package dmabuf

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/joshuapare/dmabufkit/internal/logging"
)

// BackendAllocator implements Allocator on top of a Backend.
type BackendAllocator struct {
	backend Backend
	log     logrus.FieldLogger

	mu        sync.Mutex
	live      map[*buffer]struct{}
	destroyed bool
	pending   sync.WaitGroup // allocations running outside mu
}

var _ Allocator = (*BackendAllocator)(nil)

// Option configures a BackendAllocator.
type Option func(*BackendAllocator)

// WithLogger sets the logger. The default is the package-wide logger, which
// discards output until the program configures it.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *BackendAllocator) {
		a.log = l
	}
}

// NewAllocator returns an Allocator drawing memory from b. Destroy closes b.
func NewAllocator(b Backend, opts ...Option) *BackendAllocator {
	a := &BackendAllocator{
		backend: b,
		live:    make(map[*buffer]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logging.L
	}
	a.log = a.log.WithField("backend", b.Name())
	return a
}

// Backend returns the backend a draws memory from.
func (a *BackendAllocator) Backend() Backend {
	return a.backend
}

// Live returns the number of buffers allocated and not yet deallocated.
func (a *BackendAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

type buffer struct {
	owner   *BackendAllocator
	mem     Memory
	sync    CacheSyncer
	layout  Layout
	mapping *Mapping
	freed   bool
}

func (b *buffer) Allocator() Allocator {
	return b.owner
}

// Allocate implements Allocator.
func (a *BackendAllocator) Allocate(size, alignment int) (Buffer, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if alignment < 0 {
		return nil, ErrInvalidAlignment
	}
	if alignment == 0 {
		alignment = 1
	}

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return nil, ErrAllocatorDestroyed
	}
	a.pending.Add(1)
	a.mu.Unlock()
	defer a.pending.Done()

	mem, layout, err := a.obtain(size, alignment)
	if err != nil {
		a.log.WithFields(logrus.Fields{"size": size, "alignment": alignment}).
			WithError(err).Debug("allocation failed")
		return nil, err
	}

	b := &buffer{
		owner:   a,
		mem:     mem,
		sync:    syncerOf(mem),
		layout:  layout,
		mapping: NewMapping(layout.Offset, layout.Size),
	}

	a.mu.Lock()
	a.live[b] = struct{}{}
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"size":      size,
		"alignment": alignment,
		"raw_size":  layout.RawSize,
		"phys":      layout.Aligned.String(),
		"fd":        mem.FD(),
	}).Debug("allocated buffer")
	return b, nil
}

func (a *BackendAllocator) obtain(size, alignment int) (Memory, Layout, error) {
	if na, ok := a.backend.(NativeAligner); ok {
		mem, err := na.AllocAligned(size, alignment)
		if err != nil {
			return nil, Layout{}, err
		}
		raw := mem.PhysicalAddress()
		if !raw.IsValid() {
			return nil, Layout{}, a.discard(mem)
		}
		return mem, exact(raw, size), nil
	}

	if !a.needsCompensation(alignment) {
		mem, err := a.backend.Alloc(size)
		if err != nil {
			return nil, Layout{}, err
		}
		raw := mem.PhysicalAddress()
		if !raw.IsValid() {
			return nil, Layout{}, a.discard(mem)
		}
		return mem, exact(raw, size), nil
	}

	total := CompensatedSize(size, alignment)
	if total < 0 {
		return nil, Layout{}, ErrInvalidSize
	}
	mem, err := a.backend.Alloc(total)
	if err != nil {
		return nil, Layout{}, err
	}
	raw := mem.PhysicalAddress()
	if !raw.IsValid() {
		return nil, Layout{}, a.discard(mem)
	}
	return mem, Compensate(raw, size, alignment), nil
}

func (a *BackendAllocator) needsCompensation(alignment int) bool {
	if alignment <= 1 {
		return false
	}
	if g, ok := a.backend.(AlignmentGuarantee); ok {
		n := g.Alignment()
		return n < alignment || n%alignment != 0
	}
	return true
}

// discard frees memory that came back without a physical address.
func (a *BackendAllocator) discard(mem Memory) error {
	err := &Error{Op: "allocate", Backend: a.backend.Name(), Err: ErrNoPhysicalAddress}
	if ferr := mem.Free(); ferr != nil {
		return multierror.Append(err, ferr)
	}
	return err
}

// own checks that buf is a live buffer of a.
func (a *BackendAllocator) own(buf Buffer) (*buffer, error) {
	if buf == nil {
		return nil, ErrNilBuffer
	}
	b, ok := buf.(*buffer)
	if !ok || b.owner != a {
		return nil, ErrForeignBuffer
	}
	if b.freed {
		return nil, ErrDeallocated
	}
	return b, nil
}

// Deallocate implements Allocator.
func (a *BackendAllocator) Deallocate(buf Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.live, b)
	a.mu.Unlock()
	return a.release(b)
}

func (a *BackendAllocator) release(b *buffer) error {
	var result *multierror.Error
	if b.mapping.Mapped() {
		if err := b.mapping.Release(b.mem, b.sync); err != nil {
			result = multierror.Append(result, &Error{Op: "unmap", Backend: a.backend.Name(), Err: err})
		}
	}
	if err := b.mem.Free(); err != nil {
		result = multierror.Append(result, &Error{Op: "free", Backend: a.backend.Name(), Err: err})
	}
	b.freed = true
	a.log.WithField("phys", b.layout.Aligned.String()).Debug("deallocated buffer")
	return result.ErrorOrNil()
}

// Map implements Allocator.
func (a *BackendAllocator) Map(buf Buffer, flags MapFlags) ([]byte, error) {
	b, err := a.own(buf)
	if err != nil {
		return nil, err
	}
	data, err := b.mapping.Map(flags, b.mem, b.sync)
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"phys":  b.layout.Aligned.String(),
		"flags": b.mapping.Flags().String(),
		"refs":  b.mapping.Refs(),
	}).Debug("mapped buffer")
	return data, nil
}

// Unmap implements Allocator.
func (a *BackendAllocator) Unmap(buf Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	return b.mapping.Unmap(b.mem, b.sync)
}

// StartSyncSession implements Allocator.
func (a *BackendAllocator) StartSyncSession(buf Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	return b.mapping.StartSync(b.sync)
}

// StopSyncSession implements Allocator.
func (a *BackendAllocator) StopSyncSession(buf Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	return b.mapping.StopSync(b.sync)
}

// PhysicalAddress implements Allocator.
func (a *BackendAllocator) PhysicalAddress(buf Buffer) PhysicalAddress {
	b, err := a.own(buf)
	if err != nil {
		return 0
	}
	return b.layout.Aligned
}

// FD implements Allocator.
func (a *BackendAllocator) FD(buf Buffer) int {
	b, err := a.own(buf)
	if err != nil {
		return -1
	}
	return b.mem.FD()
}

// Size implements Allocator.
func (a *BackendAllocator) Size(buf Buffer) int {
	b, err := a.own(buf)
	if err != nil {
		return 0
	}
	return b.layout.Size
}

// Destroy deallocates every buffer still alive and closes the backend.
// Allocations already in progress finish first and are released with the
// rest. Calling Destroy again does nothing.
func (a *BackendAllocator) Destroy() error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return nil
	}
	a.destroyed = true
	a.mu.Unlock()
	a.pending.Wait()

	a.mu.Lock()
	leftover := make([]*buffer, 0, len(a.live))
	for b := range a.live {
		leftover = append(leftover, b)
	}
	a.live = make(map[*buffer]struct{})
	a.mu.Unlock()

	var result *multierror.Error
	for _, b := range leftover {
		a.log.WithFields(logrus.Fields{
			"phys": b.layout.Aligned.String(),
			"size": b.layout.Size,
		}).Warn("buffer still allocated at destroy, releasing")
		if err := a.release(b); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := a.backend.Close(); err != nil {
		a.log.WithError(err).Warn("closing backend failed")
		result = multierror.Append(result, &Error{Op: "close", Backend: a.backend.Name(), Err: err})
	}
	return result.ErrorOrNil()
}
