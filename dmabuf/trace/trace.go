// Package trace instruments a dmabuf.Allocator with Prometheus metrics and
// debug logging.
//
// The instrumented Allocator wraps every buffer it hands out, so calls made
// through the package-level dmabuf functions are routed back through it and
// counted.
package trace

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/internal/logging"
)

// Allocator decorates another Allocator.
type Allocator struct {
	inner dmabuf.Allocator
	name  string
	log   logrus.FieldLogger
	m     *metrics

	mu   sync.Mutex
	live map[*buffer]struct{}
}

var _ dmabuf.Allocator = (*Allocator)(nil)

type config struct {
	name string
	reg  prometheus.Registerer
	log  logrus.FieldLogger
}

// Option configures Wrap.
type Option func(*config)

// WithName sets the "allocator" label value. The default is "default".
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithRegisterer sets where collectors are registered. The default is
// prometheus.DefaultRegisterer; nil disables registration.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) { c.reg = r }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.log = l }
}

// Wrap returns an instrumented view of inner.
func Wrap(inner dmabuf.Allocator, opts ...Option) (*Allocator, error) {
	cfg := config{name: "default", reg: prometheus.DefaultRegisterer, log: logging.L}
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := registerMetrics(cfg.reg)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		inner: inner,
		name:  cfg.name,
		log:   cfg.log.WithField("allocator", cfg.name),
		m:     m,
		live:  make(map[*buffer]struct{}),
	}, nil
}

// Inner returns the decorated Allocator.
func (a *Allocator) Inner() dmabuf.Allocator { return a.inner }

type buffer struct {
	owner    *Allocator
	inner    dmabuf.Buffer
	size     int
	released bool
}

func (b *buffer) Allocator() dmabuf.Allocator { return b.owner }

// Unwrap returns the buffer produced by the decorated Allocator.
func Unwrap(buf dmabuf.Buffer) dmabuf.Buffer {
	if b, ok := buf.(*buffer); ok {
		return b.inner
	}
	return buf
}

func (a *Allocator) own(buf dmabuf.Buffer) (*buffer, error) {
	if buf == nil {
		return nil, dmabuf.ErrNilBuffer
	}
	b, ok := buf.(*buffer)
	if !ok || b.owner != a {
		return nil, dmabuf.ErrForeignBuffer
	}
	return b, nil
}

// Allocate implements dmabuf.Allocator.
func (a *Allocator) Allocate(size, alignment int) (dmabuf.Buffer, error) {
	inner, err := a.inner.Allocate(size, alignment)
	if err != nil {
		a.m.allocFailures.WithLabelValues(a.name).Inc()
		a.log.WithFields(logrus.Fields{"size": size, "alignment": alignment}).
			WithError(err).Debug("allocate failed")
		return nil, err
	}
	if inner == nil {
		return nil, nil
	}

	b := &buffer{owner: a, inner: inner, size: size}
	a.mu.Lock()
	a.live[b] = struct{}{}
	a.mu.Unlock()

	a.m.allocations.WithLabelValues(a.name).Inc()
	a.m.liveBuffers.WithLabelValues(a.name).Inc()
	a.m.liveBytes.WithLabelValues(a.name).Add(float64(size))
	a.m.allocSize.WithLabelValues(a.name).Observe(float64(size))
	a.log.WithFields(logrus.Fields{
		"size":      size,
		"alignment": alignment,
		"phys":      a.inner.PhysicalAddress(inner).String(),
	}).Debug("allocate")
	return b, nil
}

func (a *Allocator) forget(b *buffer) {
	if b.released {
		return
	}
	b.released = true
	a.m.deallocations.WithLabelValues(a.name).Inc()
	a.m.liveBuffers.WithLabelValues(a.name).Dec()
	a.m.liveBytes.WithLabelValues(a.name).Sub(float64(b.size))
}

// Deallocate implements dmabuf.Allocator.
func (a *Allocator) Deallocate(buf dmabuf.Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	err = a.inner.Deallocate(b.inner)
	if errors.Is(err, dmabuf.ErrDeallocated) || errors.Is(err, dmabuf.ErrForeignBuffer) {
		return err
	}
	a.mu.Lock()
	delete(a.live, b)
	a.forget(b)
	a.mu.Unlock()
	a.log.WithField("size", b.size).WithError(err).Debug("deallocate")
	return err
}

// Map implements dmabuf.Allocator.
func (a *Allocator) Map(buf dmabuf.Buffer, flags dmabuf.MapFlags) ([]byte, error) {
	b, err := a.own(buf)
	if err != nil {
		return nil, err
	}
	data, err := a.inner.Map(b.inner, flags)
	if err != nil {
		a.m.mapFailures.WithLabelValues(a.name).Inc()
		a.log.WithField("flags", flags.String()).WithError(err).Debug("map failed")
		return nil, err
	}
	a.m.maps.WithLabelValues(a.name).Inc()
	return data, nil
}

// Unmap implements dmabuf.Allocator.
func (a *Allocator) Unmap(buf dmabuf.Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	if err := a.inner.Unmap(b.inner); err != nil {
		a.log.WithError(err).Debug("unmap failed")
		return err
	}
	a.m.unmaps.WithLabelValues(a.name).Inc()
	return nil
}

// StartSyncSession implements dmabuf.Allocator.
func (a *Allocator) StartSyncSession(buf dmabuf.Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	if err := a.inner.StartSyncSession(b.inner); err != nil {
		return err
	}
	a.m.syncSessions.WithLabelValues(a.name, "start").Inc()
	return nil
}

// StopSyncSession implements dmabuf.Allocator.
func (a *Allocator) StopSyncSession(buf dmabuf.Buffer) error {
	b, err := a.own(buf)
	if err != nil {
		return err
	}
	if err := a.inner.StopSyncSession(b.inner); err != nil {
		return err
	}
	a.m.syncSessions.WithLabelValues(a.name, "stop").Inc()
	return nil
}

// PhysicalAddress implements dmabuf.Allocator.
func (a *Allocator) PhysicalAddress(buf dmabuf.Buffer) dmabuf.PhysicalAddress {
	b, err := a.own(buf)
	if err != nil {
		return 0
	}
	return a.inner.PhysicalAddress(b.inner)
}

// FD implements dmabuf.Allocator.
func (a *Allocator) FD(buf dmabuf.Buffer) int {
	b, err := a.own(buf)
	if err != nil {
		return -1
	}
	return a.inner.FD(b.inner)
}

// Size implements dmabuf.Allocator.
func (a *Allocator) Size(buf dmabuf.Buffer) int {
	b, err := a.own(buf)
	if err != nil {
		return 0
	}
	return a.inner.Size(b.inner)
}

// Destroy destroys the decorated Allocator. Buffers it releases on the
// way are accounted as deallocated.
func (a *Allocator) Destroy() error {
	err := a.inner.Destroy()
	a.mu.Lock()
	for b := range a.live {
		a.forget(b)
	}
	a.live = make(map[*buffer]struct{})
	a.mu.Unlock()
	a.log.WithError(err).Debug("destroy")
	return err
}
