package factory

import (
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/dmabuf/dmaheap"
	"github.com/joshuapare/dmabufkit/dmabuf/ion"
	"github.com/joshuapare/dmabufkit/dmabuf/ipu"
	"github.com/joshuapare/dmabufkit/dmabuf/memfd"
	"github.com/joshuapare/dmabufkit/dmabuf/pxp"
	"github.com/joshuapare/dmabufkit/dmabuf/trace"
	"github.com/joshuapare/dmabufkit/internal/logging"
)

type constructor func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error)

var registry = map[string]constructor{
	dmaheap.Name: func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
		o, err := cfg.dmaHeapOptions()
		if err != nil {
			return nil, err
		}
		return dmaheap.New(o, opts...)
	},
	ion.Name: func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
		return ion.New(cfg.ionOptions(), opts...)
	},
	ipu.Name: func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
		return ipu.New(cfg.ipuOptions(), opts...)
	},
	pxp.Name: func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
		o, err := cfg.pxpOptions()
		if err != nil {
			return nil, err
		}
		return pxp.New(o, opts...)
	},
	memfd.Name: func(cfg Config, opts ...dmabuf.Option) (*dmabuf.BackendAllocator, error) {
		return memfd.New(cfg.memfdOptions(), opts...)
	},
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeviceNode returns the device node the configured backend would open, or
// "" for backends without one.
func (c Config) DeviceNode(backend string) string {
	switch backend {
	case dmaheap.Name:
		return c.DMAHeap.Node
	case ion.Name:
		return c.ION.Node
	case ipu.Name:
		return c.IPU.Node
	case pxp.Name:
		return c.PXP.Node
	}
	return ""
}

// Available reports whether backend can plausibly be opened on this host.
func (c Config) Available(backend string) bool {
	if backend == memfd.Name {
		return true
	}
	node := c.DeviceNode(backend)
	if node == "" {
		return false
	}
	_, err := os.Stat(node)
	return err == nil
}

type options struct {
	reg prometheus.Registerer
	log logrus.FieldLogger
}

// Option configures New.
type Option func(*options)

// WithRegisterer sets where trace metrics are registered.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.reg = r }
}

// WithLogger sets the logger handed to the allocator.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// New builds the Allocator described by cfg.
func New(cfg Config, opts ...Option) (dmabuf.Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{reg: prometheus.DefaultRegisterer, log: logging.L}
	for _, opt := range opts {
		opt(&o)
	}

	name := cfg.Backend
	if name == "" {
		name = DefaultBackend
	}
	a, err := registry[name](cfg, dmabuf.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	if !cfg.Trace {
		return a, nil
	}
	t, err := trace.Wrap(a, trace.WithName(name), trace.WithRegisterer(o.reg), trace.WithLogger(o.log))
	if err != nil {
		_ = a.Destroy()
		return nil, err
	}
	return t, nil
}
