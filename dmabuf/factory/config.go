// Package factory builds Allocators from configuration.
//
// The backend is chosen at run time by name, replacing compile-time
// selection of a single default allocator:
//
//	backend: dma-heap
//	trace: true
//	dmaHeap:
//	  node: /dev/dma_heap/linux,cma
//	  sync: phys
package factory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/dmabuf/dmaheap"
	"github.com/joshuapare/dmabufkit/dmabuf/ion"
	"github.com/joshuapare/dmabufkit/dmabuf/ipu"
	"github.com/joshuapare/dmabufkit/dmabuf/memfd"
	"github.com/joshuapare/dmabufkit/dmabuf/pxp"
)

// DefaultBackend is used when Config.Backend is empty.
const DefaultBackend = dmaheap.Name

// ErrUnknownBackend indicates a backend name that is not registered.
var ErrUnknownBackend = errors.New("factory: unknown backend")

// Config selects and parameterizes a backend.
type Config struct {
	Backend string `yaml:"backend"`
	Trace   bool   `yaml:"trace"`

	DMAHeap DMAHeapConfig `yaml:"dmaHeap"`
	ION     IONConfig     `yaml:"ion"`
	IPU     DeviceConfig  `yaml:"ipu"`
	PXP     PXPConfig     `yaml:"pxp"`
	Memfd   MemfdConfig   `yaml:"memfd"`
}

// DeviceConfig names a device node.
type DeviceConfig struct {
	Node string `yaml:"node"`
}

// DMAHeapConfig configures the dma-heap backend.
type DMAHeapConfig struct {
	Node      string `yaml:"node"`
	HeapFlags uint64 `yaml:"heapFlags"`
	FDFlags   uint32 `yaml:"fdFlags"`
	Sync      string `yaml:"sync"`
}

// IONConfig configures the ION backend.
type IONConfig struct {
	Node       string `yaml:"node"`
	HeapIDMask uint32 `yaml:"heapIDMask"`
	HeapFlags  uint32 `yaml:"heapFlags"`
}

// PXPConfig configures the PXP backend.
type PXPConfig struct {
	Node       string `yaml:"node"`
	MemoryType string `yaml:"memoryType"`
}

// MemfdConfig configures the emulated backend.
type MemfdConfig struct {
	Base   uint64 `yaml:"base"`
	Skew   int    `yaml:"skew"`
	Cached bool   `yaml:"cached"`
}

// Default returns the configuration used when none is given.
func Default() Config {
	return Config{
		Backend: DefaultBackend,
		DMAHeap: DMAHeapConfig{Node: dmaheap.DefaultNode, Sync: dmaheap.SyncPhys.String()},
		ION:     IONConfig{Node: ion.DefaultNode, HeapIDMask: ion.DefaultHeapIDMask},
		IPU:     DeviceConfig{Node: ipu.DefaultNode},
		PXP:     PXPConfig{Node: pxp.DefaultNode, MemoryType: pxp.MemoryWriteCombine.String()},
		Memfd:   MemfdConfig{Base: uint64(memfd.DefaultBase), Skew: memfd.DefaultSkew},
	}
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("factory: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("factory: read config: %w", err)
	}
	return Parse(data)
}

// Validate checks that the configuration can be turned into backend options.
func (c Config) Validate() error {
	if _, ok := registry[c.Backend]; c.Backend != "" && !ok {
		return fmt.Errorf("%w %q (known: %v)", ErrUnknownBackend, c.Backend, Backends())
	}
	if _, err := dmaheap.ParseSyncMode(c.DMAHeap.Sync); err != nil {
		return fmt.Errorf("factory: dmaHeap.sync: %w", err)
	}
	if _, err := pxp.ParseMemoryType(c.PXP.MemoryType); err != nil {
		return fmt.Errorf("factory: pxp.memoryType: %w", err)
	}
	if c.Memfd.Skew < 0 {
		return fmt.Errorf("factory: memfd.skew must not be negative, got %d", c.Memfd.Skew)
	}
	return nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) dmaHeapOptions() (dmaheap.Options, error) {
	mode, err := dmaheap.ParseSyncMode(c.DMAHeap.Sync)
	if err != nil {
		return dmaheap.Options{}, err
	}
	return dmaheap.Options{
		FD:        -1,
		Node:      c.DMAHeap.Node,
		HeapFlags: c.DMAHeap.HeapFlags,
		FDFlags:   c.DMAHeap.FDFlags,
		Sync:      mode,
	}, nil
}

func (c Config) ionOptions() ion.Options {
	return ion.Options{FD: -1, Node: c.ION.Node, HeapIDMask: c.ION.HeapIDMask, HeapFlags: c.ION.HeapFlags}
}

func (c Config) ipuOptions() ipu.Options {
	return ipu.Options{FD: -1, Node: c.IPU.Node}
}

func (c Config) pxpOptions() (pxp.Options, error) {
	mt, err := pxp.ParseMemoryType(c.PXP.MemoryType)
	if err != nil {
		return pxp.Options{}, err
	}
	return pxp.Options{FD: -1, Node: c.PXP.Node, MemoryType: mt}, nil
}

func (c Config) memfdOptions() memfd.Options {
	return memfd.Options{Base: dmabuf.PhysicalAddress(c.Memfd.Base), Skew: c.Memfd.Skew, Cached: c.Memfd.Cached}
}
