package trace

import (
	"errors"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dmabuf"

type metrics struct {
	allocations   *prometheus.CounterVec
	allocFailures *prometheus.CounterVec
	deallocations *prometheus.CounterVec
	liveBuffers   *prometheus.GaugeVec
	liveBytes     *prometheus.GaugeVec
	allocSize     *prometheus.HistogramVec
	maps          *prometheus.CounterVec
	mapFailures   *prometheus.CounterVec
	unmaps        *prometheus.CounterVec
	syncSessions  *prometheus.CounterVec
}

func newMetrics() *metrics {
	labels := []string{"allocator"}
	return &metrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Buffers allocated.",
		}, labels),
		allocFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_failures_total",
			Help:      "Allocation requests that failed.",
		}, labels),
		deallocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deallocations_total",
			Help:      "Buffers deallocated.",
		}, labels),
		liveBuffers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_buffers",
			Help:      "Buffers currently allocated.",
		}, labels),
		liveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_bytes",
			Help:      "Bytes currently allocated, by requested size.",
		}, labels),
		allocSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_size_bytes",
			Help:      "Requested sizes of successful allocations.",
			Buckets:   prometheus.ExponentialBuckets(4096, 4, 8),
		}, labels),
		maps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_total",
			Help:      "Successful Map calls, including redundant ones.",
		}, labels),
		mapFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_failures_total",
			Help:      "Map calls that failed.",
		}, labels),
		unmaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmaps_total",
			Help:      "Successful Unmap calls.",
		}, labels),
		syncSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_sessions_total",
			Help:      "Manual sync session operations.",
		}, []string{"allocator", "phase"}),
	}
}

// registerMetrics creates the collectors and registers them with r. When
// another Allocator already registered them with r, the existing collectors
// are shared.
func registerMetrics(r prometheus.Registerer) (*metrics, error) {
	m := newMetrics()
	if r == nil {
		return m, nil
	}
	var result *multierror.Error
	m.allocations = register(r, m.allocations, &result)
	m.allocFailures = register(r, m.allocFailures, &result)
	m.deallocations = register(r, m.deallocations, &result)
	m.liveBuffers = register(r, m.liveBuffers, &result)
	m.liveBytes = register(r, m.liveBytes, &result)
	m.allocSize = register(r, m.allocSize, &result)
	m.maps = register(r, m.maps, &result)
	m.mapFailures = register(r, m.mapFailures, &result)
	m.unmaps = register(r, m.unmaps, &result)
	m.syncSessions = register(r, m.syncSessions, &result)
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](r prometheus.Registerer, c T, result **multierror.Error) T {
	err := r.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	*result = multierror.Append(*result, err)
	return c
}
