// Package prom exports cache counters to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/clustercache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	fetches   prometheus.Counter
	coalesced prometheus.Counter
	clears    *prometheus.CounterVec
	sizeKeys  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "hits_total",
				Help:        "Fields served from cache",
				ConstLabels: constLabels,
			},
			[]string{"field"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "misses_total",
				Help:        "Fields requested over the network",
				ConstLabels: constLabels,
			},
			[]string{"field"},
		),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "fetches_total",
			Help:        "Cluster requests sent to the API",
			ConstLabels: constLabels,
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "coalesced_total",
			Help:        "In-flight requests awaited instead of duplicated",
			ConstLabels: constLabels,
		}),
		clears: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "clears_total",
				Help:        "Cache clears by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_keys",
			Help:        "Number of indexed embedding keys",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.fetches, a.coalesced, a.clears, a.sizeKeys)
	return a
}

// Hit counts a field served from cache.
func (a *Adapter) Hit(f cache.Field) { a.hits.WithLabelValues(string(f)).Inc() }

// Miss counts a field requested over the network.
func (a *Adapter) Miss(f cache.Field) { a.misses.WithLabelValues(string(f)).Inc() }

func (a *Adapter) Fetch()     { a.fetches.Inc() }
func (a *Adapter) Coalesced() { a.coalesced.Inc() }

// Clear increments the clear counter with a reason label.
func (a *Adapter) Clear(r cache.ClearReason) {
	a.clears.WithLabelValues(reason(r)).Inc()
}

// Size updates the key gauge.
func (a *Adapter) Size(keys int) { a.sizeKeys.Set(float64(keys)) }

// reason maps ClearReason to a stable label value.
func reason(r cache.ClearReason) string {
	if r == cache.ClearFailure {
		return "failure"
	}
	return "explicit"
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
