package ioc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/toutaio/toutago-ioc/registry"
)

const defaultMetricsNamespace = "ioc"

const (
	opResolve    = "resolve"
	opResolveAll = "resolve_all"

	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// metrics holds the resolver's Prometheus collectors. A nil *metrics
// records nothing.
type metrics struct {
	resolutions       *prometheus.CounterVec
	constructions     *prometheus.CounterVec
	discoveryFailures *prometheus.CounterVec
	registrations     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, namespace, resolverID string) (*metrics, error) {
	m := &metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolve and ResolveAll calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		constructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constructions_total",
			Help:      "Registration materializations by construction mode and outcome.",
		}, []string{"mode", "outcome"}),
		discoveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_failures_total",
			Help:      "Discovery failures by unit.",
		}, []string{"unit"}),
		registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registrations",
			Help:      "Distinct registrations currently known.",
		}),
	}

	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"resolver": resolverID}, reg)
	for _, c := range []prometheus.Collector{m.resolutions, m.constructions, m.discoveryFailures, m.registrations} {
		if err := wrapped.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) resolved(op string, err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(op, errorOutcome(err)).Inc()
}

func (m *metrics) constructed(mode registry.Mode, err error) {
	if m == nil {
		return
	}
	m.constructions.WithLabelValues(mode.String(), errorOutcome(err)).Inc()
}

func (m *metrics) discoveryFailed(unit string) {
	if m == nil {
		return
	}
	m.discoveryFailures.WithLabelValues(unit).Inc()
}

func (m *metrics) setRegistrations(n int) {
	if m == nil {
		return
	}
	m.registrations.Set(float64(n))
}
