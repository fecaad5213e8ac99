package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the thin metrics interface spec §10.6 calls for: LoLa's own
// code only needs to increment counters on its hot path, never to own the
// HTTP exposition endpoint (left to the CLI shell, out of scope per §1).
// Grounded on the prometheus.NewCounterVec/GaugeVec style of
// _examples/cuemby-warren/pkg/metrics/metrics.go, narrowed to exactly the
// events §8's invariants care about: allocations, allocation failures,
// acquisitions, releases, rollbacks.
type Collector interface {
	AllocationSucceeded(event string)
	AllocationFailed(event string)
	ReferenceAcquired(event string)
	ReferenceReleased(event string)
	RollbackPerformed(event string)
}

// PrometheusCollector is the one real Collector implementation, registered
// against a caller-supplied prometheus.Registerer so multiple Runtime
// instances in the same test process don't collide on global metric
// registration.
type PrometheusCollector struct {
	allocations        *prometheus.CounterVec
	allocationFailures *prometheus.CounterVec
	acquisitions       *prometheus.CounterVec
	releases           *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec
}

// NewPrometheusCollector constructs and registers the LoLa counters
// against reg.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lola_slot_allocations_total",
			Help: "Total number of successful slot allocations, by event.",
		}, []string{"event"}),
		allocationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lola_slot_allocation_failures_total",
			Help: "Total number of failed slot allocation attempts, by event.",
		}, []string{"event"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lola_reference_acquisitions_total",
			Help: "Total number of consumer reference acquisitions, by event.",
		}, []string{"event"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lola_reference_releases_total",
			Help: "Total number of consumer reference releases, by event.",
		}, []string{"event"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lola_rollbacks_total",
			Help: "Total number of transaction-log rollbacks performed, by event.",
		}, []string{"event"}),
	}
	for _, collector := range []prometheus.Collector{c.allocations, c.allocationFailures, c.acquisitions, c.releases, c.rollbacks} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) AllocationSucceeded(event string) { c.allocations.WithLabelValues(event).Inc() }
func (c *PrometheusCollector) AllocationFailed(event string)    { c.allocationFailures.WithLabelValues(event).Inc() }
func (c *PrometheusCollector) ReferenceAcquired(event string)   { c.acquisitions.WithLabelValues(event).Inc() }
func (c *PrometheusCollector) ReferenceReleased(event string)   { c.releases.WithLabelValues(event).Inc() }
func (c *PrometheusCollector) RollbackPerformed(event string)   { c.rollbacks.WithLabelValues(event).Inc() }

// NoopCollector discards every observation; the default when no
// Prometheus registry is configured (e.g. unit tests).
type NoopCollector struct{}

func (NoopCollector) AllocationSucceeded(string) {}
func (NoopCollector) AllocationFailed(string)    {}
func (NoopCollector) ReferenceAcquired(string)   {}
func (NoopCollector) ReferenceReleased(string)   {}
func (NoopCollector) RollbackPerformed(string)   {}
