package security

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes engine activity as Prometheus metrics.
type Collector struct {
	RequestsClassified *prometheus.CounterVec
	RequestsDenied     *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	ViolationsDetected prometheus.Counter
	WritesDropped      *prometheus.CounterVec
}

// NewCollector creates and registers the engine's metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests use a
// private registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RequestsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "requests_classified_total",
			Help:      "Requests seen by the classifier, by outcome.",
		}, []string{"outcome"}),
		RequestsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "requests_denied_total",
			Help:      "Requests denied by the classifier, by reason.",
		}, []string{"reason"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "events_processed_total",
			Help:      "Security events processed, by type and severity.",
		}, []string{"type", "severity"}),
		ViolationsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "violations_detected_total",
			Help:      "Compliance violations detected.",
		}),
		WritesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "writes_dropped_total",
			Help:      "Best-effort persistence writes that failed, by table.",
		}, []string{"table"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.RequestsClassified,
			c.RequestsDenied,
			c.EventsProcessed,
			c.ViolationsDetected,
			c.WritesDropped,
		)
	}
	return c
}
