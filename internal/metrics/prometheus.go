package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promMirror exposes the collector's events as Prometheus series
type promMirror struct {
	analyses        *prometheus.CounterVec
	analysisSeconds *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	conversions     *prometheus.CounterVec
	revenue         prometheus.Counter
	sessions        prometheus.Counter
	cacheRequests   *prometheus.CounterVec
	alerts          *prometheus.CounterVec
}

func newPromMirror(namespace string, reg prometheus.Registerer) *promMirror {
	m := &promMirror{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis calls by type and outcome.",
		}, []string{"type", "status"}),
		analysisSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Analysis latency by type.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120, 180},
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Pipeline errors by code and component.",
		}, []string{"code", "component"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Purchases attributed to a conversion strategy.",
		}, []string{"strategy", "variant"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_total",
			Help:      "Revenue from attributed purchases.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "User sessions started.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache reads by serving tier.",
		}, []string{"tier"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts triggered by name.",
		}, []string{"name"}),
	}
	reg.MustRegister(
		m.analyses, m.analysisSeconds, m.errors, m.conversions,
		m.revenue, m.sessions, m.cacheRequests, m.alerts,
	)
	return m
}
