package sessionflow

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sessionflow"

// Metrics holds the Prometheus collectors of the controller and the HTTP
// layer. A nil *Metrics records nothing.
type Metrics struct {
	FlowTotal       *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FlowTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flow_total",
				Help:      "Session flow outcomes",
			},
			[]string{"flow", "result"}, // result=success/failure/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		reg: reg,
	}
}

// ObserveFlow counts one flow outcome.
func (m *Metrics) ObserveFlow(flow, result string) {
	if m == nil {
		return
	}
	m.FlowTotal.WithLabelValues(flow, result).Inc()
}

// ObserveRequest records an HTTP request duration.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) registerAuditDropped(dropped func() uint64) {
	if m == nil || m.reg == nil {
		return
	}
	promauto.With(m.reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_dropped_total",
			Help:      "Audit events dropped because the dispatch buffer was full",
		},
		func() float64 { return float64(dropped()) },
	)
}
