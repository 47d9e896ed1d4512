package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts handled requests and rejected connections. A nil *Metrics is valid.
type Metrics struct {
	requests *prometheus.CounterVec
	rejected prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_requests_total",
			Help: "Number of handled requests by type and outcome",
		}, []string{"type", "outcome"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_connections_rejected_total",
			Help: "Number of connections closed because every worker was busy",
		}),
	}
}

func (m *Metrics) request(reqType, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(reqType, outcome).Inc()
}

func (m *Metrics) connectionRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
