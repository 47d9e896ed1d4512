package engine

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the engine updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	bidsAccepted    prometheus.Counter
	bidsRejected    *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	paymentFailures prometheus.Counter
	finalizations   *prometheus.CounterVec
	ledgerTotal     prometheus.Gauge
	commissionPool  prometheus.Gauge
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bidsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_bids_accepted_total",
			Help: "Number of accepted bids",
		}),
		bidsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_bids_rejected_total",
			Help: "Number of rejected bids by rejection code",
		}, []string{"code"}),
		payouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_payouts_total",
			Help: "Number of completed payouts by notification kind",
		}, []string{"kind"}),
		paymentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "auction_payment_failures_total",
			Help: "Number of failed transfer attempts that were compensated",
		}),
		finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auction_finalizations_total",
			Help: "Number of Active to Ended transitions by notification kind",
		}, []string{"kind"}),
		ledgerTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auction_refund_ledger_total",
			Help: "Sum of all refundable ledger entries",
		}),
		commissionPool: factory.NewGauge(prometheus.GaugeOpts{
			Name: "auction_commission_pool",
			Help: "Commission accumulated and not yet claimed by the owner",
		}),
	}
}

func (m *Metrics) bidAccepted() {
	if m == nil {
		return
	}
	m.bidsAccepted.Inc()
}

func (m *Metrics) bidRejected(code string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) payout(kind NotificationKind) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) paymentFailed() {
	if m == nil {
		return
	}
	m.paymentFailures.Inc()
}

func (m *Metrics) finalized(kind NotificationKind) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) balances(ledgerTotal, commissionPool *uint256.Int) {
	if m == nil {
		return
	}
	m.ledgerTotal.Set(toFloat(ledgerTotal))
	m.commissionPool.Set(toFloat(commissionPool))
}

func toFloat(x *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}

func formatAmount(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}
