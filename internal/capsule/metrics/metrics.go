package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "timevault/pkg/domain-errors"
)

// Metrics holds Prometheus metrics for the capsule ledger and its relay.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Operations     *prometheus.CounterVec
	TxDuration     *prometheus.HistogramVec
	RegistryTotal  prometheus.Gauge
	RelayPublished prometheus.Counter
	RelayFailures  prometheus.Counter
}

// New registers capsule metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timevault_capsule_operations_total",
			Help: "Capsule lifecycle operations by operation and outcome (ok or error code)",
		}, []string{"operation", "outcome"}),
		TxDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timevault_capsule_tx_duration_seconds",
			Help:    "Duration of ledger transactions by operation",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		RegistryTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timevault_registry_total_capsules",
			Help: "Registry counter as of the last committed creation",
		}),
		RelayPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "timevault_relay_published_total",
			Help: "Outbox events published to Kafka",
		}),
		RelayFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "timevault_relay_failures_total",
			Help: "Outbox drain attempts that failed and left rows pending",
		}),
	}
}

// ObserveOperation records the outcome and transaction time of one operation.
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.TxDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetRegistryTotal sets the registry counter gauge.
func (m *Metrics) SetRegistryTotal(total uint64) {
	if m == nil {
		return
	}
	m.RegistryTotal.Set(float64(total))
}

// AddRelayPublished adds n published events.
func (m *Metrics) AddRelayPublished(n int) {
	if m == nil {
		return
	}
	m.RelayPublished.Add(float64(n))
}

// IncRelayFailures increments the relay failure counter.
func (m *Metrics) IncRelayFailures() {
	if m == nil {
		return
	}
	m.RelayFailures.Inc()
}
