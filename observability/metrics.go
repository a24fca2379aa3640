package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics holds the collectors describing extrinsic traffic and
// the state of the vaults.
type ProtocolMetrics struct {
	extrinsics   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	issued       *prometheus.GaugeVec
	height       prometheus.Gauge
}

var (
	protocolMetricsOnce sync.Once
	protocolRegistry    *ProtocolMetrics
)

// Protocol returns the lazily-initialised protocol metrics registry.
func Protocol() *ProtocolMetrics {
	protocolMetricsOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			extrinsics: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultbridge",
				Name:      "extrinsic_total",
				Help:      "Extrinsics dispatched segmented by module, call and outcome.",
			}, []string{"module", "call", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vaultbridge",
				Name:      "extrinsic_duration_seconds",
				Help:      "Execution time of extrinsics including state rollback.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "call"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vaultbridge",
				Name:      "liquidations_total",
				Help:      "Vault liquidations segmented by currency pair.",
			}, []string{"pair"}),
			issued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "vaultbridge",
				Name:      "issued_tokens",
				Help:      "Wrapped tokens issued by vaults of a currency pair after the last committed block.",
			}, []string{"pair"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vaultbridge",
				Name:      "block_height",
				Help:      "Height of the last committed block.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.extrinsics,
			protocolRegistry.latency,
			protocolRegistry.liquidations,
			protocolRegistry.issued,
			protocolRegistry.height,
		)
	})
	return protocolRegistry
}

// ObserveExtrinsic records the outcome of one dispatched call.
func (m *ProtocolMetrics) ObserveExtrinsic(module, call string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.extrinsics.WithLabelValues(module, call, outcome).Inc()
	m.latency.WithLabelValues(module, call).Observe(elapsed.Seconds())
}

// RecordLiquidation counts a liquidated vault of pair.
func (m *ProtocolMetrics) RecordLiquidation(pair string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(pair).Inc()
}

// SetIssued publishes the issued token total of pair.
func (m *ProtocolMetrics) SetIssued(pair string, amount float64) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(pair).Set(amount)
}

// SetHeight publishes the committed block height.
func (m *ProtocolMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
