package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Acquisition outcomes used as the "outcome" label.
const (
	OutcomeAcquired      = "acquired"
	OutcomeAlreadyOwned  = "already_owned"
	OutcomeSkipped       = "skipped"
	OutcomeInsufficient  = "insufficient_funds"
	OutcomeDeliveryError = "delivery_failed"
	OutcomeError         = "error"
)

// Metrics holds the Prometheus business metrics of the engine. Each
// instance owns its registry so tests and multiple engines never collide.
type Metrics struct {
	registry *prometheus.Registry

	Acquisitions      *prometheus.CounterVec
	Serves            prometheus.Counter
	SatsSpent         prometheus.Counter
	SatsEarned        prometheus.Counter
	DiscoveryDuration *prometheus.HistogramVec
	ToolCalls         *prometheus.CounterVec
}

// NewMetrics creates and registers all engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Acquisitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "path402_acquisitions_total",
				Help: "Acquisition attempts by outcome",
			},
			[]string{"outcome"},
		),
		Serves: f.NewCounter(prometheus.CounterOpts{
			Name: "path402_serves_total",
			Help: "Serve events recorded",
		}),
		SatsSpent: f.NewCounter(prometheus.CounterOpts{
			Name: "path402_sats_spent_total",
			Help: "Satoshis debited for acquisitions",
		}),
		SatsEarned: f.NewCounter(prometheus.CounterOpts{
			Name: "path402_sats_earned_total",
			Help: "Satoshis credited for serving",
		}),
		DiscoveryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "path402_discovery_duration_seconds",
				Help:    "Duration of discovery calls",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"result"},
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "path402_tool_calls_total",
				Help: "Tool gateway calls by tool and status",
			},
			[]string{"tool", "status"},
		),
	}
}

// RecordAcquisition counts one attempt and, when acquired, the sats spent.
func (m *Metrics) RecordAcquisition(outcome string, spent int64) {
	m.Acquisitions.WithLabelValues(outcome).Inc()
	if spent > 0 {
		m.SatsSpent.Add(float64(spent))
	}
}

// RecordServe counts one serve and its revenue.
func (m *Metrics) RecordServe(revenue int64) {
	m.Serves.Inc()
	if revenue > 0 {
		m.SatsEarned.Add(float64(revenue))
	}
}

// ObserveDiscovery has the shape of a discovery observer.
func (m *Metrics) ObserveDiscovery(_ string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DiscoveryDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordToolCall counts one gateway call.
func (m *Metrics) RecordToolCall(tool string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// Registry exposes the private registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
