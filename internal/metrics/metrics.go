package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_inbound_messages_total",
			Help: "Inbound messages by channel and final pipeline status",
		},
		[]string{"channel", "status"},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_extraction_failures_total",
			Help: "Content extraction failures by content kind",
		},
		[]string{"kind"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mia_generation_duration_seconds",
			Help:    "Completion latency in seconds, pacing delay excluded",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_dispatch_total",
			Help: "Outbound sends by channel and result",
		},
		[]string{"channel", "result"},
	)

	Handoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_handoffs_total",
			Help: "Conversations transferred to a human operator",
		},
		[]string{"channel"},
	)

	DuplicateDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_duplicate_deliveries_total",
			Help: "Inbound deliveries dropped as repeats",
		},
		[]string{"channel"},
	)

	WebChatConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mia_webchat_connections",
			Help: "Number of open web chat sockets",
		},
	)
)

// DispatchResult maps a send outcome to its label value.
func DispatchResult(ok bool) string {
	if ok {
		return "sent"
	}
	return "failed"
}
