package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram

	// Stream metrics
	ChunksSentTotal *prometheus.CounterVec
	AudioBytesTotal prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered on
// a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicepipe"
	}

	registry := prometheus.NewRegistry()

	connectionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Currently connected WebSocket clients",
	})

	connectionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Total WebSocket client connections",
	})

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Conversation turn duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	chunksSentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Stream chunks sent to clients by kind",
		},
		[]string{"kind"},
	)

	audioBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Total synthesized audio bytes sent to clients",
	})

	registry.MustRegister(
		connectionsActive,
		connectionsTotal,
		turnsTotal,
		turnDuration,
		chunksSentTotal,
		audioBytesTotal,
	)

	return &Metrics{
		registry:          registry,
		ConnectionsActive: connectionsActive,
		ConnectionsTotal:  connectionsTotal,
		TurnsTotal:        turnsTotal,
		TurnDuration:      turnDuration,
		ChunksSentTotal:   chunksSentTotal,
		AudioBytesTotal:   audioBytesTotal,
	}
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(outcome string, started time.Time) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(time.Since(started).Seconds())
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
