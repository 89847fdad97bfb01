package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ChatRequests      *prometheus.CounterVec
	Classifications   *prometheus.CounterVec
	Extractions       *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	PersistErrors     *prometheus.CounterVec
	NewsItems         *prometheus.CounterVec
	NewsRefreshes     *prometheus.CounterVec
	GenerateLatency   prometheus.Histogram
	ScrapeLatency     prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	latencyBuckets := []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 12000}
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_ws_connections",
			Help:      "Number of open chat websocket connections.",
		}),
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat replies by transport and reply source.",
		}, []string{"transport", "source"}),
		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classified messages by category.",
		}, []string{"category"}),
		Extractions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Champion extraction outcomes.",
		}, []string{"outcome", "cached"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream errors by provider and code.",
		}, []string{"provider", "code"}),
		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed store writes by collection.",
		}, []string{"collection"}),
		NewsItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "news_items_added_total",
			Help:      "Newly stored headlines by source.",
		}, []string{"source"}),
		NewsRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "news_refreshes_total",
			Help:      "News refresh runs by result.",
		}, []string{"result"}),
		GenerateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_latency_ms",
			Help:      "Language model call latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		ScrapeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_latency_ms",
			Help:      "Champion page fetch latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		stages: newStageWindow(512),
	}
}

func (m *Metrics) ObserveChat(transport, source string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(transport, source).Inc()
}

func (m *Metrics) ObserveClassification(category string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveExtraction(outcome string, cached bool, d time.Duration) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(outcome, strconv.FormatBool(cached)).Inc()
	if !cached {
		m.ScrapeLatency.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) ObserveGenerate(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerateLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObservePersistError(collection string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(collection).Inc()
}

func (m *Metrics) ObserveNewsRefresh(result string, addedBySource map[string]int) {
	if m == nil {
		return
	}
	m.NewsRefreshes.WithLabelValues(result).Inc()
	for source, n := range addedBySource {
		if n > 0 {
			m.NewsItems.WithLabelValues(source).Add(float64(n))
		}
	}
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveStage records one latency sample for a request stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

// SnapshotStages returns rolling latency stats for each request stage.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return newStageWindow(0).Snapshot()
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
