package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/igefined/market-feed/internal/domain"
)

const namespace = "market"

var Module = fx.Module("metrics",
	fx.Provide(New),
)

// Metrics owns its registry so independent clients and tests never share
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	connectionState *prometheus.GaugeVec
	subscribers     *prometheus.GaugeVec
	degraded        *prometheus.GaugeVec
	reconnects      *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	ticks           *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Streaming connection state per symbol (0 disconnected, 1 connecting, 2 connected).",
		}, []string{"symbol"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Active subscribers per symbol.",
		}, []string{"symbol"}),
		degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degraded",
			Help:      "1 when a symbol is served by polling instead of streaming.",
		}, []string{"symbol"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Scheduled streaming reconnect attempts.",
		}, []string{"symbol"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed REST snapshot fetches.",
		}, []string{"symbol"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Streaming ticks merged into snapshots.",
		}, []string{"symbol"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionState,
		m.subscribers,
		m.degraded,
		m.reconnects,
		m.fetchErrors,
		m.ticks,
		m.cacheLookups,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetConnectionState(symbol string, state domain.ConnectionState) {
	m.connectionState.WithLabelValues(symbol).Set(float64(state))
}

func (m *Metrics) SetSubscribers(symbol string, n int) {
	m.subscribers.WithLabelValues(symbol).Set(float64(n))
}

func (m *Metrics) SetDegraded(symbol string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	m.degraded.WithLabelValues(symbol).Set(v)
}

func (m *Metrics) Reconnect(symbol string) {
	m.reconnects.WithLabelValues(symbol).Inc()
}

func (m *Metrics) FetchFailed(symbol string) {
	m.fetchErrors.WithLabelValues(symbol).Inc()
}

func (m *Metrics) Tick(symbol string) {
	m.ticks.WithLabelValues(symbol).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Forget drops the per-symbol gauges once a symbol has no subscribers.
func (m *Metrics) Forget(symbol string) {
	m.connectionState.DeleteLabelValues(symbol)
	m.subscribers.DeleteLabelValues(symbol)
	m.degraded.DeleteLabelValues(symbol)
}
