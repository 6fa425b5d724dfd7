// Package metrics exposes Prometheus collectors for the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pointshare"

// Metrics owns a private registry so tests can build independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	votes          *prometheus.CounterVec
	pointsVoted    prometheus.Counter
	transfers      *prometheus.CounterVec
	tokensIssued   *prometheus.CounterVec
	tokensEvicted  prometheus.Counter
	moderations    *prometheus.CounterVec
	droppedEffects *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	wsConnections  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "total",
			Help:      "Vote attempts by outcome.",
		}, []string{"outcome"}),
		pointsVoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "points_total",
			Help:      "Points moved by accepted votes.",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Ledger transfers by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "issued_total",
			Help:      "Credentials issued by kind.",
		}, []string{"kind"}),
		tokensEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "refresh_evicted_total",
			Help:      "Refresh tokens evicted by the per-account cap.",
		}),
		moderations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "transitions_total",
			Help:      "Image moderation transitions.",
		}, []string{"action"}),
		droppedEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "side_effects",
			Name:      "dropped_total",
			Help:      "Best-effort side effects that failed and were discarded.",
		}, []string{"kind"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of unary gRPC calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "code"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.votes, m.pointsVoted, m.transfers, m.tokensIssued, m.tokensEvicted,
		m.moderations, m.droppedEffects, m.rpcDuration, m.wsConnections,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) VoteOutcome(outcome string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PointsVoted(points float64) {
	if m == nil {
		return
	}
	m.pointsVoted.Add(points)
}

func (m *Metrics) TransferOutcome(outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CredentialIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) RefreshTokensEvicted(n int) {
	if m == nil {
		return
	}
	m.tokensEvicted.Add(float64(n))
}

func (m *Metrics) Moderation(action string) {
	if m == nil {
		return
	}
	m.moderations.WithLabelValues(action).Inc()
}

func (m *Metrics) SideEffectDropped(kind string) {
	if m == nil {
		return
	}
	m.droppedEffects.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}

func (m *Metrics) WebsocketOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WebsocketClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}
