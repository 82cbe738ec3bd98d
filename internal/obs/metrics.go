package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions          = promauto.NewGauge(prometheus.GaugeOpts{Name: "unirelay_active_sessions", Help: "Currently open stream sessions"})
	RequestsTotal           = promauto.NewCounterVec(prometheus.CounterOpts{Name: "unirelay_requests_total", Help: "Embedded requests by result"}, []string{"result"})
	TunnelsTotal            = promauto.NewCounter(prometheus.CounterOpts{Name: "unirelay_tunnels_total", Help: "Tunnels established"})
	TunnelDurationSeconds   = promauto.NewHistogram(prometheus.HistogramOpts{Name: "unirelay_tunnel_duration_seconds", Help: "Tunnel lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	UpstreamDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "unirelay_upstream_duration_seconds", Help: "Upstream request latency", Buckets: prometheus.DefBuckets})
	ErrorsTotal             = promauto.NewCounterVec(prometheus.CounterOpts{Name: "unirelay_errors_total", Help: "Errors by type"}, []string{"type"})
)
