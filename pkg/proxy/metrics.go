package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skai_proxy_requests_total",
		Help: "Total proxy requests by status code",
	}, []string{"code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skai_proxy_request_duration_seconds",
		Help:    "Proxy request duration in seconds by status code",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"code"})

	upstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skai_upstream_calls_total",
		Help: "Total AI provider calls by result",
	}, []string{"result"}) // "ok", "error", "invalid", "rate_limited"

	upstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skai_upstream_duration_seconds",
		Help:    "AI provider call duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	upstreamSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skai_upstream_shared_total",
		Help: "Total requests that shared an in-flight upstream call",
	})
)
