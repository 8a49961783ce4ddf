package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "transport_requests_total",
		Help:      "Total requests sent to the torrent server by endpoint and status code.",
	}, []string{"endpoint", "status"})

	TransportRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "torrserve",
		Name:      "transport_request_duration_seconds",
		Help:      "Torrent server request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 15},
	}, []string{"endpoint"})

	RequestCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "request_cache_hits_total",
		Help:      "Total read requests answered from the request cache.",
	})

	RequestCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "request_cache_misses_total",
		Help:      "Total read requests forwarded to the server.",
	})

	NegotiationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "negotiations_total",
		Help:      "Total version probes by resulting protocol (v1, v2, unavailable).",
	}, []string{"protocol"})

	WaitPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "wait_polls_total",
		Help:      "Total status polls issued while waiting for torrent metadata.",
	})

	WakeReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "wake_reads_total",
		Help:      "Total background preload wake reads by outcome.",
	}, []string{"outcome"})

	PreloadNotStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrserve",
		Name:      "preload_not_started_total",
		Help:      "Total preload attempts that exhausted their retry budget.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TransportRequestsTotal,
		TransportRequestDuration,
		RequestCacheHitsTotal,
		RequestCacheMissesTotal,
		NegotiationsTotal,
		WaitPollsTotal,
		WakeReadsTotal,
		PreloadNotStartedTotal,
	)
}
