package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitelens_store_query_duration_seconds",
		Help:    "Event store query latency, including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	queryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitelens_store_query_failures_total",
		Help: "Event store queries that failed after retries.",
	}, []string{"query"})
)
