package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitelens_cache_hits_total",
		Help: "Result cache hits.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitelens_cache_misses_total",
		Help: "Result cache misses.",
	})
	sharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitelens_cache_singleflight_shared_total",
		Help: "Computations whose result was shared with concurrent callers.",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitelens_cache_evictions_total",
		Help: "Entries evicted by the bounded-capacity policy.",
	})
)
