package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
	resultStale = "stale"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_cache_requests_total",
	Help: "Cache lookups by result.",
}, []string{"result"})
