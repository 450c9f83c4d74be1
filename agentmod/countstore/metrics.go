package countstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fallbackIncrements = promauto.NewCounter(prometheus.CounterOpts{
	Name: "agentmod_countstore_fallback_increments",
	Help: "Number of counter increments served by the local store after a shared store failure",
})

var bucketsSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "agentmod_countstore_buckets_swept",
	Help: "Number of expired in-process counter buckets removed",
})
