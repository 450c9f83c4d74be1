package agentmod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var admitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "agentmod_admit_duration_sec",
	Help: "Duration of admission checks",
}, []string{"action"})

var admitOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agentmod_admit_outcomes",
	Help: "Admission outcomes, by action type and rejection code ('allowed' or 'error' otherwise)",
}, []string{"action", "outcome"})

var moderationActionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agentmod_moderation_actions",
	Help: "Number of moderation actions taken",
}, []string{"axis", "kind"})

var persistErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agentmod_persist_errors",
	Help: "Number of failures writing moderation records, counters, or flags",
}, []string{"type"})

var contextCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agentmod_context_cache_lookups",
	Help: "Event context lookups from the context cache",
}, []string{"result"})
