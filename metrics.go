package identify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	identifyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partfinder",
		Name:      "identify_requests_total",
		Help:      "Identification requests by outcome.",
	}, []string{"outcome"})

	validationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partfinder",
		Name:      "validation_results_total",
		Help:      "Candidate validation verdicts by reason.",
	}, []string{"reason"})

	validationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partfinder",
		Name:      "validation_cache_hits_total",
		Help:      "Validation results served from the TTL store.",
	})

	validationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partfinder",
		Name:      "validation_cache_misses_total",
		Help:      "Validation results that required a fresh computation.",
	})

	capabilityDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partfinder",
		Name:      "capability_request_duration_seconds",
		Help:      "Latency of external capability calls.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"capability"})

	sourcingShapes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partfinder",
		Name:      "sourcing_answer_shapes_total",
		Help:      "Recognized response shapes of search answers.",
	}, []string{"shape"})
)
