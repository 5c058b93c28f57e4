package api

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eugenenazirov/layerconf/internal/resolver"
)

var (
	metricResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerconf",
		Name:      "resolutions_total",
		Help:      "Resolutions served, by rule set and outcome.",
	}, []string{"ruleset", "outcome"})
	metricResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "layerconf",
		Name:      "resolution_duration_seconds",
		Help:      "Time spent computing effective configurations.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
	})
	metricValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerconf",
		Name:      "ruleset_validation_failures_total",
		Help:      "Rule sets rejected at upload, by reason.",
	}, []string{"reason"})
	metricThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "layerconf",
		Name:      "throttled_requests_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)

func observeResolution(ruleSet string, elapsed time.Duration, err error) {
	metricResolutionDuration.Observe(elapsed.Seconds())
	metricResolutions.WithLabelValues(ruleSet, outcome(err)).Inc()
}

func recordValidationFailure(err error) {
	metricValidationFailures.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, resolver.ErrInvalidLayer):
		return "invalid_layer"
	case errors.Is(err, resolver.ErrMalformedPattern):
		return "malformed_pattern"
	case errors.Is(err, resolver.ErrInvalidPredicate):
		return "invalid_predicate"
	case errors.Is(err, resolver.ErrCyclicReference):
		return "cyclic_reference"
	case errors.Is(err, resolver.ErrUnknownReference):
		return "unknown_reference"
	default:
		return "error"
	}
}
