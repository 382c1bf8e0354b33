// Package metrics exposes Prometheus collectors for prediction and post
// retrieval.
//
// Usage:
//
//	metrics.RecordPrediction("INTJ", 12*time.Millisecond)
//	metrics.RecordFetch("supabase", 7, nil)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	// PredictionsTotal counts successful predictions by decoded label.
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_predictions_total",
			Help: "Total number of predictions by label",
		},
		[]string{"label"},
	)

	// PredictionDuration tracks end-to-end latency of a single prediction.
	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "persona_prediction_duration_seconds",
			Help:    "Duration of a single stacked prediction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// StageFailuresTotal counts prediction failures by pipeline stage.
	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_stage_failures_total",
			Help: "Total number of prediction failures by stage",
		},
		[]string{"stage"},
	)

	// PostsFetchedTotal counts posts returned by the post store.
	PostsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_posts_fetched_total",
			Help: "Total number of posts retrieved from the store",
		},
		[]string{"store"},
	)

	// FetchFailuresTotal counts failed post retrievals.
	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_fetch_failures_total",
			Help: "Total number of failed post retrievals",
		},
		[]string{"store"},
	)

	// BreakerState reports the post store circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "persona_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)
)

// RecordPrediction records a successful prediction.
func RecordPrediction(label string, d time.Duration) {
	PredictionsTotal.WithLabelValues(label).Inc()
	PredictionDuration.Observe(d.Seconds())
}

// RecordStageFailure records a prediction that failed in the named stage.
func RecordStageFailure(stage string) {
	StageFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordFetch records the outcome of one post retrieval.
func RecordFetch(store string, posts int, err error) {
	if err != nil {
		FetchFailuresTotal.WithLabelValues(store).Inc()
		return
	}
	PostsFetchedTotal.WithLabelValues(store).Add(float64(posts))
}

// RecordBreakerState records a circuit breaker transition.
func RecordBreakerState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	BreakerState.WithLabelValues(name).Set(v)
}
