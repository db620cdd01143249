package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend API Metrics
var (
	// APICalls tracks calls to the backend
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_api_calls_total",
			Help: "Total backend API calls by method, route (normalized path), and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	// APIDuration tracks backend latency
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "prodpro_api_duration_ms",
			Help:                            "Backend API call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)

	// APIErrors tracks failed backend calls
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_api_errors_total",
			Help: "Total backend API errors by route and error type",
		},
		[]string{"route", "error_type"},
	)
)

// Session Pipeline Metrics
var (
	// RecoveryOutcomes tracks the terminal state of every request through the auth pipeline
	RecoveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_recovery_outcomes_total",
			Help: "Terminal recovery state per request (ok, retried_ok, retried_failed, refresh_denied)",
		},
		[]string{"state"},
	)

	// RefreshCalls tracks token refresh calls
	RefreshCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_refresh_calls_total",
			Help: "Total token refresh calls by result",
		},
		[]string{"result"},
	)

	// RefreshDuration tracks token refresh latency
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:                            "prodpro_refresh_duration_ms",
			Help:                            "Token refresh duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
	)

	// RefreshShared tracks callers that waited on a refresh started by another request
	RefreshShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prodpro_refresh_shared_total",
			Help: "Total requests that reused an in-flight refresh instead of issuing their own",
		},
	)

	// SessionsEnded tracks session-ended events
	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_sessions_ended_total",
			Help: "Total session-ended events by reason",
		},
		[]string{"reason"},
	)
)

// Monitor Metrics
var (
	// PredictionEfficiency tracks the last reported efficiency
	PredictionEfficiency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prodpro_prediction_efficiency",
			Help: "Last efficiency percentage reported by the prediction endpoint",
		},
	)

	// PredictionDowntime tracks the last reported downtime probability
	PredictionDowntime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prodpro_prediction_downtime_probability",
			Help: "Last downtime probability percentage reported by the prediction endpoint",
		},
	)

	// PollFetches tracks dashboard poll attempts
	PollFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodpro_poll_fetches_total",
			Help: "Total prediction poll fetches by status",
		},
		[]string{"status"},
	)
)
