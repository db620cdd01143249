package metrics

import (
	"time"
)

// RecordRefresh records a token refresh call consistently
// result: "success", "denied" (server rejected the refresh credential) or "error"
func RecordRefresh(result string, duration time.Duration) {
	RefreshCalls.WithLabelValues(result).Inc()
	RefreshDuration.Observe(float64(duration.Milliseconds()))
}

// RecordOutcome records the terminal recovery state of one request
func RecordOutcome(state string) {
	RecoveryOutcomes.WithLabelValues(state).Inc()
}

// RecordSessionEnded records a session-ended event
func RecordSessionEnded(reason string) {
	SessionsEnded.WithLabelValues(reason).Inc()
}

// RecordPoll records one dashboard poll; err is nil on success
func RecordPoll(efficiency, downtime float64, err error) {
	if err != nil {
		PollFetches.WithLabelValues("error").Inc()
		return
	}
	PollFetches.WithLabelValues("success").Inc()
	PredictionEfficiency.Set(efficiency)
	PredictionDowntime.Set(downtime)
}
