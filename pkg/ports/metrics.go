package ports

import "time"

// Metrics receives pipeline observations.
type Metrics interface {
	// ObserveAttempt records one ladder attempt.
	ObserveAttempt(method, outcome string, elapsed time.Duration)

	// ObserveResult records a finished pipeline run. ratio is 0 on failure.
	ObserveResult(method string, success bool, ratio float64)
}
