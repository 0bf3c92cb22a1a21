package mocks

import (
	"sync"
	"time"

	"github.com/user/vidshrink/pkg/ports"
)

// AttemptObservation records one ObserveAttempt call.
type AttemptObservation struct {
	Method  string
	Outcome string
	Elapsed time.Duration
}

// Metrics is a mock implementation of ports.Metrics.
type Metrics struct {
	mu       sync.Mutex
	Attempts []AttemptObservation
	Results  []bool
	Ratios   []float64
}

func (m *Metrics) ObserveAttempt(method, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, AttemptObservation{Method: method, Outcome: outcome, Elapsed: elapsed})
}

func (m *Metrics) ObserveResult(method string, success bool, ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results = append(m.Results, success)
	m.Ratios = append(m.Ratios, ratio)
}

// Outcomes returns the attempt outcomes in order.
func (m *Metrics) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Attempts))
	for i, a := range m.Attempts {
		out[i] = a.Outcome
	}
	return out
}

var _ ports.Metrics = (*Metrics)(nil)
