package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions float64
	aucs        []float64
	rounds      int
	latencySum  float64
}

func (m *MockMetrics) PredictionsAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions += v
}

func (m *MockMetrics) AUCObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aucs = append(m.aucs, v)
}

func (m *MockMetrics) PermutationRoundsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds++
}

func (m *MockMetrics) PermutationLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}
