package metrics

import (
	"sync"
	"time"
)

// InMemory is a Recorder that aggregates observations into queryable maps.
// It backs monitoring read-paths and tests.
type InMemory struct {
	mu          sync.Mutex
	transitions map[string]int64 // "saga:from->to" → count
	faults      map[string]int64 // "saga:state" → count
	completions []time.Duration
	stepOK      map[string]int64
	stepFail    map[string]int64
}

// NewInMemory returns an empty in-memory recorder.
func NewInMemory() *InMemory {
	return &InMemory{
		transitions: make(map[string]int64),
		faults:      make(map[string]int64),
		stepOK:      make(map[string]int64),
		stepFail:    make(map[string]int64),
	}
}

// SagaTransition increments the (saga, from, to) counter.
func (m *InMemory) SagaTransition(saga, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[saga+":"+from+"->"+to]++
}

// SagaFault increments the (saga, state) fault counter.
func (m *InMemory) SagaFault(saga, state, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[saga+":"+state]++
}

// SagaCompleted records one completion duration sample.
func (m *InMemory) SagaCompleted(_ string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, elapsed)
}

// StepSucceeded increments the step success counter.
func (m *InMemory) StepSucceeded(step string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepOK[step]++
}

// StepFailed increments the step failure counter.
func (m *InMemory) StepFailed(step, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepFail[step]++
}

// TransitionCounts returns a copy of the transition counters, keyed
// "saga:from->to".
func (m *InMemory) TransitionCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.transitions))
	for k, v := range m.transitions {
		out[k] = v
	}
	return out
}

// FaultCounts returns a copy of the fault counters, keyed "saga:state".
func (m *InMemory) FaultCounts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.faults))
	for k, v := range m.faults {
		out[k] = v
	}
	return out
}

// Completions returns a copy of the recorded completion durations.
func (m *InMemory) Completions() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.completions))
	copy(out, m.completions)
	return out
}

// StepCounts returns copies of the per-step success and failure counters.
func (m *InMemory) StepCounts() (ok, failed map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok = make(map[string]int64, len(m.stepOK))
	for k, v := range m.stepOK {
		ok[k] = v
	}
	failed = make(map[string]int64, len(m.stepFail))
	for k, v := range m.stepFail {
		failed[k] = v
	}
	return ok, failed
}
