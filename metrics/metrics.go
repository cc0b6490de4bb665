// Package metrics defines the metrics recorder injected into the saga
// engines and step handlers. Recording is a pure side-channel: it never
// affects saga correctness, and tests substitute the in-memory or no-op
// implementation.
package metrics

import "time"

// Recorder receives state-transition, fault, and duration observations.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// SagaTransition records one state transition for the named saga.
	SagaTransition(saga, from, to string)
	// SagaFault records one fault observed while in the given state.
	SagaFault(saga, state, reason string)
	// SagaCompleted records the end-to-end duration of a completed saga.
	SagaCompleted(saga string, elapsed time.Duration)
	// StepSucceeded records a successful step execution and its duration.
	StepSucceeded(step string, elapsed time.Duration)
	// StepFailed records a failed step execution.
	StepFailed(step, reason string)
}

// Noop is a Recorder that discards all observations.
type Noop struct{}

// NewNoop returns a no-op recorder.
func NewNoop() Noop { return Noop{} }

func (Noop) SagaTransition(_, _, _ string)           {}
func (Noop) SagaFault(_, _, _ string)                {}
func (Noop) SagaCompleted(_ string, _ time.Duration) {}
func (Noop) StepSucceeded(_ string, _ time.Duration) {}
func (Noop) StepFailed(_, _ string)                  {}
