// Package saga provides the durable state-machine engine that drives the
// onboarding workflows.
//
// A workflow is declared as data: a Definition holds a transition table
// mapping (state, message name) pairs to transitions, and a single engine
// interprets it. Each transition mutates the typed instance data, moves the
// instance to its next state, and stages outgoing messages in the record's
// outbox so that state and messages are persisted together before delivery.
//
// The engine owns all instance mutation. Step handlers never touch saga
// state; they only consume commands and emit events.
package saga

import (
	"time"

	"github.com/MrEshboboyev/newsletter/message"
)

// State is a workflow-specific state name.
type State string

// Initial is the implicit state of an instance that does not exist yet.
// A transition out of Initial is the only way an instance is created.
const Initial State = "Initial"

// Faulter is implemented by fault events that carry a failure reason.
type Faulter interface {
	FaultReason() string
}

// Transition is one row of a workflow's transition table.
type Transition[T any] struct {
	// To is the state the instance moves to.
	To State

	// Apply mutates the instance data from the decoded message. It must be
	// idempotent: a lost optimistic-concurrency race re-runs it against
	// freshly read data.
	Apply func(data *T, msg message.Message, now time.Time)

	// Emit returns the messages published with this transition. They are
	// staged in the record's outbox and persisted with the new state
	// before delivery. May be nil.
	Emit func(data *T, msg message.Message, now time.Time) []message.Message

	// Fault marks this transition as a fault path; the engine records a
	// fault metric with the reason from the triggering message.
	Fault bool

	// Complete marks this transition as finalizing the instance; the
	// engine stamps CompletedAt and records the end-to-end duration.
	Complete bool
}

// Definition declares one workflow: its name, instance factory, transition
// table, and terminal states.
type Definition[T any] struct {
	// Name identifies the workflow (used in logs and metrics).
	Name string

	// New returns a zero-value instance data struct.
	New func() *T

	// Transitions maps current state → message name → transition.
	// Rows out of Initial create instances.
	Transitions map[State]map[string]Transition[T]

	// TerminalStates absorb every workflow event without mutation.
	TerminalStates []State
}

// IsTerminal reports whether s is one of the workflow's terminal states.
func (d *Definition[T]) IsTerminal(s State) bool {
	for _, t := range d.TerminalStates {
		if t == s {
			return true
		}
	}
	return false
}

// Lookup returns the transition for (state, message name), if declared.
func (d *Definition[T]) Lookup(s State, msgName string) (Transition[T], bool) {
	row, ok := d.Transitions[s]
	if !ok {
		return Transition[T]{}, false
	}
	tr, ok := row[msgName]
	return tr, ok
}

// ConsumedMessages returns the distinct message names appearing anywhere in
// the transition table. This is the engine's subscription set.
func (d *Definition[T]) ConsumedMessages() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, row := range d.Transitions {
		for name := range row {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
