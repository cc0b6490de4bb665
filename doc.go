// Package newsletter provides an event-driven subscriber onboarding engine.
//
// A subscriber is created, then a sequence of downstream steps executes in
// order: welcome and follow-up emails in the basic workflow; profile
// completion, preference selection, welcome-package delivery, and
// engagement-email scheduling in the advanced one. Each step's success or
// fault event advances a durable per-subscriber state machine.
//
// The moving parts:
//
//   - saga: the generic state-machine engine and the saga store contract
//     (optimistic-concurrency read-modify-write plus a persisted outbox).
//   - onboarding: the two concrete workflows (basic and advanced) as
//     transition tables, and their command/event records.
//   - steps: stateless handlers that consume one command, perform one unit
//     of work, and publish exactly one success or fault event.
//   - bus: in-process at-least-once publish/subscribe with per-consumer
//     retry policies and dead-letter routing.
//   - store: saga and DLQ persistence backends (memory, sqlite, redis).
//   - app: wires everything together behind a single Start/Stop lifecycle.
//
// The engine guarantees exactly-once state progression under at-least-once
// delivery: instance creation is idempotent, step results apply at most
// once, terminal states absorb residual events, and every transition
// persists its outgoing messages together with the new state before they
// are delivered.
package newsletter
