package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/metrics"
)

// Publisher delivers staged outbox envelopes. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
}

// casRetries bounds the read-evaluate-write loop under contention. A loss
// means another event for the same instance won the race; after the bound
// the error propagates and the transport's retry policy redelivers.
const casRetries = 10

// Engine interprets one workflow Definition against a Store. It is safe
// for concurrent use: per-instance serialization comes from the store's
// compare-and-update, not from engine-level locking, so many instances
// progress fully in parallel.
type Engine[T any] struct {
	def      *Definition[T]
	store    Store[T]
	registry *message.Registry
	pub      Publisher
	rec      metrics.Recorder
	logger   *slog.Logger
}

// NewEngine creates an engine for the given workflow definition.
func NewEngine[T any](
	def *Definition[T],
	store Store[T],
	registry *message.Registry,
	pub Publisher,
	rec metrics.Recorder,
	logger *slog.Logger,
) *Engine[T] {
	return &Engine[T]{
		def:      def,
		store:    store,
		registry: registry,
		pub:      pub,
		rec:      rec,
		logger:   logger,
	}
}

// Definition returns the workflow definition this engine interprets.
func (e *Engine[T]) Definition() *Definition[T] { return e.def }

// Handle consumes one envelope. It matches the bus Consumer signature.
//
// Unknown correlation, terminal instances, and events the current state
// does not expect are all observed-and-discarded, never errors: under
// unordered at-least-once delivery they are expected traffic. Only store
// failures and exhausted concurrency retries escape, so the bus retry
// policy redelivers the inbound event.
func (e *Engine[T]) Handle(ctx context.Context, env *message.Envelope) error {
	msg, err := e.registry.Decode(env)
	if err != nil {
		// Poison payloads cannot succeed on redelivery; drop them.
		e.logger.Warn("dropping undecodable message",
			slog.String("saga", e.def.Name),
			slog.String("message", env.Name),
			slog.String("message_id", env.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for range casRetries {
		done, err := e.evaluate(ctx, env, msg)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// Lost a compare-and-update race; re-read and re-evaluate.
	}

	return fmt.Errorf("saga %s: instance %s: gave up after %d write conflicts",
		e.def.Name, env.CorrelationID, casRetries)
}

// evaluate runs one read-evaluate-write cycle. It returns done=false when
// a concurrent writer invalidated the read and the cycle must re-run.
func (e *Engine[T]) evaluate(ctx context.Context, env *message.Envelope, msg message.Message) (bool, error) {
	rec, err := e.store.Get(ctx, env.CorrelationID)
	if errors.Is(err, newsletter.ErrInstanceNotFound) {
		return e.create(ctx, env, msg)
	}
	if err != nil {
		return false, fmt.Errorf("saga %s: get %s: %w", e.def.Name, env.CorrelationID, err)
	}

	if e.def.IsTerminal(rec.State) {
		e.logger.Debug("ignoring message for terminal instance",
			slog.String("saga", e.def.Name),
			slog.String("state", string(rec.State)),
			slog.String("message", env.Name),
			slog.String("correlation_id", env.CorrelationID.String()),
		)
		e.flush(ctx, rec)
		return true, nil
	}

	tr, ok := e.def.Lookup(rec.State, env.Name)
	if !ok {
		// Out-of-order or duplicate event for a state that does not
		// expect it. Defined edge case: observe and discard.
		e.logger.Debug("ignoring unexpected message for state",
			slog.String("saga", e.def.Name),
			slog.String("state", string(rec.State)),
			slog.String("message", env.Name),
			slog.String("correlation_id", env.CorrelationID.String()),
		)
		e.flush(ctx, rec)
		return true, nil
	}

	from := rec.State
	now := time.Now().UTC()

	if tr.Apply != nil {
		tr.Apply(rec.Data, msg, now)
	}
	rec.State = tr.To
	rec.UpdatedAt = now
	if tr.Complete {
		completed := now
		rec.CompletedAt = &completed
	}
	rec.Outbox = append(rec.Outbox, e.stage(tr, rec.Data, msg, now)...)

	ok, err = e.store.CompareAndUpdate(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("saga %s: update %s: %w", e.def.Name, env.CorrelationID, err)
	}
	if !ok {
		return false, nil
	}

	e.observe(tr, rec, from, msg, now)
	e.flush(ctx, rec)
	return true, nil
}

// create handles an event for an unknown correlation id. Only a transition
// out of Initial creates an instance; anything else is dropped.
func (e *Engine[T]) create(ctx context.Context, env *message.Envelope, msg message.Message) (bool, error) {
	tr, ok := e.def.Lookup(Initial, env.Name)
	if !ok {
		e.logger.Debug("dropping message for unknown instance",
			slog.String("saga", e.def.Name),
			slog.String("message", env.Name),
			slog.String("correlation_id", env.CorrelationID.String()),
		)
		return true, nil
	}

	now := time.Now().UTC()
	rec := &Record[T]{
		CorrelationID: env.CorrelationID,
		State:         tr.To,
		Data:          e.def.New(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tr.Apply != nil {
		tr.Apply(rec.Data, msg, now)
	}
	rec.Outbox = e.stage(tr, rec.Data, msg, now)

	created, err := e.store.CreateIfAbsent(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("saga %s: create %s: %w", e.def.Name, env.CorrelationID, err)
	}
	if !created {
		// Lost the creation race (or a duplicate trigger); re-read so
		// the existing instance decides what to do with this event.
		return false, nil
	}

	e.observe(tr, rec, Initial, msg, now)
	e.flush(ctx, rec)
	return true, nil
}

// stage wraps a transition's emitted messages into outbox envelopes.
func (e *Engine[T]) stage(tr Transition[T], data *T, msg message.Message, now time.Time) []*message.Envelope {
	if tr.Emit == nil {
		return nil
	}
	out := tr.Emit(data, msg, now)
	envs := make([]*message.Envelope, 0, len(out))
	for _, m := range out {
		envs = append(envs, message.MustWrap(m))
	}
	return envs
}

// observe records transition, fault, and completion metrics plus the
// transition log line.
func (e *Engine[T]) observe(tr Transition[T], rec *Record[T], from State, msg message.Message, now time.Time) {
	e.rec.SagaTransition(e.def.Name, string(from), string(rec.State))

	e.logger.Info("saga transitioned",
		slog.String("saga", e.def.Name),
		slog.String("correlation_id", rec.CorrelationID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(rec.State)),
		slog.String("message", msg.MessageName()),
	)

	if tr.Fault {
		reason := ""
		if f, ok := msg.(Faulter); ok {
			reason = f.FaultReason()
		}
		e.rec.SagaFault(e.def.Name, string(from), reason)
	}
	if tr.Complete {
		e.rec.SagaCompleted(e.def.Name, now.Sub(rec.CreatedAt))
	}
}

// flush delivers any staged outbox envelopes, then clears the outbox with a
// compare-and-update. Publish-then-clear gives at-least-once semantics: if
// the clear loses a race or the process dies mid-flush, the next event for
// the instance re-flushes, and consumers tolerate the duplicate.
func (e *Engine[T]) flush(ctx context.Context, rec *Record[T]) {
	if len(rec.Outbox) == 0 {
		return
	}

	for _, env := range rec.Outbox {
		if err := e.pub.Publish(ctx, env); err != nil {
			e.logger.Error("outbox publish failed, leaving outbox staged",
				slog.String("saga", e.def.Name),
				slog.String("correlation_id", rec.CorrelationID.String()),
				slog.String("message", env.Name),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	cleared := rec.Clone()
	cleared.Outbox = nil
	ok, err := e.store.CompareAndUpdate(ctx, cleared)
	if err != nil {
		e.logger.Error("outbox clear failed",
			slog.String("saga", e.def.Name),
			slog.String("correlation_id", rec.CorrelationID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		// Another writer advanced the instance; it inherits the flush.
		return
	}
	rec.Outbox = nil
	rec.Version = cleared.Version
}
