// Package bus provides the in-process event bus: at-least-once
// publish/subscribe with per-consumer retry policies, a shared worker pool,
// and dead-letter routing for deliveries that exhaust their retry budget.
//
// Delivery guarantees: every subscribed consumer receives each published
// envelope at least once while the process is running; redeliveries after a
// consumer error reuse the same envelope (same message id). The bus makes no
// ordering promise across different message names for the same correlation
// id; consumers must tolerate reordering and duplicates.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/backoff"
	"github.com/MrEshboboyev/newsletter/dlq"
	"github.com/MrEshboboyev/newsletter/message"
	mw "github.com/MrEshboboyev/newsletter/middleware"
)

// Consumer handles a delivered envelope. Returning an error triggers the
// subscription's retry policy; exhausting it routes the delivery to the DLQ.
type Consumer func(ctx context.Context, env *message.Envelope) error

// Subscription binds a named consumer to a set of message names.
type Subscription struct {
	// Name uniquely identifies the consumer (used in logs, metrics, DLQ).
	Name string
	// Messages are the message names this consumer receives.
	Messages []string
	// Handler is invoked once per delivery attempt.
	Handler Consumer
	// MaxAttempts caps total invocations per delivery. Zero uses the
	// bus default.
	MaxAttempts int
	// Backoff computes the delay before each retry. Nil uses the bus
	// default.
	Backoff backoff.Strategy
}

// delivery is one queued (envelope, subscription) pair.
type delivery struct {
	sub     *Subscription
	env     *message.Envelope
	attempt int
}

// Bus is the in-process at-least-once transport.
type Bus struct {
	logger      *slog.Logger
	dlqService  *dlq.Service
	chain       mw.Middleware
	maxAttempts int
	bo          backoff.Strategy
	consumers   int
	queueSize   int

	mu      sync.Mutex
	subs    map[string][]*Subscription // message name → subscriptions
	started bool
	stopped bool

	queue  chan *delivery
	stopCh chan struct{}
	wg     sync.WaitGroup

	// timers tracks scheduled redeliveries so Stop can cancel them.
	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithConsumers sets the number of concurrent consumer goroutines.
func WithConsumers(n int) Option {
	return func(b *Bus) { b.consumers = n }
}

// WithQueueSize sets the delivery queue capacity. Publish blocks while the
// queue is full.
func WithQueueSize(n int) Option {
	return func(b *Bus) { b.queueSize = n }
}

// WithRetry sets the default per-delivery attempt cap and backoff strategy.
// Individual subscriptions may override both.
func WithRetry(maxAttempts int, bo backoff.Strategy) Option {
	return func(b *Bus) {
		b.maxAttempts = maxAttempts
		b.bo = bo
	}
}

// WithDLQ routes deliveries that exhaust their retry budget to the given
// dead letter service. Without it, exhausted deliveries are dropped with a
// warning.
func WithDLQ(s *dlq.Service) Option {
	return func(b *Bus) { b.dlqService = s }
}

// WithMiddleware sets the middleware chain applied around every consumer
// invocation.
func WithMiddleware(mws ...mw.Middleware) Option {
	return func(b *Bus) { b.chain = mw.Chain(mws...) }
}

// New creates a Bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:      logger,
		chain:       mw.Chain(),
		maxAttempts: 6,
		bo:          backoff.DefaultStrategy(),
		consumers:   10,
		queueSize:   1024,
		subs:        make(map[string][]*Subscription),
		stopCh:      make(chan struct{}),
		timers:      make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan *delivery, b.queueSize)
	return b
}

// Subscribe registers a subscription. Must be called before Start.
func (b *Bus) Subscribe(sub Subscription) error {
	if sub.Name == "" {
		return fmt.Errorf("bus: subscription requires a name")
	}
	if sub.Handler == nil {
		return fmt.Errorf("bus: subscription %q requires a handler", sub.Name)
	}
	if len(sub.Messages) == 0 {
		return fmt.Errorf("bus: subscription %q consumes no messages", sub.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("bus: subscribe %q after start", sub.Name)
	}

	s := sub
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = b.maxAttempts
	}
	if s.Backoff == nil {
		s.Backoff = b.bo
	}
	for _, name := range s.Messages {
		b.subs[name] = append(b.subs[name], &s)
	}
	return nil
}

// Publish enqueues the envelope for every subscribed consumer. It blocks
// while the delivery queue is full. Publishing a message name nobody
// consumes is logged and dropped, not an error; the saga engine treats
// residual messages the same way.
func (b *Bus) Publish(ctx context.Context, env *message.Envelope) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return newsletter.ErrBusClosed
	}
	subs := b.subs[env.Name]
	b.mu.Unlock()

	if len(subs) == 0 {
		b.logger.Warn("no consumer for message, dropping",
			slog.String("message", env.Name),
			slog.String("message_id", env.ID.String()),
		)
		return nil
	}

	for _, sub := range subs {
		d := &delivery{sub: sub, env: env, attempt: 1}
		if err := b.enqueue(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) enqueue(ctx context.Context, d *delivery) error {
	select {
	case b.queue <- d:
		return nil
	case <-b.stopCh:
		return newsletter.ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the consumer goroutines. It returns immediately.
func (b *Bus) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}
	b.started = true

	b.logger.Info("bus starting",
		slog.Int("consumers", b.consumers),
		slog.Int("queue_size", b.queueSize),
	)

	for range b.consumers {
		b.wg.Add(1)
		go b.consumeLoop()
	}
	return nil
}

// Stop signals all consumers to stop and waits for in-flight deliveries to
// finish or the context deadline to pass. Queued and scheduled deliveries
// are dropped; durable state is protected by the saga outbox, not by the
// in-process queue.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.stopped = true
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	b.logger.Info("bus stopping")
	close(b.stopCh)
	b.cancelTimers()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("bus stopped gracefully")
		return nil
	case <-ctx.Done():
		b.logger.Warn("bus shutdown timed out")
		return ctx.Err()
	}
}

// consumeLoop is run by each consumer goroutine.
func (b *Bus) consumeLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case d := <-b.queue:
			b.deliver(d)
		}
	}
}

// deliver runs one delivery attempt through the middleware chain and
// applies the subscription's retry policy on failure.
func (b *Bus) deliver(d *delivery) {
	ctx := context.Background()

	md := &message.Delivery{
		Consumer: d.sub.Name,
		Attempt:  d.attempt,
		Envelope: d.env,
	}
	err := b.chain(ctx, md, func(ctx context.Context) error {
		return d.sub.Handler(ctx, d.env)
	})
	if err == nil {
		return
	}

	if d.attempt >= d.sub.MaxAttempts {
		b.exhaust(ctx, d, err)
		return
	}

	next := &delivery{sub: d.sub, env: d.env, attempt: d.attempt + 1}
	delay := d.sub.Backoff.Delay(d.attempt)

	b.logger.Info("delivery scheduled for retry",
		slog.String("message", d.env.Name),
		slog.String("consumer", d.sub.Name),
		slog.Int("attempt", d.attempt),
		slog.Int("max_attempts", d.sub.MaxAttempts),
		slog.Duration("delay", delay),
	)

	if delay <= 0 {
		go func() { _ = b.enqueue(context.Background(), next) }()
		return
	}
	b.scheduleRetry(next, delay)
}

// exhaust routes a delivery whose retry budget is spent to the DLQ.
func (b *Bus) exhaust(ctx context.Context, d *delivery, deliveryErr error) {
	b.logger.Warn("delivery moved to DLQ after exhausting retries",
		slog.String("message", d.env.Name),
		slog.String("message_id", d.env.ID.String()),
		slog.String("consumer", d.sub.Name),
		slog.Int("attempts", d.attempt),
		slog.String("error", deliveryErr.Error()),
	)

	if b.dlqService == nil {
		return
	}
	if err := b.dlqService.Push(ctx, d.sub.Name, d.env, d.attempt, deliveryErr); err != nil {
		b.logger.Error("failed to push delivery to DLQ",
			slog.String("message_id", d.env.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bus) scheduleRetry(d *delivery, delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		b.timerMu.Lock()
		delete(b.timers, t)
		b.timerMu.Unlock()
		_ = b.enqueue(context.Background(), d)
	})

	b.timerMu.Lock()
	b.timers[t] = struct{}{}
	b.timerMu.Unlock()
}

func (b *Bus) cancelTimers() {
	b.timerMu.Lock()
	defer b.timerMu.Unlock()
	for t := range b.timers {
		t.Stop()
	}
	b.timers = make(map[*time.Timer]struct{})
}
