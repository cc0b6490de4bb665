// Package mail provides the outbound email capability used by the step
// handlers. The production interface is a single Send; the simulated
// implementation models network latency and injectable transient failure so
// the retry and fault paths can be exercised end to end.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Sender delivers one email identified by kind (welcome, follow-up,
// welcome-package, engagement) to an address. Implementations may fail
// transiently; callers own retry.
type Sender interface {
	Send(ctx context.Context, kind, email string) error
}

// FailurePolicy decides whether a delivery attempt fails. The attempt
// number is 1-based and tracked per (kind, email) key.
type FailurePolicy interface {
	Fail(kind, email string, attempt int) error
}

// ──────────────────────────────────────────────────
// Simulated sender
// ──────────────────────────────────────────────────

// SimSender is an in-process Sender that sleeps a random latency and then
// consults its FailurePolicy. Attempt counts reset after the first
// successful delivery for a key, mirroring a flaky upstream that recovers.
type SimSender struct {
	policy  FailurePolicy
	logger  *slog.Logger
	minWait time.Duration
	maxWait time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

// SimOption configures a SimSender.
type SimOption func(*SimSender)

// WithLatency sets the simulated delivery latency range.
func WithLatency(min, max time.Duration) SimOption {
	return func(s *SimSender) {
		s.minWait = min
		s.maxWait = max
	}
}

// WithFailurePolicy sets the transient failure policy. Default is none.
func WithFailurePolicy(p FailurePolicy) SimOption {
	return func(s *SimSender) { s.policy = p }
}

// NewSimSender creates a simulated sender.
func NewSimSender(logger *slog.Logger, opts ...SimOption) *SimSender {
	s := &SimSender{
		logger:   logger,
		minWait:  100 * time.Millisecond,
		maxWait:  500 * time.Millisecond,
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sender = (*SimSender)(nil)

// Send simulates one delivery. Respects ctx during the latency sleep.
func (s *SimSender) Send(ctx context.Context, kind, email string) error {
	if err := s.sleep(ctx); err != nil {
		return err
	}

	key := kind + ":" + email
	s.mu.Lock()
	s.attempts[key]++
	attempt := s.attempts[key]
	s.mu.Unlock()

	if s.policy != nil {
		if err := s.policy.Fail(kind, email, attempt); err != nil {
			s.logger.Warn("simulated email failure",
				slog.String("kind", kind),
				slog.String("email", email),
				slog.Int("attempt", attempt),
			)
			return err
		}
	}

	s.logger.Info("email sent",
		slog.String("kind", kind),
		slog.String("email", email),
		slog.Int("attempt", attempt),
	)

	s.mu.Lock()
	delete(s.attempts, key)
	s.mu.Unlock()
	return nil
}

func (s *SimSender) sleep(ctx context.Context) error {
	if s.maxWait <= 0 {
		return nil
	}
	d := s.minWait
	if s.maxWait > s.minWait {
		d += rand.N(s.maxWait - s.minWait)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Failure policies
// ──────────────────────────────────────────────────

// FailFirstN fails the first N attempts for every (kind, email) key and
// succeeds from attempt N+1 on. Per-kind overrides adjust N for specific
// kinds. A deterministic stand-in for a transiently unavailable provider.
type FailFirstN struct {
	N       int
	PerKind map[string]int
}

var _ FailurePolicy = (*FailFirstN)(nil)

// Fail implements FailurePolicy.
func (p *FailFirstN) Fail(kind, email string, attempt int) error {
	n := p.N
	if override, ok := p.PerKind[kind]; ok {
		n = override
	}
	if attempt <= n {
		return fmt.Errorf("mail: %s delivery temporarily unavailable for %s", kind, email)
	}
	return nil
}
