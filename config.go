package newsletter

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the onboarding app.
type Config struct {
	// Consumers is the number of concurrent bus consumer goroutines.
	Consumers int `env:"NEWSLETTER_CONSUMERS"`

	// QueueSize is the capacity of the in-process delivery queue.
	// Publish blocks when the queue is full.
	QueueSize int `env:"NEWSLETTER_QUEUE_SIZE"`

	// ImmediateRetries is how many times a failed consumer invocation is
	// retried without delay before interval retries begin.
	ImmediateRetries int `env:"NEWSLETTER_IMMEDIATE_RETRIES"`

	// IntervalRetries is how many fixed-interval retries follow the
	// immediate ones. After these are exhausted the message is routed to
	// the dead letter queue.
	IntervalRetries int `env:"NEWSLETTER_INTERVAL_RETRIES"`

	// RetryInterval is the delay between interval retries.
	RetryInterval time.Duration `env:"NEWSLETTER_RETRY_INTERVAL"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `env:"NEWSLETTER_SHUTDOWN_TIMEOUT"`

	// EngagementEmailDelay is how far in the future the engagement email
	// is scheduled once the welcome package has been sent.
	EngagementEmailDelay time.Duration `env:"NEWSLETTER_ENGAGEMENT_DELAY"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Consumers:            10,
		QueueSize:            1024,
		ImmediateRetries:     2,
		IntervalRetries:      3,
		RetryInterval:        5 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		EngagementEmailDelay: 7 * 24 * time.Hour,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by NEWSLETTER_* environment
// variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("newsletter: parse env config: %w", err)
	}
	return cfg, nil
}

// MaxAttempts returns the total number of consumer invocations allowed per
// message delivery: the first attempt plus all retries.
func (c Config) MaxAttempts() int {
	return 1 + c.ImmediateRetries + c.IntervalRetries
}
