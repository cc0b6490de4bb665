package mail

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled wraps a Sender with a token-bucket rate limit, protecting a
// provider quota. Send blocks until a token is available or ctx ends.
type Throttled struct {
	next    Sender
	limiter *rate.Limiter
}

var _ Sender = (*Throttled)(nil)

// NewThrottled wraps next with a limit of perSecond sends and the given
// burst size.
func NewThrottled(next Sender, perSecond float64, burst int) *Throttled {
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send waits for rate-limit capacity, then delegates.
func (t *Throttled) Send(ctx context.Context, kind, email string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: rate limit wait: %w", err)
	}
	return t.next.Send(ctx, kind, email)
}
