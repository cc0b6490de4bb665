package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEshboboyev/newsletter"
	"github.com/MrEshboboyev/newsletter/message"
	"github.com/MrEshboboyev/newsletter/onboarding"
)

// Publisher delivers the SubscriberCreated event. Satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
}

// Intake consumes SubscribeToNewsletter commands: it registers the
// subscriber and announces the creation, which triggers the onboarding
// workflows.
type Intake struct {
	registry Registry
	pub      Publisher
	logger   *slog.Logger
}

// NewIntake creates the intake consumer.
func NewIntake(registry Registry, pub Publisher, logger *slog.Logger) *Intake {
	return &Intake{registry: registry, pub: pub, logger: logger}
}

// Handle consumes one SubscribeToNewsletter envelope. It is idempotent
// under redelivery: an already-registered subscriber is not created again,
// but SubscriberCreated is re-published so a crash between create and
// publish cannot strand the subscription. The saga's idempotent create
// absorbs the duplicate.
func (i *Intake) Handle(ctx context.Context, env *message.Envelope) error {
	var cmd onboarding.SubscribeToNewsletter
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		i.logger.Warn("dropping undecodable subscription request",
			slog.String("message_id", env.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	sub := &Subscriber{
		ID:        cmd.SubscriberID,
		Email:     cmd.Email,
		CreatedAt: time.Now().UTC(),
	}
	err := i.registry.CreateSubscriber(ctx, sub)
	switch {
	case errors.Is(err, newsletter.ErrSubscriberExists):
		i.logger.Debug("subscriber already registered",
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("email", cmd.Email),
		)
	case err != nil:
		return fmt.Errorf("subscriber: create %s: %w", cmd.SubscriberID, err)
	default:
		i.logger.Info("subscriber registered",
			slog.String("subscriber_id", cmd.SubscriberID.String()),
			slog.String("email", cmd.Email),
		)
	}

	created := message.MustWrap(onboarding.SubscriberCreated{
		SubscriberID: cmd.SubscriberID,
		Email:        cmd.Email,
	})
	if err := i.pub.Publish(ctx, created); err != nil {
		return fmt.Errorf("subscriber: publish created event: %w", err)
	}
	return nil
}
