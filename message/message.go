// Package message defines the immutable command and event records exchanged
// over the bus, the Envelope that carries them, and the Registry that maps
// wire names back to concrete types.
//
// Commands request work; events report outcomes. Both carry the subscriber
// id used to correlate them to a saga instance.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEshboboyev/newsletter/id"
)

// Message is implemented by every command and event payload.
type Message interface {
	// MessageName returns the stable wire name, e.g. "SubscriberCreated".
	MessageName() string
	// Correlation returns the subscriber id used to route the message
	// to its saga instance.
	Correlation() id.SubscriberID
}

// Envelope wraps a serialized Message for transport and persistence.
// Envelopes are value objects: once published they are never mutated.
type Envelope struct {
	ID            id.MessageID    `json:"id"`
	Name          string          `json:"name"`
	CorrelationID id.SubscriberID `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Wrap serializes a Message into a new Envelope with a fresh message id.
func Wrap(msg Message) (*Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("message: marshal %q: %w", msg.MessageName(), err)
	}

	return &Envelope{
		ID:            id.NewMessageID(),
		Name:          msg.MessageName(),
		CorrelationID: msg.Correlation(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// MustWrap is like Wrap but panics on marshal failure. Message payloads are
// plain structs of strings, ids, and times, so a failure is a programming
// error.
func MustWrap(msg Message) *Envelope {
	env, err := Wrap(msg)
	if err != nil {
		panic(err)
	}
	return env
}
