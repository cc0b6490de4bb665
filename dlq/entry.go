// Package dlq provides the dead letter queue for messages whose consumer
// exhausted its retry budget.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/MrEshboboyev/newsletter/id"
)

// Entry represents a message delivery that exhausted its retry budget and
// was moved to the dead letter queue for inspection or replay.
type Entry struct {
	ID            id.DLQID        `json:"id"`
	MessageID     id.MessageID    `json:"message_id"`
	Name          string          `json:"name"`
	Consumer      string          `json:"consumer"`
	CorrelationID id.SubscriberID `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
	ReplayedAt    *time.Time      `json:"replayed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
