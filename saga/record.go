package saga

import (
	"time"

	"github.com/MrEshboboyev/newsletter/id"
	"github.com/MrEshboboyev/newsletter/message"
)

// Record is the persisted form of one saga instance: the workflow-specific
// data plus the engine-owned bookkeeping (state, version, outbox).
//
// Version implements optimistic concurrency: every successful write
// increments it, and a compare-and-update against a stale version fails,
// forcing the writer to re-read and re-evaluate. Outbox holds messages
// staged by the last transition that have not been confirmed delivered;
// state and outbox always change in the same write.
type Record[T any] struct {
	CorrelationID id.SubscriberID     `json:"correlation_id"`
	State         State               `json:"state"`
	Version       int64               `json:"version"`
	Data          *T                  `json:"data"`
	Outbox        []*message.Envelope `json:"outbox,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// Clone returns a shallow copy of the record with its own outbox slice.
// Instance data is shared; stores that hand records across goroutine
// boundaries deep-copy Data themselves.
func (r *Record[T]) Clone() *Record[T] {
	cp := *r
	if r.Outbox != nil {
		cp.Outbox = make([]*message.Envelope, len(r.Outbox))
		copy(cp.Outbox, r.Outbox)
	}
	return &cp
}
