package saga

import (
	"context"

	"github.com/MrEshboboyev/newsletter/id"
)

// Store defines the persistence contract for one workflow's instances.
// Each workflow type gets its own store (its own table or key space);
// the two workflows share no keys.
type Store[T any] interface {
	// Get retrieves the record for a correlation id.
	// Returns newsletter.ErrInstanceNotFound if no instance exists.
	Get(ctx context.Context, correlationID id.SubscriberID) (*Record[T], error)

	// CreateIfAbsent persists a new record iff no record exists for its
	// correlation id. Returns false (and no error) if one already exists.
	// On success the record is stored with Version 1 and rec.Version is
	// set to match.
	CreateIfAbsent(ctx context.Context, rec *Record[T]) (bool, error)

	// CompareAndUpdate persists rec iff the stored version still equals
	// rec.Version, writing it with Version+1. On success it returns true
	// and bumps rec.Version to match. On a version mismatch it returns
	// false (and no error): the caller must re-read and re-evaluate.
	CompareAndUpdate(ctx context.Context, rec *Record[T]) (bool, error)
}
