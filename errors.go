package newsletter

import "errors"

var (
	// Not found errors.
	ErrInstanceNotFound   = errors.New("newsletter: saga instance not found")
	ErrDLQNotFound        = errors.New("newsletter: dlq entry not found")
	ErrSubscriberNotFound = errors.New("newsletter: subscriber not found")

	// Conflict errors.
	ErrSubscriberExists = errors.New("newsletter: subscriber already exists")

	// Bus errors.
	ErrBusClosed = errors.New("newsletter: bus is stopped")
)
