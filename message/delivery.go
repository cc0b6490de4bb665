package message

// Delivery is one attempt to hand an envelope to a named consumer.
// The bus constructs a Delivery per (envelope, consumer) pair and threads
// it through the middleware chain.
type Delivery struct {
	// Consumer is the name of the consumer receiving the envelope.
	Consumer string
	// Attempt is the 1-indexed invocation count for this delivery.
	Attempt int
	// Envelope is the message being delivered.
	Envelope *Envelope
}
