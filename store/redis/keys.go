package redis

// Redis key naming conventions for newsletter data.
// All keys are prefixed with "newsletter:" to avoid collisions.

const keyPrefix = "newsletter:"

// ── Saga keys ──

// sagaKey returns the key for a saga instance: newsletter:saga:{workflow}:{correlation}
func sagaKey(workflow, correlationID string) string {
	return keyPrefix + "saga:" + workflow + ":" + correlationID
}

// ── DLQ keys ──

// dlqKey returns the key for a DLQ entry entity: newsletter:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqIDsKey is the Set tracking all DLQ entry IDs for enumeration.
const dlqIDsKey = keyPrefix + "dlq_ids"

// ── Subscriber keys ──

// subscriberKey returns the key for a subscriber entity: newsletter:sub:{id}
func subscriberKey(id string) string { return keyPrefix + "sub:" + id }

// subscriberIDsKey is the Set tracking all subscriber IDs for enumeration.
const subscriberIDsKey = keyPrefix + "sub_ids"

// subscriberEmailsKey maps emails to subscriber IDs for duplicate detection.
const subscriberEmailsKey = keyPrefix + "sub_emails"
