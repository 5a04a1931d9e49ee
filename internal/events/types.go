package events

import "time"

// Record is the shape persisted in the webhook events DynamoDB table.
// EventKey is chargeID#eventType: the processor retries delivery of the same
// logical event, so that pair is the dedup identity.
type Record struct {
	EventKey   string    `dynamodbav:"event_key"` // PK
	EventID    string    `dynamodbav:"event_id,omitempty"`
	ChargeID   string    `dynamodbav:"charge_id"`
	EventType  string    `dynamodbav:"event_type"`
	ReceivedAt time.Time `dynamodbav:"received_at"`
	ExpiresAt  int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
