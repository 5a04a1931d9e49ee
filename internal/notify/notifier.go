package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/primepix/orderflow/internal/aws"
)

// Message is the payload sent from API -> SQS -> worker for one order's
// confirmation email.
type Message struct {
	OrderID       string `json:"order_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Queue hands notifications to SQS; the worker delivers the actual email.
// Enqueue success is what the orchestrator treats as "notifier accepted".
type Queue struct {
	publisher *aws.Publisher
}

// NewQueue returns a Queue bound to the notification queue.
func NewQueue(sqsClient aws.SQSAPI, queueURL string) *Queue {
	return &Queue{publisher: aws.NewPublisher(sqsClient, queueURL)}
}

// Send enqueues the notification for the given order.
func (q *Queue) Send(ctx context.Context, orderID string) error {
	body, err := json.Marshal(Message{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{"order_id": orderID}
	if err := q.publisher.Send(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
