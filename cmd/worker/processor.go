package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/primepix/orderflow/internal/notify"
	"github.com/primepix/orderflow/internal/orders"
)

// stuckConfirmWindow is how long an order may sit in PAYMENT_CONFIRMED
// before the sweep re-enqueues its notification.
const stuckConfirmWindow = 15 * time.Minute

// OrderStore is the slice of the order store the worker uses.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListStale(ctx context.Context, status string, cutoff time.Time) ([]orders.Order, error)
	Transition(ctx context.Context, orderID, expected, next string) error
}

// Mailer sends the customer-facing confirmation email.
type Mailer interface {
	SendConfirmation(ctx context.Context, o orders.Order) error
}

// Enqueuer re-submits a notification message for an order.
type Enqueuer interface {
	Send(ctx context.Context, orderID string) error
}

// Processor handles queued notification messages and the periodic sweep.
type Processor struct {
	store      OrderStore
	mailer     Mailer
	queue      Enqueuer
	pendingTTL time.Duration
	nowFunc    func() time.Time
}

// NewProcessor creates a worker processor.
func NewProcessor(store OrderStore, mailer Mailer, queue Enqueuer, pendingTTL time.Duration) *Processor {
	return &Processor{
		store:      store,
		mailer:     mailer,
		queue:      queue,
		pendingTTL: pendingTTL,
		nowFunc:    time.Now,
	}
}

// HandleSQS receives a notification batch and sends one email per message.
func (p *Processor) HandleSQS(ctx context.Context, ev lambdaevents.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var msg notify.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received order=%s corr=%s", msg.OrderID, msg.CorrelationID)

	order, err := p.store.Get(ctx, msg.OrderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			// Should never happen — DLQ if it does
			return fmt.Errorf("order not found: %s", msg.OrderID)
		}
		return fmt.Errorf("failed to fetch order: %w", err)
	}

	if err := p.mailer.SendConfirmation(ctx, *order); err != nil {
		return fmt.Errorf("confirmation email for order=%s: %w", order.OrderID, err)
	}

	log.Printf("[worker] confirmation sent order=%s", order.OrderID)
	return nil
}

// HandleSweep expires stale unpaid orders and re-enqueues notifications for
// confirmed orders that never made it to FULFILLED.
func (p *Processor) HandleSweep(ctx context.Context) error {
	now := p.nowFunc()

	stale, err := p.store.ListStale(ctx, orders.StatusAwaitingPayment, now.Add(-p.pendingTTL))
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}
	for _, o := range stale {
		err := p.store.Transition(ctx, o.OrderID, orders.StatusAwaitingPayment, orders.StatusExpired)
		if errors.Is(err, orders.ErrConflict) {
			// paid between the scan and the update; leave it alone
			continue
		}
		if err != nil {
			return fmt.Errorf("expire order=%s: %w", o.OrderID, err)
		}
		log.Printf("[worker] expired order=%s", o.OrderID)
	}

	stuck, err := p.store.ListStale(ctx, orders.StatusPaymentConfirmed, now.Add(-stuckConfirmWindow))
	if err != nil {
		return fmt.Errorf("list stuck confirmations: %w", err)
	}
	for _, o := range stuck {
		if err := p.queue.Send(ctx, o.OrderID); err != nil {
			return fmt.Errorf("re-enqueue order=%s: %w", o.OrderID, err)
		}
		err := p.store.Transition(ctx, o.OrderID, orders.StatusPaymentConfirmed, orders.StatusFulfilled)
		if err != nil && !errors.Is(err, orders.ErrConflict) {
			return fmt.Errorf("mark fulfilled order=%s: %w", o.OrderID, err)
		}
		log.Printf("[worker] re-enqueued notification order=%s", o.OrderID)
	}

	return nil
}
