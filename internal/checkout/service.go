package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"

	"github.com/primepix/orderflow/internal/assets"
	"github.com/primepix/orderflow/internal/gateway"
	"github.com/primepix/orderflow/internal/orders"
	"github.com/primepix/orderflow/internal/webhook"
)

// ErrPaymentNotComplete indicates the processor does not report the charge as
// succeeded yet; the order stays in AWAITING_PAYMENT.
var ErrPaymentNotComplete = errors.New("payment not complete")

// OrderStore is the slice of the order state store the orchestrator uses.
type OrderStore interface {
	Create(ctx context.Context, draft orders.Draft) (*orders.Order, error)
	AttachCharge(ctx context.Context, orderID, chargeID string) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	FindByCharge(ctx context.Context, chargeID string) (*orders.Order, error)
	Transition(ctx context.Context, orderID, expected, next string) error
	ConfirmPayment(ctx context.Context, orderID, assetRef string) error
	SetAssetRef(ctx context.Context, orderID, assetRef string) error
	MarkFulfilled(ctx context.Context, orderID string) error
}

// Gateway is the charge-side contract with the payment processor.
type Gateway interface {
	CreateCharge(ctx context.Context, amount int64, currency string, metadata map[string]string) (*gateway.ChargeRecord, error)
	RetrieveCharge(ctx context.Context, chargeID string) (*gateway.ChargeRecord, error)
}

// Notifier accepts a fulfillment notification for an order.
type Notifier interface {
	Send(ctx context.Context, orderID string) error
}

// Dedup records which webhook deliveries have been applied. MarkProcessed
// consumes the event's identity; Seen only inspects it.
type Dedup interface {
	MarkProcessed(ctx context.Context, eventID, chargeID, eventType string) (bool, error)
	Seen(ctx context.Context, chargeID, eventType string) (bool, error)
}

// Metrics counts notable events. Implementations must never fail the caller.
type Metrics interface {
	Incr(ctx context.Context, name string)
}

type nopMetrics struct{}

func (nopMetrics) Incr(context.Context, string) {}

// Service is the order state machine. All status mutation goes through the
// store's compare-and-set, so the client confirmation path and the webhook
// path can race freely; whichever wins the CAS into PAYMENT_CONFIRMED is the
// one that triggers fulfillment.
type Service struct {
	store    OrderStore
	gateway  Gateway
	assets   assets.Store
	notifier Notifier
	dedup    Dedup
	metrics  Metrics
}

// NewService wires the orchestrator. metrics may be nil.
func NewService(store OrderStore, gw Gateway, assetStore assets.Store, notifier Notifier, dedup Dedup, metrics Metrics) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		store:    store,
		gateway:  gw,
		assets:   assetStore,
		notifier: notifier,
		dedup:    dedup,
		metrics:  metrics,
	}
}

// StartOrder creates an Order, opens a charge for it and moves it to
// AWAITING_PAYMENT. If charge creation fails the order is left in CREATED and
// the gateway error is returned for the caller to map (retryable).
func (s *Service) StartOrder(ctx context.Context, draft orders.Draft) (*orders.Order, *gateway.ChargeRecord, error) {
	order, err := s.store.Create(ctx, draft)
	if err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, draft.Amount, draft.Currency, map[string]string{
		"order_id":       order.OrderID,
		"package":        draft.Package,
		"customer_email": draft.CustomerEmail,
		"customer_name":  draft.CustomerName,
		"rush":           strconv.FormatBool(draft.Rush),
	})
	if err != nil {
		log.Printf("[checkout] charge creation failed for order=%s: %v", order.OrderID, err)
		return nil, nil, err
	}

	if err := s.store.AttachCharge(ctx, order.OrderID, charge.ID); err != nil {
		return nil, nil, fmt.Errorf("attach charge: %w", err)
	}
	if err := s.store.Transition(ctx, order.OrderID, orders.StatusCreated, orders.StatusAwaitingPayment); err != nil {
		return nil, nil, fmt.Errorf("transition to awaiting payment: %w", err)
	}

	order.ChargeID = charge.ID
	order.Status = orders.StatusAwaitingPayment
	s.metrics.Incr(ctx, "OrdersStarted")
	return order, charge, nil
}

// ConfirmOrder handles the client's "finalize order" request: persist the
// uploaded asset and confirm payment. The charge status is always re-read
// from the gateway; a client-asserted success is never trusted. If the
// webhook path already confirmed the payment, the upload is stored and the
// call succeeds as a no-op on state.
func (s *Service) ConfirmOrder(ctx context.Context, orderID, filename string, asset io.Reader) (*orders.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case orders.StatusAwaitingPayment:
		// the path below
	case orders.StatusPaymentConfirmed, orders.StatusFulfilled:
		// webhook already won; accept the asset and report success
		assetRef, err := s.assets.Put(ctx, orderID, filename, asset)
		if err != nil {
			return nil, fmt.Errorf("store asset: %w", err)
		}
		if err := s.store.SetAssetRef(ctx, orderID, assetRef); err != nil {
			return nil, err
		}
		order.AssetRef = assetRef
		return order, nil
	default:
		return nil, orders.ErrConflict
	}

	charge, err := s.gateway.RetrieveCharge(ctx, order.ChargeID)
	if gateway.IsNotFound(err) {
		// the processor no longer knows the charge, so it cannot have
		// succeeded; the order stays AWAITING_PAYMENT for a new attempt
		return nil, ErrPaymentNotComplete
	}
	if err != nil {
		return nil, err
	}
	if charge.Status != gateway.ChargeSucceeded {
		return nil, ErrPaymentNotComplete
	}

	assetRef, err := s.assets.Put(ctx, orderID, filename, asset)
	if err != nil {
		return nil, fmt.Errorf("store asset: %w", err)
	}

	err = s.store.ConfirmPayment(ctx, orderID, assetRef)
	if errors.Is(err, orders.ErrConflict) {
		// lost the race to the webhook; that path owns fulfillment
		current, getErr := s.store.Get(ctx, orderID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status != orders.StatusPaymentConfirmed && current.Status != orders.StatusFulfilled {
			return nil, orders.ErrConflict
		}
		if err := s.store.SetAssetRef(ctx, orderID, assetRef); err != nil {
			return nil, err
		}
		current.AssetRef = assetRef
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Incr(ctx, "PaymentsConfirmed")
	order.Status = orders.StatusPaymentConfirmed
	order.AssetRef = assetRef
	s.fulfill(ctx, order.OrderID)
	return order, nil
}

// HandlePaymentEvent applies a verified webhook event. Replays and events for
// unknown charges are logged and dropped, never errors: the processor must
// always see delivery succeed once the signature checked out.
//
// The dedup record is written only after the state transition lands. Marking
// first would let a crash mid-handler swallow the processor's retry of the
// same event as a replay; with this ordering a retry simply re-runs the
// compare-and-set, which converges on its own.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev *webhook.Event) error {
	chargeID := ev.Data.Object.ID
	if chargeID == "" {
		log.Printf("[checkout] event %s has no charge, dropped", ev.ID)
		return nil
	}

	order, err := s.store.FindByCharge(ctx, chargeID)
	if errors.Is(err, orders.ErrNotFound) {
		log.Printf("[checkout] event %s for unknown charge=%s, dropped", ev.Type, chargeID)
		s.metrics.Incr(ctx, "UnknownChargeEvents")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find order by charge: %w", err)
	}

	switch ev.Type {
	case webhook.EventChargeSucceeded:
		err := s.store.Transition(ctx, order.OrderID, orders.StatusAwaitingPayment, orders.StatusPaymentConfirmed)
		if errors.Is(err, orders.ErrConflict) {
			s.noteLostCAS(ctx, ev, chargeID, order.OrderID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("confirm via webhook: %w", err)
		}
		s.recordDelivery(ctx, ev, chargeID)
		s.metrics.Incr(ctx, "PaymentsConfirmed")
		s.fulfill(ctx, order.OrderID)
		return nil

	case webhook.EventChargeFailed:
		err := s.store.Transition(ctx, order.OrderID, orders.StatusAwaitingPayment, orders.StatusPaymentFailed)
		if errors.Is(err, orders.ErrConflict) {
			s.noteLostCAS(ctx, ev, chargeID, order.OrderID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		s.recordDelivery(ctx, ev, chargeID)
		s.metrics.Incr(ctx, "PaymentsFailed")
		return nil

	default:
		log.Printf("[checkout] unhandled event type %s, dropped", ev.Type)
		return nil
	}
}

// recordDelivery writes the dedup record for an applied event. Best effort:
// the transition already landed, so a failed write only costs replay metrics.
func (s *Service) recordDelivery(ctx context.Context, ev *webhook.Event, chargeID string) {
	if _, err := s.dedup.MarkProcessed(ctx, ev.ID, chargeID, ev.Type); err != nil {
		log.Printf("[checkout] record delivery of %s for charge=%s: %v", ev.Type, chargeID, err)
	}
}

// noteLostCAS classifies a lost compare-and-set: a recorded dedup identity
// means the processor replayed an event this service already applied;
// otherwise the other producer path won the race.
func (s *Service) noteLostCAS(ctx context.Context, ev *webhook.Event, chargeID, orderID string) {
	seen, err := s.dedup.Seen(ctx, chargeID, ev.Type)
	if err != nil {
		log.Printf("[checkout] dedup lookup for charge=%s: %v", chargeID, err)
		return
	}
	if seen {
		log.Printf("[checkout] replay of %s for charge=%s, no-op", ev.Type, chargeID)
		s.metrics.Incr(ctx, "WebhookReplays")
		return
	}
	log.Printf("[checkout] %s for order=%s lost the race, no-op", ev.Type, orderID)
}

// fulfill runs once per order, guarded by its caller winning the CAS into
// PAYMENT_CONFIRMED. A notifier failure leaves the order in PAYMENT_CONFIRMED
// for the sweep to retry; it never rolls back payment state.
func (s *Service) fulfill(ctx context.Context, orderID string) {
	if err := s.notifier.Send(ctx, orderID); err != nil {
		log.Printf("[checkout] notifier failed for order=%s: %v", orderID, err)
		s.metrics.Incr(ctx, "NotifierFailures")
		return
	}
	if err := s.store.MarkFulfilled(ctx, orderID); err != nil {
		log.Printf("[checkout] mark fulfilled failed for order=%s: %v", orderID, err)
		return
	}
	s.metrics.Incr(ctx, "OrdersFulfilled")
}
