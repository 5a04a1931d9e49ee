package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/primepix/orderflow/internal/aws"
)

// ChargeIndexName is the GSI keyed by charge_id, used to resolve webhook
// events back to the owning order.
const ChargeIndexName = "charge_id-index"

// ErrNotFound indicates the order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrConflict indicates a conditional write lost a race: the order's current
// state did not match the expected state. Callers should re-fetch and decide.
var ErrConflict = errors.New("order state conflict")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	idFunc    func() string
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		idFunc:    uuid.NewString,
	}
}

// Create persists a new Order in CREATED with a server-generated ID.
func (s *Store) Create(ctx context.Context, draft Draft) (*Order, error) {
	// whole seconds only: a zero-nanosecond time.Time marshals as plain
	// RFC3339, the same format every update writes to updated_at, so
	// ListStale's lexical comparison never mixes formats
	now := s.nowFunc().UTC().Truncate(time.Second)
	order := Order{
		OrderID:       s.idFunc(),
		CustomerEmail: draft.CustomerEmail,
		CustomerName:  draft.CustomerName,
		Package:       draft.Package,
		Rush:          draft.Rush,
		Amount:        draft.Amount,
		Currency:      draft.Currency,
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return nil, fmt.Errorf("put order: %w", err)
	}
	return &order, nil
}

// AttachCharge records the processor charge ID on the order. The conditional
// write enforces at most one charge per order; a second attach is ErrConflict.
func (s *Store) AttachCharge(ctx context.Context, orderID, chargeID string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET charge_id = :c, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":  &types.AttributeValueMemberS{Value: chargeID},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id) AND attribute_not_exists(charge_id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("attach charge: %w", err)
	}
	return nil
}

// Get fetches an order by order_id.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// FindByCharge resolves an order from a processor charge ID via the GSI.
func (s *Store) FindByCharge(ctx context.Context, chargeID string) (*Order, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(ChargeIndexName),
		KeyConditionExpression: awsString("charge_id = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: chargeID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query by charge: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Items[0], &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition conditionally moves the order status from expected -> next.
// This compare-and-set is the sole synchronization point for racing writers.
func (s *Store) Transition(ctx context.Context, orderID, expected, next string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: next},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expected},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("transition: %w", err)
	}
	return nil
}

// ConfirmPayment is the AWAITING_PAYMENT -> PAYMENT_CONFIRMED compare-and-set
// that also records the asset reference in the same write.
func (s *Store) ConfirmPayment(ctx context.Context, orderID, assetRef string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, asset_ref = :ar, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusPaymentConfirmed},
			":ar":       &types.AttributeValueMemberS{Value: assetRef},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: StatusAwaitingPayment},
		},
		ConditionExpression: awsString("#s = :expected"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConflict
		}
		return fmt.Errorf("confirm payment: %w", err)
	}
	return nil
}

// SetAssetRef stores the asset reference without touching status. Used when
// the webhook path confirmed the payment before the client upload landed.
func (s *Store) SetAssetRef(ctx context.Context, orderID, assetRef string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET asset_ref = :ar, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ar": &types.AttributeValueMemberS{Value: assetRef},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("set asset ref: %w", err)
	}
	return nil
}

// MarkFulfilled moves PAYMENT_CONFIRMED -> FULFILLED. Calling it on an order
// that is already FULFILLED is a no-op, not an error, so duplicate delivery
// of the confirming signal cannot fail the caller.
func (s *Store) MarkFulfilled(ctx context.Context, orderID string) error {
	err := s.Transition(ctx, orderID, StatusPaymentConfirmed, StatusFulfilled)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConflict) {
		return err
	}
	o, getErr := s.Get(ctx, orderID)
	if getErr != nil {
		return getErr
	}
	if o.Status == StatusFulfilled {
		return nil
	}
	return ErrConflict
}

// ListStale scans for orders in the given status last updated before cutoff.
// Used by the sweep: stale AWAITING_PAYMENT expires, stale PAYMENT_CONFIRMED
// gets its notification re-enqueued. RFC3339 timestamps compare lexically.
func (s *Store) ListStale(ctx context.Context, status string, cutoff time.Time) ([]Order, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("#s = :status AND updated_at < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale: %w", err)
	}
	result := make([]Order, 0, len(out.Items))
	for _, item := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		result = append(result, o)
	}
	return result, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsInt32(n int32) *int32    { return &n }
