package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/primepix/orderflow/internal/aws"
)

// Store deduplicates webhook events against DynamoDB. A conditional put on
// the event key decides, in one write, whether this delivery is the first.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow bounds how long dedup records are retained (e.g. 48h); the
// processor stops retrying an event well inside that window.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Key builds the dedup identity for an event.
func Key(chargeID, eventType string) string {
	return chargeID + "#" + eventType
}

// MarkProcessed records the event and reports whether this was its first
// delivery. (false, nil) means a replay: the caller must treat it as a no-op.
func (s *Store) MarkProcessed(ctx context.Context, eventID, chargeID, eventType string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		EventKey:   Key(chargeID, eventType),
		EventID:    eventID,
		ChargeID:   chargeID,
		EventType:  eventType,
		ReceivedAt: now,
		ExpiresAt:  now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(event_key)"),
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a dedup record by charge ID and event type. (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, chargeID, eventType string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"event_key": &types.AttributeValueMemberS{Value: Key(chargeID, eventType)},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Seen reports whether an event with this dedup identity was already
// recorded. Lets the orchestrator tell a processor replay from a lost race
// without consuming the key.
func (s *Store) Seen(ctx context.Context, chargeID, eventType string) (bool, error) {
	rec, err := s.Get(ctx, chargeID, eventType)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func awsString(s string) *string { return &s }
