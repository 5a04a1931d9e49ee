package events

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for PutItem/GetItem used in unit
// tests. Only the condition expression the store issues is understood.
type simpleMock struct {
	mu       sync.Mutex
	table    map[string]map[string]types.AttributeValue
	putCalls int
	getCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	keyAttr, ok := params.Item["event_key"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing event_key")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(event_key)" {
		if _, exists := m.table[keyAttr.Value]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[keyAttr.Value] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	keyAttr, ok := params.Key["event_key"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing event_key")
	}
	item, exists := m.table[keyAttr.Value]
	if !exists {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("not supported by mock")
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not supported by mock")
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("not supported by mock")
}
