package dynamoflags

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memTable: минимальный in-memory DynamoDB для юнит-тестов: поддерживает только
// условие attribute_not_exists(flag_key) и запрос по transaction_id.
type memTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newMemTable() *memTable {
	return &memTable{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(attrs map[string]types.AttributeValue) (string, error) {
	tx, ok1 := attrs["transaction_id"].(*types.AttributeValueMemberS)
	fk, ok2 := attrs["flag_key"].(*types.AttributeValueMemberS)
	if !ok1 || !ok2 {
		return "", errors.New("missing key attributes")
	}
	return tx.Value + "|" + fk.Value, nil
}

func (m *memTable) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	k, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == claimCondition {
		if _, ok := m.items[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memTable) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	delete(m.items, k)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *memTable) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := params.ExpressionAttributeValues[":t"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, it := range m.items {
		if it["transaction_id"].(*types.AttributeValueMemberS).Value == want {
			out = append(out, it)
		}
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
}
