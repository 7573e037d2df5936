package drafts

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for GetItem/PutItem/DeleteItem
// keyed by user_id + form_type.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	getCalls    int
	putCalls    int
	deleteCalls int
	err         error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func mockKey(attrs map[string]types.AttributeValue) (string, error) {
	u, ok := attrs["user_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing user_id")
	}
	f, ok := attrs["form_type"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing form_type")
	}
	return u.Value + "#" + f.Value, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	k, err := mockKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.err != nil {
		return nil, m.err
	}
	k, err := mockKey(params.Item)
	if err != nil {
		return nil, err
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.err != nil {
		return nil, m.err
	}
	k, err := mockKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.table[k]
	// only the conditional delete used by DeleteIfNotNewer is understood
	if exists && params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(user_id) OR updated_at_ms <= :cutoff" {
		cutoff, _ := strconv.ParseInt(params.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberN).Value, 10, 64)
		stored, _ := strconv.ParseInt(item["updated_at_ms"].(*types.AttributeValueMemberN).Value, 10, 64)
		if stored > cutoff {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	delete(m.table, k)
	return &dyn.DeleteItemOutput{}, nil
}
