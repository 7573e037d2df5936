package drafts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-draftsync/internal/aws"
)

// DynamoStore persists drafts in a DynamoDB table with partition key
// user_id and sort key form_type.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	retention time.Duration // TTL window written to expires_at; zero disables it
}

// NewDynamoStore returns a DynamoStore bound to tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string, retention time.Duration) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		retention: retention,
	}
}

func (s *DynamoStore) key(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":   &types.AttributeValueMemberS{Value: key.UserID},
		"form_type": &types.AttributeValueMemberS{Value: key.FormType},
	}
}

// Get fetches a draft with a consistent read. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &rec, nil
}

// Upsert overwrites the draft for key.
func (s *DynamoStore) Upsert(ctx context.Context, key Key, payload Payload, updatedAt time.Time) error {
	if err := key.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(newRecord(key, payload, updatedAt, s.retention))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Delete removes the draft for key. DynamoDB treats a missing item as success.
func (s *DynamoStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(key),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// DeleteIfNotNewer removes the draft unless it was updated after cutoff.
// Returns ErrNewerDraft when the stored draft is newer; a missing draft is
// not an error.
func (s *DynamoStore) DeleteIfNotNewer(ctx context.Context, key Key, cutoff time.Time) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		ConditionExpression: awsString("attribute_not_exists(user_id) OR updated_at_ms <= :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.UnixMilli(), 10)},
		},
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrNewerDraft
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
