// Package storedynamo implements the RecordStore contract on a DynamoDB
// single table with three global secondary indexes. Uniqueness is enforced
// with attribute_not_exists condition expressions; grouped creation uses
// TransactWriteItems and maps cancellation reasons onto store.AbortedError.
package storedynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/userplane/userplane/pkg/store"
)

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// Store talks to one DynamoDB table.
type Store struct {
	client *dynamodb.Client
	table  string
}

// New creates a DynamoDB-backed record store.
func New(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

var _ store.RecordStore = (*Store)(nil)

// PutIfAbsent writes the record guarded by a condition expression.
func (s *Store) PutIfAbsent(ctx context.Context, rec store.Record, cond store.Condition) error {
	item, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if expr := conditionExpression(cond); expr != "" {
		input.ConditionExpression = aws.String(expr)
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return store.ErrAlreadyExists().
				WithDetail("pk", rec.PK).
				WithDetail("sk", rec.SK)
		}
		return store.ErrUnavailable(err).WithDetail("operation", "PutItem")
	}
	return nil
}

// GetByKey reads one record with a consistent read; absence is (nil, nil).
func (s *Store) GetByKey(ctx context.Context, pk, sk string) (*store.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, store.ErrUnavailable(err).WithDetail("operation", "GetItem")
	}
	if out.Item == nil {
		return nil, nil
	}
	rec, err := unmarshalRecord(out.Item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query reads a base-table partition ordered by sort key ascending.
func (s *Store) Query(ctx context.Context, pk, skPrefix string) ([]store.Record, error) {
	return s.query(ctx, "", "PK", "SK", pk, skPrefix)
}

// QueryIndex reads a secondary index partition ordered by index sort key.
func (s *Store) QueryIndex(ctx context.Context, index, pk, skPrefix string) ([]store.Record, error) {
	return s.query(ctx, index, index+"PK", index+"SK", pk, skPrefix)
}

func (s *Store) query(ctx context.Context, index, pkName, skName, pk, skPrefix string) ([]store.Record, error) {
	keyCond := "#pk = :pk"
	names := map[string]string{"#pk": pkName}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		keyCond += " AND begins_with(#sk, :sk)"
		names["#sk"] = skName
		values[":sk"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(true),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var out []store.Record
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, store.ErrUnavailable(err).WithDetail("operation", "Query")
		}
		for _, item := range page.Items {
			rec, err := unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if page.LastEvaluatedKey == nil {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// TransactWrite submits the batch as one TransactWriteItems call.
func (s *Store) TransactWrite(ctx context.Context, puts []store.TransactPut) error {
	items := make([]types.TransactWriteItem, 0, len(puts))
	for _, p := range puts {
		item, err := marshalRecord(p.Record)
		if err != nil {
			return err
		}
		put := &types.Put{
			TableName: aws.String(s.table),
			Item:      item,
		}
		if expr := conditionExpression(p.Condition); expr != "" {
			put.ConditionExpression = aws.String(expr)
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			return abortedFromCancellation(cancelled)
		}
		return store.ErrUnavailable(err).WithDetail("operation", "TransactWriteItems")
	}
	return nil
}

func abortedFromCancellation(cancelled *types.TransactionCanceledException) *store.AbortedError {
	reasons := make([]store.AbortReason, len(cancelled.CancellationReasons))
	for i, r := range cancelled.CancellationReasons {
		code := aws.ToString(r.Code)
		reasons[i] = store.AbortReason{
			Index:     i,
			Predicate: code == reasonConditionalCheckFailed,
			Code:      code,
			Message:   aws.ToString(r.Message),
		}
	}
	return &store.AbortedError{Reasons: reasons}
}

func conditionExpression(cond store.Condition) string {
	switch cond {
	case store.ConditionPartitionKeyAbsent:
		return "attribute_not_exists(PK)"
	case store.ConditionSortKeyAbsent:
		return "attribute_not_exists(SK)"
	default:
		return ""
	}
}
