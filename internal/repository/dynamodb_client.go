package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"local-chat/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	// DynamoDB caps a single transaction at 100 actions.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoBackend.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoBackend keeps one history partition in a DynamoDB table.
type DynamoBackend struct {
	api       dynamodbAPI
	tableName string
	historyID string
}

// NewDynamoBackend creates a backend writing to partition CHAT#historyID of tableName.
func NewDynamoBackend(api dynamodbAPI, tableName, historyID string) (*DynamoBackend, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	historyID = strings.TrimSpace(historyID)
	if historyID == "" {
		return nil, errors.New("repository: history id must not be empty")
	}
	return &DynamoBackend{api: api, tableName: tableName, historyID: historyID}, nil
}

// chatPK returns the partition key for a history.
func chatPK(historyID string) string {
	return "CHAT#" + historyID
}

// skTimeLayout is fixed width so sort keys order lexicographically by time.
const skTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// msgSK returns the sort key for a message. The ID suffix keeps keys unique
// and breaks timestamp ties in insertion order.
func msgSK(msg domain.ChatMessage) string {
	return skPrefixMsg + msg.Timestamp.UTC().Format(skTimeLayout) + "#" + msg.ID
}

// List queries every MSG# item of the history in ascending sort key order,
// following pagination until the partition is exhausted.
func (c *DynamoBackend) List(ctx context.Context) ([]domain.ChatMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: chatPK(c.historyID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var msgs []domain.ChatMessage
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: List query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: List unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return msgs, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Commit writes the batch with TransactWriteItems. Batches larger than one
// transaction are split; each chunk is atomic on its own.
func (c *DynamoBackend) Commit(ctx context.Context, batch Batch) error {
	items := make([]types.TransactWriteItem, 0, len(batch.Puts)+len(batch.Deletes))
	for _, msg := range batch.Puts {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      c.messageItem(msg),
			},
		})
	}
	for _, msg := range batch.Deletes {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: chatPK(c.historyID)},
					"SK": &types.AttributeValueMemberS{Value: msgSK(msg)},
				},
			},
		})
	}

	for start := 0; start < len(items); start += maxTransactItems {
		end := min(start+maxTransactItems, len(items))
		_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		})
		if err != nil {
			return fmt.Errorf("repository: Commit: %w", err)
		}
	}
	return nil
}

func (c *DynamoBackend) Close() error { return nil }

func (c *DynamoBackend) messageItem(msg domain.ChatMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: chatPK(c.historyID)},
		"SK":         &types.AttributeValueMemberS{Value: msgSK(msg)},
		"id":         &types.AttributeValueMemberS{Value: msg.ID},
		"text":       &types.AttributeValueMemberS{Value: msg.Text},
		"isFromUser": &types.AttributeValueMemberBOOL{Value: msg.IsFromUser},
		"createdAt":  &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.Timestamp.UnixNano(), 10)},
	}
}

// itemToMessage converts a DynamoDB attribute map to a ChatMessage.
func itemToMessage(item map[string]types.AttributeValue) (domain.ChatMessage, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	fromUser, err := boolAttr(item, "isFromUser")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	createdAt, err := int64Attr(item, "createdAt")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		ID:         id,
		Text:       text,
		IsFromUser: fromUser,
		Timestamp:  timeFromNanos(createdAt),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
