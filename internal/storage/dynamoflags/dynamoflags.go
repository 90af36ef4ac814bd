// Package dynamoflags хранит флаги отправленных уведомлений в DynamoDB.
// Ключ таблицы: transaction_id (HASH) + flag_key (RANGE), expires_at как TTL-атрибут.
package dynamoflags

import (
	"context"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

const claimCondition = "attribute_not_exists(flag_key)"

// DynamoDBAPI — подмножество клиента, которое нам нужно (удобно мокать).
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error)
	Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error)
}

type flagRecord struct {
	TransactionID string    `dynamodbav:"transaction_id"`
	FlagKey       string    `dynamodbav:"flag_key"`
	SentAt        time.Time `dynamodbav:"sent_at"`
	ExpiresAt     int64     `dynamodbav:"expires_at"`
}

type Store struct {
	client    DynamoDBAPI
	tableName string
	ttl       time.Duration
}

func New(client DynamoDBAPI, tableName string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Store{client: client, tableName: tableName, ttl: ttl}
}

// NewClient грузит стандартную AWS-конфигурацию; endpoint нужен для dynamodb-local.
func NewClient(ctx context.Context, region, endpoint string) (*dyn.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return dyn.NewFromConfig(cfg, func(o *dyn.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *Store) ClaimNotification(ctx context.Context, transactionID, key string, at time.Time) (bool, error) {
	item, err := attributevalue.MarshalMap(flagRecord{
		TransactionID: transactionID,
		FlagKey:       key,
		SentAt:        at.UTC(),
		ExpiresAt:     at.Add(s.ttl).Unix(),
	})
	if err != nil {
		return false, errors.Wrap(err, "marshal flag")
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(claimCondition),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, errors.Wrap(err, "put flag")
	}
	return true, nil
}

func (s *Store) ReleaseNotification(ctx context.Context, transactionID, key string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       flagKey(transactionID, key),
	})
	if err != nil {
		return errors.Wrap(err, "delete flag")
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, transactionID string) ([]models.NotificationFlag, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("transaction_id = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: transactionID},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "query flags")
	}

	var recs []flagRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, errors.Wrap(err, "unmarshal flags")
	}
	flags := make([]models.NotificationFlag, 0, len(recs))
	for _, r := range recs {
		flags = append(flags, models.NotificationFlag{TransactionID: r.TransactionID, Key: r.FlagKey, SentAt: r.SentAt})
	}
	return flags, nil
}

func flagKey(transactionID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		"flag_key":       &types.AttributeValueMemberS{Value: key},
	}
}
