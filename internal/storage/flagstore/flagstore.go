package flagstore

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ShipNotify/config"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/storage/dynamoflags"
	"github.com/pkg/errors"
)

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Store: флаги уведомлений; реализуют pgstore.Storage и dynamoflags.Store.
type Store interface {
	ClaimNotification(ctx context.Context, transactionID, key string, at time.Time) (bool, error)
	ReleaseNotification(ctx context.Context, transactionID, key string) error
	ListNotifications(ctx context.Context, transactionID string) ([]models.NotificationFlag, error)
}

// Open выбирает бэкенд по shipnotify.flag_store. pg используется по умолчанию.
func Open(ctx context.Context, cfg *config.Config, pg Store) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ShipNotify.FlagStore)) {
	case "", BackendPostgres:
		if pg == nil {
			return nil, errors.New("postgres flag store is not available")
		}
		return pg, nil
	case BackendDynamoDB:
		if cfg.DynamoDB.Table == "" {
			return nil, errors.New("dynamodb.table is required for dynamodb flag store")
		}
		client, err := dynamoflags.NewClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, errors.Wrap(err, "dynamodb client")
		}
		ttl := time.Duration(cfg.DynamoDB.TTLHours) * time.Hour
		return dynamoflags.New(client, cfg.DynamoDB.Table, ttl), nil
	default:
		return nil, errors.Errorf("unknown flag store %q", cfg.ShipNotify.FlagStore)
	}
}
