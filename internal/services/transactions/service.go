package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipNotify/internal/cache"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("tracking number already attached")
)

type Repository interface {
	UpsertTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error)
	ListShipments(ctx context.Context, transactionID string) ([]*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error)
}

type FlagLister interface {
	ListNotifications(ctx context.Context, transactionID string) ([]models.NotificationFlag, error)
}

type Service struct {
	repo    Repository
	flags   FlagLister
	cache   cache.BytesCache
	viewTTL time.Duration
}

func New(repo Repository, flags FlagLister, c cache.BytesCache, viewTTL time.Duration) *Service {
	return &Service{repo: repo, flags: flags, cache: c, viewTTL: viewTTL}
}

func ViewKey(transactionID string) string {
	return fmt.Sprintf("transaction:%s:view", transactionID)
}

func (s *Service) UpsertTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error) {
	if strings.TrimSpace(t.ID) == "" {
		return nil, errors.Wrap(ErrInvalid, "transaction id is required")
	}
	out, err := s.repo.UpsertTransaction(ctx, t)
	if err != nil {
		return nil, err
	}
	s.dropView(ctx, t.ID)
	return out, nil
}

func (s *Service) AttachShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	if !in.Direction.Valid() {
		return nil, errors.Wrapf(ErrInvalid, "unknown direction %q", in.Direction)
	}
	in.Carrier = strings.ToLower(strings.TrimSpace(in.Carrier))
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	if in.Carrier == "" || in.TrackingNumber == "" {
		return nil, errors.Wrap(ErrInvalid, "carrier and tracking number are required")
	}
	if _, err := s.repo.GetTransaction(ctx, in.TransactionID); err != nil {
		if errors.Is(err, pgstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sh, err := s.repo.UpsertShipment(ctx, in)
	if errors.Is(err, pgstore.ErrConflict) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	s.dropView(ctx, in.TransactionID)
	return sh, nil
}

// GetView отдаёт транзакцию вместе с отправлениями и флагами уведомлений.
// Ошибки Redis не ломают чтение, идём в БД.
func (s *Service) GetView(ctx context.Context, id string) (*models.TransactionView, error) {
	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, ViewKey(id))
		if err == nil && ok {
			var v models.TransactionView
			if json.Unmarshal(b, &v) == nil {
				return &v, nil
			}
		}
	}

	t, err := s.repo.GetTransaction(ctx, id)
	if errors.Is(err, pgstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	shipments, err := s.repo.ListShipments(ctx, id)
	if err != nil {
		return nil, err
	}
	if shipments == nil {
		shipments = []*models.Shipment{}
	}
	flags := []models.NotificationFlag{}
	if s.flags != nil {
		flags, err = s.flags.ListNotifications(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	v := &models.TransactionView{Transaction: t, Shipments: shipments, Notifications: flags}
	if s.cacheEnabled() {
		b, _ := json.Marshal(v)
		if err := s.cache.Set(ctx, ViewKey(id), b, s.viewTTL); err != nil {
			slog.Warn("cache transaction view", "transaction_id", id, "error", err.Error())
		}
	}
	return v, nil
}

func (s *Service) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	if shipmentID == 0 {
		return nil, errors.Wrap(ErrInvalid, "shipment id is required")
	}
	return s.repo.ListShipmentEvents(ctx, shipmentID, limit, offset)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.viewTTL > 0
}

func (s *Service) dropView(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, ViewKey(id))
}
