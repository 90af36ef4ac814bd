package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ShipNotify/internal/broker/messages"
	"github.com/BearBump/ShipNotify/internal/cache"
	"github.com/BearBump/ShipNotify/internal/carrierstatus"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/services/transactions"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidUpdate = errors.New("invalid tracking update")

type Outcome string

const (
	// статус требует SMS, событие ушло в Kafka.
	OutcomePublished Outcome = "published"
	// статус сохранён, уведомлять некого/незачем.
	OutcomeRecorded Outcome = "recorded"
	// трек-номер нам не известен.
	OutcomeIgnored Outcome = "ignored"
)

type Repository interface {
	FindShipmentByTracking(ctx context.Context, carrier, trackingNumber string) (*models.Shipment, error)
	ApplyShipmentStatus(ctx context.Context, upd pgstore.ShipmentUpdate) error
}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Update struct {
	Carrier        string
	TrackingNumber string
	Result         carrier.TrackingResult
	// NextCheckAt задаёт поллер; для вебхуков нулевое.
	NextCheckAt time.Time
	Source      string
}

type Result struct {
	Outcome       Outcome      `json:"status"`
	Phase         models.Phase `json:"phase"`
	TransactionID string       `json:"transaction_id,omitempty"`
	ShipmentID    uint64       `json:"shipment_id,omitempty"`
}

type Service struct {
	repo     Repository
	producer Producer
	topic    string
	views    cache.BytesCache
	now      func() time.Time
}

func New(repo Repository, producer Producer, topic string, views cache.BytesCache) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
		topic:    topic,
		views:    views,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) HandleTrackingUpdate(ctx context.Context, upd Update) (Result, error) {
	if upd.TrackingNumber == "" {
		return Result{}, errors.Wrap(ErrInvalidUpdate, "tracking_number is required")
	}

	status := upd.Result.Status
	phase, notify := carrierstatus.NotificationPhase(status)
	log := slog.With(
		"tracking_number", upd.TrackingNumber,
		"carrier", upd.Carrier,
		"status", status,
		"phase", phase,
		"source", upd.Source,
	)

	sh, err := s.repo.FindShipmentByTracking(ctx, upd.Carrier, upd.TrackingNumber)
	if errors.Is(err, pgstore.ErrNotFound) {
		log.Info("tracking update for unknown shipment")
		return Result{Outcome: OutcomeIgnored, Phase: phase}, nil
	}
	if err != nil {
		return Result{}, err
	}
	log = log.With("transaction_id", sh.TransactionID, "direction", sh.Direction)

	now := s.now()
	apply := pgstore.ShipmentUpdate{
		ShipmentID:  sh.ID,
		CheckedAt:   now,
		Status:      carrierstatus.Normalize(status),
		Phase:       phase,
		StatusAt:    upd.Result.StatusAt,
		NextCheckAt: upd.NextCheckAt,
		Events:      upd.Result.Events,
	}
	// Опоздавший TRANSIT после DELIVERED: историю пишем, статус не откатываем.
	stale := sh.Phase == models.PhaseDelivered && phase != models.PhaseDelivered
	if stale {
		apply.Status = sh.Status
		apply.Phase = sh.Phase
		apply.StatusAt = sh.StatusAt
	}
	if err := s.repo.ApplyShipmentStatus(ctx, apply); err != nil {
		return Result{}, err
	}
	s.invalidateView(ctx, sh.TransactionID)

	res := Result{Outcome: OutcomeRecorded, Phase: phase, TransactionID: sh.TransactionID, ShipmentID: sh.ID}
	switch {
	case stale:
		log.Info("stale status after delivery, not notifying")
		return res, nil
	case phase == models.PhaseException:
		log.Warn("carrier reported exception")
		return res, nil
	case !notify:
		return res, nil
	}

	occurredAt := now
	if upd.Result.StatusAt != nil {
		occurredAt = upd.Result.StatusAt.UTC()
	}
	msg := messages.PhaseChanged{
		EventID:        uuid.NewString(),
		TransactionID:  sh.TransactionID,
		ShipmentID:     sh.ID,
		Direction:      sh.Direction,
		Phase:          phase,
		Carrier:        sh.Carrier,
		TrackingNumber: sh.TrackingNumber,
		TrackingURL:    sh.TrackingURL,
		StatusRaw:      status,
		OccurredAt:     occurredAt,
	}
	if err := s.producer.PublishJSON(ctx, s.topic, sh.TransactionID, msg); err != nil {
		return Result{}, errors.Wrap(err, "publish phase changed")
	}
	log.Info("phase change published", "event_id", msg.EventID)

	res.Outcome = OutcomePublished
	return res, nil
}

func (s *Service) invalidateView(ctx context.Context, transactionID string) {
	if s.views == nil {
		return
	}
	if err := s.views.Delete(ctx, transactions.ViewKey(transactionID)); err != nil {
		slog.Warn("invalidate transaction view", "transaction_id", transactionID, "error", err.Error())
	}
}
