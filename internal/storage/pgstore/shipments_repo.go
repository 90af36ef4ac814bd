package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

const shipmentColumns = `
  id, transaction_id, direction, carrier, tracking_number, tracking_url,
  status, phase,
  status_at, last_checked_at, next_check_at,
  check_fail_count, last_error,
  created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanShipment(row scanner) (*models.Shipment, error) {
	var sh models.Shipment
	var direction, phase string
	if err := row.Scan(
		&sh.ID, &sh.TransactionID, &direction, &sh.Carrier, &sh.TrackingNumber, &sh.TrackingURL,
		&sh.Status, &phase,
		&sh.StatusAt, &sh.LastCheckedAt, &sh.NextCheckAt,
		&sh.CheckFailCount, &sh.LastError,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sh.Direction = models.Direction(direction)
	sh.Phase = models.Phase(phase)
	return &sh, nil
}

func collectShipments(rows pgx.Rows) ([]*models.Shipment, error) {
	defer rows.Close()
	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertShipment привязывает трек к транзакции. Если трек-номер поменялся
// (перевыпуск этикетки), статус сбрасывается и трек сразу становится "due".
func (s *Storage) UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  transaction_id, direction, carrier, tracking_number, tracking_url,
  status, phase, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,'',$6,$7,$7,$7)
ON CONFLICT (transaction_id, direction) DO UPDATE SET
  carrier = EXCLUDED.carrier,
  tracking_url = EXCLUDED.tracking_url,
  status = CASE WHEN shipments.tracking_number = EXCLUDED.tracking_number THEN shipments.status ELSE '' END,
  phase = CASE WHEN shipments.tracking_number = EXCLUDED.tracking_number THEN shipments.phase ELSE EXCLUDED.phase END,
  next_check_at = CASE WHEN shipments.tracking_number = EXCLUDED.tracking_number THEN shipments.next_check_at ELSE EXCLUDED.next_check_at END,
  check_fail_count = CASE WHEN shipments.tracking_number = EXCLUDED.tracking_number THEN shipments.check_fail_count ELSE 0 END,
  tracking_number = EXCLUDED.tracking_number,
  updated_at = EXCLUDED.updated_at
RETURNING `+shipmentColumns,
		in.TransactionID, string(in.Direction), in.Carrier, in.TrackingNumber, in.TrackingURL,
		string(models.PhaseOther), now)
	sh, err := scanShipment(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, errors.Wrapf(ErrConflict, "tracking number %s/%s", in.Carrier, in.TrackingNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "upsert shipment")
	}
	return sh, nil
}

func (s *Storage) ListShipments(ctx context.Context, transactionID string) ([]*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+shipmentColumns+`
FROM shipments
WHERE transaction_id = $1
ORDER BY direction
`, transactionID)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	return collectShipments(rows)
}

// FindShipmentByTracking ищет по трек-номеру; carrier учитывается, только если задан
// (в вебхуках carrier бывает пустым или в другом регистре).
func (s *Storage) FindShipmentByTracking(ctx context.Context, carrier, trackingNumber string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+shipmentColumns+`
FROM shipments
WHERE tracking_number = $1
  AND ($2 = '' OR lower(carrier) = lower($2))
ORDER BY updated_at DESC
LIMIT 1
`, trackingNumber, carrier)
	sh, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment by tracking")
	}
	return sh, nil
}

// ClaimDueShipments выбирает пачку треков, готовых к проверке, и "бронирует" их,
// чтобы они не попадали в повторную выборку, пока воркер их обрабатывает.
// Использует SELECT ... FOR UPDATE SKIP LOCKED. Доставленные треки берутся
// только с notify_retry: SMS о доставке не ушло и событие надо опубликовать снова.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT `+shipmentColumns+`
FROM shipments
WHERE next_check_at <= $1
  AND (phase <> $2 OR notify_retry)
ORDER BY next_check_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), string(models.PhaseDelivered), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}
	picked, err := collectShipments(rows)
	if err != nil {
		return nil, err
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sh := range picked {
		_, err := tx.Exec(ctx, `UPDATE shipments SET next_check_at = $2, updated_at = now() WHERE id = $1`, sh.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		sh.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// ScheduleNotifyRetry ставит трек в очередь поллера не позже at.
func (s *Storage) ScheduleNotifyRetry(ctx context.Context, shipmentID uint64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET notify_retry = TRUE,
    next_check_at = LEAST(next_check_at, $2),
    updated_at = now()
WHERE id = $1
`, shipmentID, at.UTC())
	if err != nil {
		return errors.Wrap(err, "schedule notify retry")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) ClearNotifyRetry(ctx context.Context, shipmentID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE shipments SET notify_retry = FALSE, updated_at = now() WHERE id = $1 AND notify_retry`, shipmentID)
	if err != nil {
		return errors.Wrap(err, "clear notify retry")
	}
	return nil
}
