package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type ShipmentUpdate struct {
	ShipmentID uint64

	CheckedAt time.Time

	Status   string
	Phase    models.Phase
	StatusAt *time.Time

	// Нулевое значение: не трогать next_check_at (обновление пришло вебхуком).
	NextCheckAt time.Time

	Events []*models.ShipmentEvent

	Error *string
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, shipment_id, status, status_raw, phase,
  event_time, location, message, payload, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.ShipmentEvent
	for rows.Next() {
		var e models.ShipmentEvent
		var phase, location, message string
		var payload any
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.Status, &e.StatusRaw, &phase,
			&e.EventTime, &location, &message, &payload, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Phase = models.Phase(phase)
		if location != "" {
			e.Location = &location
		}
		if message != "" {
			e.Message = &message
		}
		if payload != nil {
			b, _ := json.Marshal(payload)
			s := string(b)
			e.PayloadJSON = &s
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ApplyShipmentStatus(ctx context.Context, upd ShipmentUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var nextCheckAt *time.Time
	if !upd.NextCheckAt.IsZero() {
		t := upd.NextCheckAt.UTC()
		nextCheckAt = &t
	}

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = COALESCE($4, next_check_at),
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), *upd.Error, nextCheckAt)
		if err != nil {
			return errors.Wrap(err, "update shipment (error)")
		}
	} else {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  phase = $4,
  status_at = $5,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = COALESCE($6, next_check_at),
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), upd.Status, string(upd.Phase), upd.StatusAt, nextCheckAt)
		if err != nil {
			return errors.Wrap(err, "update shipment (ok)")
		}

		for _, e := range upd.Events {
			var payload any
			if e.PayloadJSON != nil && *e.PayloadJSON != "" {
				var m any
				if json.Unmarshal([]byte(*e.PayloadJSON), &m) == nil {
					payload = m
				}
			}

			loc := ""
			if e.Location != nil {
				loc = *e.Location
			}
			msgText := ""
			if e.Message != nil {
				msgText = *e.Message
			}

			_, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, status, status_raw, phase, event_time, location, message, payload, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())
ON CONFLICT (shipment_id, status_raw, event_time, location) DO NOTHING
`, upd.ShipmentID, e.Status, e.StatusRaw, string(e.Phase), e.EventTime.UTC(), loc, msgText, payload)
			if err != nil {
				return errors.Wrap(err, "insert shipment event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
