package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/pkg/errors"
)

// ClaimNotification: атомарный compare-and-set флага: true получает только
// первый вызвавший для пары (transaction, key).
func (s *Storage) ClaimNotification(ctx context.Context, transactionID, key string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO notification_flags (transaction_id, flag_key, sent_at)
VALUES ($1,$2,$3)
ON CONFLICT (transaction_id, flag_key) DO NOTHING
`, transactionID, key, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "claim notification")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) ReleaseNotification(ctx context.Context, transactionID, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM notification_flags WHERE transaction_id = $1 AND flag_key = $2`, transactionID, key)
	return errors.Wrap(err, "release notification")
}

func (s *Storage) ListNotifications(ctx context.Context, transactionID string) ([]models.NotificationFlag, error) {
	rows, err := s.db.Query(ctx, `
SELECT transaction_id, flag_key, sent_at
FROM notification_flags
WHERE transaction_id = $1
ORDER BY sent_at
`, transactionID)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := []models.NotificationFlag{}
	for rows.Next() {
		var f models.NotificationFlag
		if err := rows.Scan(&f.TransactionID, &f.Key, &f.SentAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, f)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
