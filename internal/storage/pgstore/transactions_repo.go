package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) UpsertTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error) {
	now := time.Now().UTC()
	var out models.Transaction
	err := s.db.QueryRow(ctx, `
INSERT INTO transactions (id, listing_title, borrower_phone, lender_phone, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (id) DO UPDATE SET
  listing_title = EXCLUDED.listing_title,
  borrower_phone = EXCLUDED.borrower_phone,
  lender_phone = EXCLUDED.lender_phone,
  updated_at = EXCLUDED.updated_at
RETURNING id, listing_title, borrower_phone, lender_phone, created_at, updated_at
`, t.ID, t.ListingTitle, t.BorrowerPhone, t.LenderPhone, now).Scan(
		&out.ID, &out.ListingTitle, &out.BorrowerPhone, &out.LenderPhone, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "upsert transaction")
	}
	return &out, nil
}

// GetTransaction возвращает ErrNotFound, если транзакции нет.
func (s *Storage) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRow(ctx, `
SELECT id, listing_title, borrower_phone, lender_phone, created_at, updated_at
FROM transactions
WHERE id = $1
`, id).Scan(&t.ID, &t.ListingTitle, &t.BorrowerPhone, &t.LenderPhone, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select transaction")
	}
	return &t, nil
}
