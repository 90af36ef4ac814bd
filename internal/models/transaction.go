package models

import "time"

type Transaction struct {
	ID            string    `json:"id"`
	ListingTitle  string    `json:"listing_title"`
	BorrowerPhone string    `json:"borrower_phone"`
	LenderPhone   string    `json:"lender_phone"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NotificationFlag отмечает, что уведомление по ключу уже отправлено.
// Наличие записи == "sent".
type NotificationFlag struct {
	TransactionID string    `json:"transaction_id"`
	Key           string    `json:"key"`
	SentAt        time.Time `json:"sent_at"`
}

// TransactionView — то, что отдаёт admin API и что кладём в кэш.
type TransactionView struct {
	Transaction   *Transaction       `json:"transaction"`
	Shipments     []*Shipment        `json:"shipments"`
	Notifications []NotificationFlag `json:"notifications"`
}
