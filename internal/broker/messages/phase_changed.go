package messages

import (
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
)

// PhaseChanged публикуется на каждый статус, который может требовать SMS.
// Дедупликация на стороне notifier (таблица флагов).
type PhaseChanged struct {
	EventID        string           `json:"event_id"`
	TransactionID  string           `json:"transaction_id"`
	ShipmentID     uint64           `json:"shipment_id"`
	Direction      models.Direction `json:"direction"`
	Phase          models.Phase     `json:"phase"`
	Carrier        string           `json:"carrier"`
	TrackingNumber string           `json:"tracking_number"`
	TrackingURL    string           `json:"tracking_url,omitempty"`
	StatusRaw      string           `json:"status_raw"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
