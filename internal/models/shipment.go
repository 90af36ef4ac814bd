package models

import "time"

// Phase — нормализованная стадия доставки.
type Phase string

const (
	PhaseShipped   Phase = "SHIPPED"
	PhaseDelivered Phase = "DELIVERED"
	PhaseException Phase = "EXCEPTION"
	PhaseOther     Phase = "OTHER"
)

type Direction string

const (
	// DirectionOutbound: от владельца к арендатору.
	DirectionOutbound Direction = "outbound"
	// DirectionReturn: возврат вещи владельцу.
	DirectionReturn Direction = "return"
)

func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionReturn
}

type Shipment struct {
	ID             uint64     `json:"id"`
	TransactionID  string     `json:"transaction_id"`
	Direction      Direction  `json:"direction"`
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	TrackingURL    string     `json:"tracking_url,omitempty"`
	Status         string     `json:"status"`
	Phase          Phase      `json:"phase"`
	StatusAt       *time.Time `json:"status_at,omitempty"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	NextCheckAt    time.Time  `json:"next_check_at"`
	CheckFailCount int32      `json:"check_fail_count"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ShipmentEvent struct {
	ID          uint64    `json:"id"`
	ShipmentID  uint64    `json:"shipment_id"`
	Status      string    `json:"status"`
	StatusRaw   string    `json:"status_raw"`
	Phase       Phase     `json:"phase"`
	EventTime   time.Time `json:"event_time"`
	Location    *string   `json:"location,omitempty"`
	Message     *string   `json:"message,omitempty"`
	PayloadJSON *string   `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type ShipmentInput struct {
	TransactionID  string
	Direction      Direction
	Carrier        string
	TrackingNumber string
	TrackingURL    string
}
