package carrier

import (
	"context"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
)

type TrackingResult struct {
	Carrier        string
	TrackingNumber string
	// Status: сырой статус перевозчика, нормализация делается выше.
	Status   string
	Details  string
	StatusAt *time.Time
	Events   []*models.ShipmentEvent
}

type Client interface {
	GetTracking(ctx context.Context, carrierCode, trackingNumber string) (TrackingResult, error)
}
