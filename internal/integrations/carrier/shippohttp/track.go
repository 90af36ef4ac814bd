package shippohttp

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/ShipNotify/internal/carrierstatus"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/BearBump/ShipNotify/internal/models"
)

// Track: объект трекинга Shippo; тот же формат приходит в data вебхука track_updated.
type Track struct {
	Carrier         string           `json:"carrier"`
	TrackingNumber  string           `json:"tracking_number" validate:"required"`
	TrackingStatus  *TrackingStatus  `json:"tracking_status"`
	TrackingHistory []TrackingStatus `json:"tracking_history,omitempty"`
}

type TrackingStatus struct {
	Status        string     `json:"status"`
	StatusDetails string     `json:"status_details"`
	StatusDate    *time.Time `json:"status_date"`
	Location      *Location  `json:"location"`
}

type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

func (l *Location) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{l.City, l.State, l.Zip, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ToResult переводит Track в TrackingResult; история дополняется текущим статусом,
// если его там нет.
func (t Track) ToResult(now time.Time) carrier.TrackingResult {
	res := carrier.TrackingResult{
		Carrier:        t.Carrier,
		TrackingNumber: t.TrackingNumber,
	}
	if t.TrackingStatus != nil {
		res.Status = t.TrackingStatus.Status
		res.Details = t.TrackingStatus.StatusDetails
		res.StatusAt = t.TrackingStatus.StatusDate
	}

	history := t.TrackingHistory
	if t.TrackingStatus != nil && t.TrackingStatus.Status != "" && !containsStatus(history, *t.TrackingStatus) {
		history = append(append([]TrackingStatus{}, history...), *t.TrackingStatus)
	}
	for _, h := range history {
		res.Events = append(res.Events, h.toEvent(now))
	}
	return res
}

func (s TrackingStatus) toEvent(now time.Time) *models.ShipmentEvent {
	evTime := now
	if s.StatusDate != nil {
		evTime = s.StatusDate.UTC()
	}
	var payload *string
	if b, err := json.Marshal(s); err == nil {
		p := string(b)
		payload = &p
	}
	return &models.ShipmentEvent{
		Status:      carrierstatus.Normalize(s.Status),
		StatusRaw:   s.Status,
		Phase:       carrierstatus.ToPhase(s.Status),
		EventTime:   evTime,
		Location:    strPtr(s.Location.String()),
		Message:     strPtr(s.StatusDetails),
		PayloadJSON: payload,
	}
}

func containsStatus(list []TrackingStatus, s TrackingStatus) bool {
	for _, h := range list {
		if h.Status != s.Status {
			continue
		}
		if h.StatusDate == nil && s.StatusDate == nil {
			return true
		}
		if h.StatusDate != nil && s.StatusDate != nil && h.StatusDate.Equal(*s.StatusDate) {
			return true
		}
	}
	return false
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
