// Package carrierstatus приводит статусы перевозчиков (Shippo/USPS/UPS/FedEx/DHL)
// к стадиям доставки приложения и решает, какая стадия требует SMS.
package carrierstatus

import (
	"strings"

	"github.com/BearBump/ShipNotify/internal/models"
)

const deliveredPrefix = "DELIVERED"

// Наборы статусов входят в публичный контракт, вызывающий код может их читать и расширять.
var (
	ShippedStatuses = map[string]struct{}{
		"ACCEPTED":    {},
		"ACCEPTANCE":  {},
		"IN_TRANSIT":  {},
		"TRANSIT":     {},
		"PICKUP":      {},
		"PRE_TRANSIT": {},
	}
	DeliveredStatuses = map[string]struct{}{
		"DELIVERED": {},
		"DELIVERY":  {},
	}
	ExceptionStatuses = map[string]struct{}{
		"FAILURE":   {},
		"RETURNED":  {},
		"EXCEPTION": {},
		"UNKNOWN":   {},
	}
)

func Normalize(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func ToPhase(status string) models.Phase {
	s := Normalize(status)
	if _, ok := ShippedStatuses[s]; ok {
		return models.PhaseShipped
	}
	if _, ok := DeliveredStatuses[s]; ok {
		return models.PhaseDelivered
	}
	if _, ok := ExceptionStatuses[s]; ok {
		return models.PhaseException
	}
	return models.PhaseOther
}

// ToPhaseRaw — ToPhase для значений из декодированного JSON (nil -> OTHER).
func ToPhaseRaw(v any) models.Phase {
	return ToPhase(rawString(v))
}

func IsShippedStatus(status string) bool {
	return ToPhase(status) == models.PhaseShipped
}

// IsDeliveredStatus шире, чем ToPhase: перевозчики шлют варианты вроде
// DELIVERED_TO_ACCESS_POINT, которых нет в DeliveredStatuses.
// ToPhase для них остаётся OTHER.
func IsDeliveredStatus(status string) bool {
	s := Normalize(status)
	if s == "" {
		return false
	}
	if _, ok := DeliveredStatuses[s]; ok {
		return true
	}
	return strings.HasPrefix(s, deliveredPrefix)
}

func rawString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
