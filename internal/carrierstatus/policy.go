package carrierstatus

import "github.com/BearBump/ShipNotify/internal/models"

const (
	flagFirstScan = "first-scan"
	flagDelivered = "delivered"
)

// NotificationPhase решает, нужна ли SMS для статуса. Delivered проверяем первым,
// чтобы DELIVERED_* никогда не ушёл как "shipped".
func NotificationPhase(status string) (models.Phase, bool) {
	if IsDeliveredStatus(status) {
		return models.PhaseDelivered, true
	}
	if IsShippedStatus(status) {
		return models.PhaseShipped, true
	}
	return ToPhase(status), false
}

// FlagKey возвращает имя idempotency-флага, "" если фаза не уведомляет.
func FlagKey(direction models.Direction, phase models.Phase) string {
	if !direction.Valid() {
		return ""
	}
	switch phase {
	case models.PhaseShipped:
		return string(direction) + "." + flagFirstScan
	case models.PhaseDelivered:
		return string(direction) + "." + flagDelivered
	default:
		return ""
	}
}
