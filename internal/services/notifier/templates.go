package notifier

import (
	"fmt"
	"strings"

	"github.com/BearBump/ShipNotify/internal/broker/messages"
	"github.com/BearBump/ShipNotify/internal/models"
)

// RenderBody собирает текст SMS для получателя посылки.
func RenderBody(msg messages.PhaseChanged, tx *models.Transaction, publicBaseURL string) string {
	item := "your rental"
	if tx != nil && strings.TrimSpace(tx.ListingTitle) != "" {
		item = fmt.Sprintf("%q", strings.TrimSpace(tx.ListingTitle))
	}

	var text string
	switch {
	case msg.Direction == models.DirectionOutbound && msg.Phase == models.PhaseShipped:
		text = fmt.Sprintf("Good news! %s is on its way to you.", item)
	case msg.Direction == models.DirectionOutbound && msg.Phase == models.PhaseDelivered:
		text = fmt.Sprintf("%s has been delivered. Enjoy!", capitalize(item))
	case msg.Direction == models.DirectionReturn && msg.Phase == models.PhaseShipped:
		text = fmt.Sprintf("%s is on its way back to you.", capitalize(item))
	case msg.Direction == models.DirectionReturn && msg.Phase == models.PhaseDelivered:
		text = fmt.Sprintf("%s has been returned to you.", capitalize(item))
	default:
		return ""
	}

	if msg.TrackingURL != "" {
		text += " Track it: " + msg.TrackingURL
	}
	if publicBaseURL != "" && tx != nil {
		text += " Details: " + strings.TrimRight(publicBaseURL, "/") + "/transactions/" + tx.ID
	}
	return text
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
