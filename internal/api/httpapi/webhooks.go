package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BearBump/ShipNotify/internal/api/httpapi/webhookauth"
	"github.com/BearBump/ShipNotify/internal/carrierstatus"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier/shippohttp"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/pkg/errors"
)

const shippoTrackUpdated = "track_updated"

// shippoWebhook: тело вебхука Shippo track_updated.
type shippoWebhook struct {
	Event string           `json:"event"`
	Test  bool             `json:"test"`
	Data  shippohttp.Track `json:"data"`
}

func (h *handlers) shippoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	if h.webhookTestMode && r.URL.Query().Get("test") == "1" {
		slog.Warn("webhook signature check skipped (test mode)", "remote", r.RemoteAddr)
	} else {
		err := webhookauth.Verify(webhookauth.Input{
			Secret:          h.webhookSecret,
			TimestampHeader: r.Header.Get(webhookauth.TimestampHeader),
			SignatureHeader: r.Header.Get(webhookauth.SignatureHeader),
			Body:            body,
			Now:             h.now(),
		})
		if err != nil {
			switch {
			case errors.Is(err, webhookauth.ErrInvalidTimestamp),
				errors.Is(err, webhookauth.ErrTimestampOutsideWindow):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusUnauthorized, err.Error())
			}
			return
		}
	}

	var payload shippoWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	payload.Data.TrackingNumber = strings.TrimSpace(payload.Data.TrackingNumber)
	payload.Data.Carrier = strings.ToLower(strings.TrimSpace(payload.Data.Carrier))

	res := payload.Data.ToResult(h.now())
	// прочие события Shippo (transaction_created и т.п.) не валидируем
	if payload.Event != "" && payload.Event != shippoTrackUpdated {
		phase, _ := carrierstatus.NotificationPhase(res.Status)
		writeJSON(w, http.StatusOK, webhooks.Result{Outcome: webhooks.OutcomeIgnored, Phase: phase})
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return
	}

	out, err := h.webhooks.HandleTrackingUpdate(r.Context(), webhooks.Update{
		Carrier:        payload.Data.Carrier,
		TrackingNumber: payload.Data.TrackingNumber,
		Result:         res,
		Source:         "webhook",
	})
	if err != nil {
		if errors.Is(err, webhooks.ErrInvalidUpdate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("handle tracking webhook", "tracking_number", payload.Data.TrackingNumber, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
