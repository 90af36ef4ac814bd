package httpapi

import (
	"net/http"
	"strconv"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/go-chi/chi/v5"
)

type upsertTransactionRequest struct {
	ListingTitle  string `json:"listing_title" validate:"max=200"`
	BorrowerPhone string `json:"borrower_phone" validate:"omitempty,e164"`
	LenderPhone   string `json:"lender_phone" validate:"omitempty,e164"`
}

type attachShipmentRequest struct {
	Carrier        string `json:"carrier" validate:"required,max=64"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=128"`
	TrackingURL    string `json:"tracking_url" validate:"omitempty,url"`
}

func (h *handlers) validTransactionID(w http.ResponseWriter, id string) bool {
	if err := h.validate.Var(id, "required,uuid"); err != nil {
		writeError(w, http.StatusBadRequest, "transaction id must be a uuid")
		return false
	}
	return true
}

func (h *handlers) upsertTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validTransactionID(w, id) {
		return
	}
	var req upsertTransactionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	tx, err := h.transactions.UpsertTransaction(r.Context(), models.Transaction{
		ID:            id,
		ListingTitle:  req.ListingTitle,
		BorrowerPhone: req.BorrowerPhone,
		LenderPhone:   req.LenderPhone,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handlers) attachShipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validTransactionID(w, id) {
		return
	}
	direction := models.Direction(chi.URLParam(r, "direction"))
	if !direction.Valid() {
		writeError(w, http.StatusBadRequest, "direction must be outbound or return")
		return
	}
	var req attachShipmentRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	sh, err := h.transactions.AttachShipment(r.Context(), models.ShipmentInput{
		TransactionID:  id,
		Direction:      direction,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (h *handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.validTransactionID(w, id) {
		return
	}
	v, err := h.transactions.GetView(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) listShipmentEvents(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || shipmentID == 0 {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := h.transactions.ListShipmentEvents(r.Context(), shipmentID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if evs == nil {
		evs = []*models.ShipmentEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}
