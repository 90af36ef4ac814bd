package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validatorv10 "github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
)

type WebhookService interface {
	HandleTrackingUpdate(ctx context.Context, upd webhooks.Update) (webhooks.Result, error)
}

type TransactionService interface {
	UpsertTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error)
	AttachShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error)
	GetView(ctx context.Context, id string) (*models.TransactionView, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error)
}

type Options struct {
	Webhooks     WebhookService
	Transactions TransactionService

	WebhookSecret   string
	WebhookTestMode bool

	AdminToken string

	// Ready проверяет зависимости для /readyz; при nil всегда готов.
	Ready func(ctx context.Context) error

	SwaggerPath string
	Now         func() time.Time
}

type handlers struct {
	webhooks     WebhookService
	transactions TransactionService

	webhookSecret   string
	webhookTestMode bool

	validate *validatorv10.Validate
	now      func() time.Time
}

func NewRouter(opts Options) http.Handler {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	h := &handlers{
		webhooks:        opts.Webhooks,
		transactions:    opts.Transactions,
		webhookSecret:   opts.WebhookSecret,
		webhookTestMode: opts.WebhookTestMode,
		validate:        newValidator(),
		now:             now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if opts.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.SwaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.SwaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	r.Route("/api", func(r chi.Router) {
		if h.webhooks != nil {
			r.Post("/webhooks/shippo", h.shippoWebhook)
		}
		if h.transactions != nil {
			r.Group(func(r chi.Router) {
				r.Use(requireAdminToken(opts.AdminToken))
				r.Put("/transactions/{id}", h.upsertTransaction)
				r.Put("/transactions/{id}/shipments/{direction}", h.attachShipment)
				r.Get("/transactions/{id}", h.getTransaction)
				r.Get("/shipments/{id}/events", h.listShipmentEvents)
			})
		}
	})

	return r
}
