package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipNotify/config"
	"github.com/BearBump/ShipNotify/internal/api/httpapi"
	"github.com/BearBump/ShipNotify/internal/broker/kafka"
	"github.com/BearBump/ShipNotify/internal/cache/rediscache"
	"github.com/BearBump/ShipNotify/internal/logging"
	"github.com/BearBump/ShipNotify/internal/services/transactions"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/BearBump/ShipNotify/internal/storage/flagstore"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
)

type shipAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    shipAPIOpts
	closers []func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logging.Setup(cfg.Log)

	httpAddr := cfg.ShipNotify.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	viewTTL := time.Duration(cfg.ShipNotify.ViewCacheTTLSeconds) * time.Second
	if viewTTL <= 0 {
		viewTTL = 10 * time.Minute
	}
	if cfg.ShipNotify.WebhookSecret == "" && !cfg.ShipNotify.WebhookTestMode {
		slog.Warn("webhook secret is empty, all signed webhooks will be rejected")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st := mustOpenPostgresWithRetry(cfg.PostgresConnString(), 60*time.Second)
	rc := rediscache.New(cfg.RedisAddr())
	producer := kafka.NewProducer(cfg.KafkaBrokers())

	flags, err := flagstore.Open(ctx, cfg, st)
	if err != nil {
		panic(err)
	}

	txSvc := transactions.New(st, flags, rc, viewTTL)
	whSvc := webhooks.New(st, producer, cfg.PhaseChangedTopic(), rc)

	handler := httpapi.NewRouter(httpapi.Options{
		Webhooks:        whSvc,
		Transactions:    txSvc,
		WebhookSecret:   cfg.ShipNotify.WebhookSecret,
		WebhookTestMode: cfg.ShipNotify.WebhookTestMode,
		AdminToken:      cfg.ShipNotify.AdminToken,
		Ready: func(ctx context.Context) error {
			if err := st.Ping(ctx); err != nil {
				return err
			}
			return rc.Ping(ctx)
		},
		SwaggerPath: os.Getenv("swaggerPath"),
	})

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr: httpAddr,
			handler:  handler,
		},
		closers: []func(){
			func() { _ = producer.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts)
}
