package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/ShipNotify/config"
	"github.com/BearBump/ShipNotify/internal/broker/kafka"
	"github.com/BearBump/ShipNotify/internal/cache"
	"github.com/BearBump/ShipNotify/internal/cache/rediscache"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier/shippohttp"
	"github.com/BearBump/ShipNotify/internal/integrations/sms"
	"github.com/BearBump/ShipNotify/internal/integrations/sms/logsender"
	"github.com/BearBump/ShipNotify/internal/integrations/sms/twiliohttp"
	"github.com/BearBump/ShipNotify/internal/services/notifier"
	"github.com/BearBump/ShipNotify/internal/services/poller"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/BearBump/ShipNotify/internal/storage/flagstore"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"golang.org/x/sync/errgroup"
)

// workerStore: всё, что воркеру нужно от Postgres.
type workerStore interface {
	poller.Repository
	webhooks.Repository
	notifier.TransactionGetter
	notifier.RetryScheduler
	flagstore.Store
}

type messageConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error
	Close() error
}

type redisDeps struct {
	views cache.BytesCache
	guard notifier.Guard
	rl    interface {
		poller.RateLimiter
		notifier.RateLimiter
	}
	close func()
}

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo workerStore, closeFn func(), err error)
	newProducer      func(cfg *config.Config) webhooks.Producer
	newConsumer      func(cfg *config.Config) messageConsumer
	newRedis         func(cfg *config.Config) redisDeps
	newCarrierClient func(cfg *config.Config) carrier.Client
	newSMSSender     func(cfg *config.Config) sms.Sender
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgstore.New(cfg.PostgresConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) webhooks.Producer {
			return kafka.NewProducer(cfg.KafkaBrokers())
		},
		newConsumer: func(cfg *config.Config) messageConsumer {
			group := cfg.ShipNotify.KafkaConsumerGroup
			if group == "" {
				group = "ship-worker"
			}
			return kafka.NewConsumer(cfg.KafkaBrokers(), cfg.PhaseChangedTopic(), group)
		},
		newRedis: func(cfg *config.Config) redisDeps {
			addr := cfg.RedisAddr()
			views := rediscache.New(addr)
			guard := rediscache.NewGuard(addr)
			rl := rediscache.NewRateLimiter(addr)
			return redisDeps{
				views: views,
				guard: guard,
				rl:    rl,
				close: func() {
					_ = views.Close()
					_ = guard.Close()
					_ = rl.Close()
				},
			}
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Без ключа Shippo работаем на локальном fake.
			if cfg.ShipNotify.CarrierMode == "shippo" && cfg.ShipNotify.ShippoAPIKey != "" {
				return shippohttp.New(cfg.ShipNotify.ShippoBaseURL, cfg.ShipNotify.ShippoAPIKey)
			}
			return fake.New()
		},
		newSMSSender: func(cfg *config.Config) sms.Sender {
			sn := cfg.ShipNotify
			if sn.SMSMode == "twilio" && sn.TwilioAccountSID != "" && sn.TwilioAuthToken != "" {
				return twiliohttp.New(sn.TwilioBaseURL, sn.TwilioAccountSID, sn.TwilioAuthToken, sn.TwilioFrom)
			}
			return logsender.New()
		},
	}
}

func plannerConfig(cfg *config.Config) poller.PlannerConfig {
	sn := cfg.ShipNotify
	return poller.PlannerConfig{
		ShippedMinDelay: time.Duration(sn.WorkerNextCheckShippedMinSeconds) * time.Second,
		ShippedMaxDelay: time.Duration(sn.WorkerNextCheckShippedMaxSeconds) * time.Second,
		OtherDelay:      time.Duration(sn.WorkerNextCheckOtherSeconds) * time.Second,
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	sn := cfg.ShipNotify
	return notifier.Config{
		GuardTTL:         time.Duration(sn.NotifyGuardTTLSeconds) * time.Second,
		RateLimitPerHour: int64(sn.SMSRateLimitPerHour),
		SendAttempts:     sn.SMSSendAttempts,
		RetryDelay:       time.Duration(sn.NotifyRetrySeconds) * time.Second,
		Backoff:          notifier.DefaultBackoff(),
		PublicBaseURL:    sn.PublicBaseURL,
	}
}

func RunShipWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	sn := cfg.ShipNotify
	pollInterval := time.Duration(sn.WorkerPollIntervalSeconds) * time.Second
	lease := time.Duration(sn.WorkerLeaseSeconds) * time.Second

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	flags, err := flagstore.Open(ctx, cfg, st)
	if err != nil {
		return err
	}

	rd := f.newRedis(cfg)
	if rd.close != nil {
		defer rd.close()
	}

	producer := f.newProducer(cfg)
	if c, ok := producer.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}
	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	updates := webhooks.New(st, producer, cfg.PhaseChangedTopic(), rd.views)

	p := poller.New(st, f.newCarrierClient(cfg), updates, rd.rl).
		WithSettings(pollInterval, sn.WorkerBatchSize, sn.WorkerConcurrency, lease, int64(sn.WorkerRateLimitPerMinute)).
		WithCarrierRateLimits(sn.WorkerCarrierRateLimits).
		WithPlanner(plannerConfig(cfg))

	n := notifier.New(flags, st, rd.guard, rd.rl, f.newSMSSender(cfg), notifierConfig(cfg)).
		WithRetryScheduler(st)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("poller started", "interval", pollInterval.String())
		return p.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("phase changed consumer started", "topic", cfg.PhaseChangedTopic())
		return consumer.Consume(gctx, n.HandleMessage)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    sn.WorkerHTTPAddr,
			swaggerPath: os.Getenv("workerSwaggerPath"),
			poller:      p,
			cfg:         cfg,
			ready: func(ctx context.Context) error {
				if pg, ok := st.(interface{ Ping(context.Context) error }); ok {
					return pg.Ping(ctx)
				}
				return nil
			},
		})
	})
	return g.Wait()
}
