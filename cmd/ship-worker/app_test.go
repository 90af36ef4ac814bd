package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ShipNotify/config"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier/shippohttp"
	"github.com/BearBump/ShipNotify/internal/integrations/sms"
	"github.com/BearBump/ShipNotify/internal/integrations/sms/logsender"
	"github.com/BearBump/ShipNotify/internal/integrations/sms/twiliohttp"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/services/poller"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{}

func (fakeStore) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	return []*models.Shipment{}, nil
}
func (fakeStore) ApplyShipmentStatus(ctx context.Context, upd pgstore.ShipmentUpdate) error {
	return nil
}
func (fakeStore) FindShipmentByTracking(ctx context.Context, carrier, trackingNumber string) (*models.Shipment, error) {
	return nil, pgstore.ErrNotFound
}
func (fakeStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return nil, pgstore.ErrNotFound
}
func (fakeStore) ClaimNotification(ctx context.Context, transactionID, key string, at time.Time) (bool, error) {
	return true, nil
}
func (fakeStore) ReleaseNotification(ctx context.Context, transactionID, key string) error {
	return nil
}
func (fakeStore) ListNotifications(ctx context.Context, transactionID string) ([]models.NotificationFlag, error) {
	return nil, nil
}
func (fakeStore) ScheduleNotifyRetry(ctx context.Context, shipmentID uint64, at time.Time) error {
	return nil
}
func (fakeStore) ClearNotifyRetry(ctx context.Context, shipmentID uint64) error {
	return nil
}

type noopProducer struct {
	closed bool
}

func (*noopProducer) PublishJSON(ctx context.Context, topic, key string, v any) error { return nil }

func (p *noopProducer) Close() error {
	p.closed = true
	return nil
}

type blockingConsumer struct {
	closed bool
}

func (c *blockingConsumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *blockingConsumer) Close() error {
	c.closed = true
	return nil
}

func TestDefaultWorkerFactories_SelectCarrierClient(t *testing.T) {
	f := defaultWorkerFactories()

	c := f.newCarrierClient(&config.Config{ShipNotify: config.ShipNotifyConfig{
		CarrierMode:   "shippo",
		ShippoBaseURL: "http://localhost:9000",
		ShippoAPIKey:  "k",
	}})
	_, ok := c.(*shippohttp.Client)
	require.True(t, ok)

	// Без ключа откатываемся на fake.
	c = f.newCarrierClient(&config.Config{ShipNotify: config.ShipNotifyConfig{CarrierMode: "shippo"}})
	_, ok = c.(*fake.FakeClient)
	require.True(t, ok)

	c = f.newCarrierClient(&config.Config{})
	_, ok = c.(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_SelectSMSSender(t *testing.T) {
	f := defaultWorkerFactories()

	s := f.newSMSSender(&config.Config{ShipNotify: config.ShipNotifyConfig{
		SMSMode:          "twilio",
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "tok",
		TwilioFrom:       "+15550000000",
	}})
	_, ok := s.(*twiliohttp.Client)
	require.True(t, ok)

	s = f.newSMSSender(&config.Config{ShipNotify: config.ShipNotifyConfig{SMSMode: "twilio"}})
	_, ok = s.(*logsender.Sender)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ClientsNonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	c := f.newConsumer(cfg)
	require.NotNil(t, c)
	_ = c.Close()

	rd := f.newRedis(cfg)
	require.NotNil(t, rd.views)
	require.NotNil(t, rd.guard)
	require.NotNil(t, rd.rl)
	rd.close()
}

func TestRunShipWorker_ContextCanceled(t *testing.T) {
	calledClose := false
	consumer := &blockingConsumer{}
	producer := &noopProducer{}

	f := workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			return fakeStore{}, func() { calledClose = true }, nil
		},
		newProducer:      func(cfg *config.Config) webhooks.Producer { return producer },
		newConsumer:      func(cfg *config.Config) messageConsumer { return consumer },
		newRedis:         func(cfg *config.Config) redisDeps { return redisDeps{} },
		newCarrierClient: func(cfg *config.Config) carrier.Client { return fake.New() },
		newSMSSender:     func(cfg *config.Config) sms.Sender { return logsender.New() },
	}

	cfg := &config.Config{
		ShipNotify: config.ShipNotifyConfig{
			WorkerPollIntervalSeconds: 1,
			WorkerHTTPAddr:            "127.0.0.1:0",
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunShipWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
	require.True(t, consumer.closed)
	require.True(t, producer.closed)
}

func TestRunShipWorker_BadFlagStore(t *testing.T) {
	f := workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			return fakeStore{}, nil, nil
		},
	}
	cfg := &config.Config{ShipNotify: config.ShipNotifyConfig{FlagStore: "etcd"}}
	require.Error(t, RunShipWorker(context.Background(), cfg, f))
}

func TestWorkerRouter(t *testing.T) {
	p := poller.New(fakeStore{}, fake.New(), nil, nil)
	cfg := &config.Config{ShipNotify: config.ShipNotifyConfig{
		WorkerBatchSize: 50,
		TwilioAuthToken: "secret-token",
	}}
	h := newWorkerRouter(workerHTTPOpts{poller: p, cfg: cfg})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "secret-token")
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, float64(50), out["batchSize"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	require.JSONEq(t, `{"triggered":true}`, w.Body.String())
	require.NotNil(t, p.Stats().LastTriggerAt)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Contains(t, w.Body.String(), "totalClaimed")
}
