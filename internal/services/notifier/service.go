package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/BearBump/ShipNotify/internal/broker/messages"
	"github.com/BearBump/ShipNotify/internal/carrierstatus"
	"github.com/BearBump/ShipNotify/internal/integrations/sms"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"github.com/pkg/errors"
)

type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// FlagStore хранит долговременный флаг "SMS уже отправлено" (Postgres или DynamoDB).
type FlagStore interface {
	ClaimNotification(ctx context.Context, transactionID, key string, at time.Time) (bool, error)
	ReleaseNotification(ctx context.Context, transactionID, key string) error
}

type TransactionGetter interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
}

type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// RetryScheduler возвращает отправку в очередь поллера: после снятия флага
// трек перепроверяется к at (в том числе уже DELIVERED) и событие публикуется заново.
type RetryScheduler interface {
	ScheduleNotifyRetry(ctx context.Context, shipmentID uint64, at time.Time) error
	ClearNotifyRetry(ctx context.Context, shipmentID uint64) error
}

// Снятие флага не должно зависеть от отмены контекста сообщения.
const releaseTimeout = 5 * time.Second

type Config struct {
	GuardTTL         time.Duration // default: 5 minutes
	RateLimitPerHour int64         // default: 10
	SendAttempts     int           // default: 3
	RetryDelay       time.Duration // default: 15 minutes
	Backoff          BackoffConfig
	PublicBaseURL    string
}

func DefaultConfig() Config {
	return Config{
		GuardTTL:         5 * time.Minute,
		RateLimitPerHour: 10,
		SendAttempts:     3,
		RetryDelay:       15 * time.Minute,
		Backoff:          DefaultBackoff(),
	}
}

type Service struct {
	flags   FlagStore
	txs     TransactionGetter
	guard   Guard
	rl      RateLimiter
	retries RetryScheduler
	sender  sms.Sender
	cfg     Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(flags FlagStore, txs TransactionGetter, guard Guard, rl RateLimiter, sender sms.Sender, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = def.GuardTTL
	}
	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = def.RateLimitPerHour
	}
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = def.SendAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Service{
		flags:  flags,
		txs:    txs,
		guard:  guard,
		rl:     rl,
		sender: sender,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) WithRetryScheduler(r RetryScheduler) *Service {
	s.retries = r
	return s
}

func GuardKey(transactionID, flag string) string {
	return fmt.Sprintf("notify:%s:%s", transactionID, flag)
}

func rateLimitKey(phone string, now time.Time) string {
	return fmt.Sprintf("rl:sms:%s:%s", phone, now.Format("2006010215"))
}

// HandleMessage это обработчик для kafka.Consumer. Ошибка возвращается только
// на инфраструктурных сбоях: тогда offset не коммитится и сообщение придёт снова.
func (s *Service) HandleMessage(ctx context.Context, key, value []byte) error {
	var msg messages.PhaseChanged
	if err := json.Unmarshal(value, &msg); err != nil {
		slog.Error("skip malformed phase changed message", "key", string(key), "error", err.Error())
		return nil
	}
	_, err := s.HandlePhaseChanged(ctx, msg)
	return err
}

func (s *Service) HandlePhaseChanged(ctx context.Context, msg messages.PhaseChanged) (Outcome, error) {
	flag := carrierstatus.FlagKey(msg.Direction, msg.Phase)
	log := slog.With(
		"event_id", msg.EventID,
		"transaction_id", msg.TransactionID,
		"direction", msg.Direction,
		"phase", msg.Phase,
		"flag", flag,
	)
	if flag == "" || msg.TransactionID == "" {
		log.Info("phase does not notify")
		return OutcomeSkipped, nil
	}

	guardKey := GuardKey(msg.TransactionID, flag)
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, guardKey, s.cfg.GuardTTL)
		if err != nil {
			// Redis недоступен: идём дальше, дубль всё равно отсечёт флаг в БД.
			log.Warn("notify guard unavailable", "error", err.Error())
		} else if !ok {
			log.Info("duplicate delivery in flight")
			return OutcomeDuplicate, nil
		}
	}

	claimed, err := s.flags.ClaimNotification(ctx, msg.TransactionID, flag, s.now())
	if err != nil {
		s.releaseGuard(ctx, guardKey)
		return OutcomeFailed, errors.Wrap(err, "claim notification flag")
	}
	if !claimed {
		log.Info("notification already sent")
		s.clearRetry(ctx, msg.ShipmentID)
		return OutcomeDuplicate, nil
	}

	tx, err := s.txs.GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, pgstore.ErrNotFound) {
		log.Warn("transaction not found")
		s.release(ctx, msg.TransactionID, flag, guardKey)
		return OutcomeSkipped, nil
	}
	if err != nil {
		s.release(ctx, msg.TransactionID, flag, guardKey)
		return OutcomeFailed, errors.Wrap(err, "load transaction")
	}

	to := recipient(tx, msg.Direction)
	if to == "" {
		log.Warn("recipient has no phone number")
		return OutcomeSkipped, nil
	}
	log = log.With("to", maskPhone(to))

	if s.rl != nil {
		allowed, n, err := s.rl.Allow(ctx, rateLimitKey(to, s.now()), s.cfg.RateLimitPerHour, time.Hour)
		if err != nil {
			log.Warn("sms rate limiter unavailable", "error", err.Error())
		} else if !allowed {
			log.Warn("sms rate limit exceeded", "count", n)
			s.release(ctx, msg.TransactionID, flag, guardKey)
			// окно лимита часовое, раньше пробовать бессмысленно
			s.scheduleRetry(ctx, msg.ShipmentID, s.now().Truncate(time.Hour).Add(time.Hour))
			return OutcomeSkipped, nil
		}
	}

	body := RenderBody(msg, tx, s.cfg.PublicBaseURL)
	sid, err := s.send(ctx, sms.Message{To: to, Body: body})
	if err != nil {
		log.Error("send sms", "error", err.Error())
		s.release(ctx, msg.TransactionID, flag, guardKey)
		s.scheduleRetry(ctx, msg.ShipmentID, s.now().Add(s.cfg.RetryDelay))
		return OutcomeFailed, nil
	}

	log.Info("sms sent", "sid", sid)
	s.clearRetry(ctx, msg.ShipmentID)
	return OutcomeSent, nil
}

func (s *Service) send(ctx context.Context, m sms.Message) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.SendAttempts; attempt++ {
		sid, err := s.sender.Send(ctx, m)
		if err == nil {
			return sid, nil
		}
		lastErr = err
		if attempt == s.cfg.SendAttempts {
			break
		}
		s.rngMu.Lock()
		d := RetryDelay(attempt, s.cfg.Backoff, s.rng)
		s.rngMu.Unlock()
		slog.Warn("sms send attempt failed", "attempt", attempt, "retry_in", d.String(), "error", err.Error())
		if err := s.sleep(ctx, d); err != nil {
			return "", err
		}
	}
	return "", errors.Wrapf(lastErr, "sms send failed after %d attempts", s.cfg.SendAttempts)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
}

func (s *Service) release(ctx context.Context, transactionID, flag, guardKey string) {
	rctx, cancel := detached(ctx)
	defer cancel()
	if err := s.flags.ReleaseNotification(rctx, transactionID, flag); err != nil {
		slog.Error("release notification flag", "transaction_id", transactionID, "flag", flag, "error", err.Error())
	}
	s.releaseGuard(rctx, guardKey)
}

func (s *Service) scheduleRetry(ctx context.Context, shipmentID uint64, at time.Time) {
	if s.retries == nil || shipmentID == 0 {
		return
	}
	rctx, cancel := detached(ctx)
	defer cancel()
	if err := s.retries.ScheduleNotifyRetry(rctx, shipmentID, at); err != nil {
		slog.Error("schedule notify retry", "shipment_id", shipmentID, "error", err.Error())
		return
	}
	slog.Info("notify retry scheduled", "shipment_id", shipmentID, "at", at)
}

func (s *Service) clearRetry(ctx context.Context, shipmentID uint64) {
	if s.retries == nil || shipmentID == 0 {
		return
	}
	if err := s.retries.ClearNotifyRetry(ctx, shipmentID); err != nil {
		slog.Warn("clear notify retry", "shipment_id", shipmentID, "error", err.Error())
	}
}

func (s *Service) releaseGuard(ctx context.Context, key string) {
	if s.guard == nil {
		return
	}
	rctx, cancel := detached(ctx)
	defer cancel()
	if err := s.guard.Release(rctx, key); err != nil {
		slog.Warn("release notify guard", "key", key, "error", err.Error())
	}
}

// recipient: исходящая посылка едет к арендатору, возврат к владельцу.
func recipient(tx *models.Transaction, d models.Direction) string {
	switch d {
	case models.DirectionOutbound:
		return tx.BorrowerPhone
	case models.DirectionReturn:
		return tx.LenderPhone
	default:
		return ""
	}
}

func maskPhone(p string) string {
	if len(p) <= 4 {
		return "****"
	}
	return "****" + p[len(p)-4:]
}
