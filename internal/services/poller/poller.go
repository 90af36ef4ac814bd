package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipNotify/internal/carrierstatus"
	"github.com/BearBump/ShipNotify/internal/integrations/carrier"
	"github.com/BearBump/ShipNotify/internal/models"
	"github.com/BearBump/ShipNotify/internal/services/webhooks"
	"github.com/BearBump/ShipNotify/internal/storage/pgstore"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error)
	ApplyShipmentStatus(ctx context.Context, upd pgstore.ShipmentUpdate) error
}

// Updater: общий путь для вебхуков и опроса (webhooks.Service).
type Updater interface {
	HandleTrackingUpdate(ctx context.Context, upd webhooks.Update) (webhooks.Result, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Poller struct {
	repo    Repository
	carrier carrier.Client
	updater Updater
	rl      RateLimiter

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	carrierRateLimits  map[string]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	totalRateLimited    atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, carrier carrier.Client, updater Updater, rl RateLimiter) *Poller {
	return &Poller{
		repo:               repo,
		carrier:            carrier,
		updater:            updater,
		rl:                 rl,
		planner:            NewPlanner(DefaultPlannerConfig(), nil),
		pollInterval:       30 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		carrierRateLimits:  map[string]int64{},
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// WithCarrierRateLimits переопределяет общий лимит для отдельных перевозчиков.
func (p *Poller) WithCarrierRateLimits(perMin map[string]int) *Poller {
	for code, n := range perMin {
		if n > 0 {
			p.carrierRateLimits[strings.ToLower(code)] = int64(n)
		}
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	LastCycleAt      *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt    *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed     int64      `json:"totalClaimed"`
	TotalProcessed   int64      `json:"totalProcessed"`
	TotalErrors      int64      `json:"totalErrors"`
	TotalRateLimited int64      `json:"totalRateLimited"`
	InFlight         int64      `json:"inFlight"`
	LastError        string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:        time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:     p.totalClaimed.Load(),
		TotalProcessed:   p.totalProcessed.Load(),
		TotalErrors:      p.totalErrors.Load(),
		TotalRateLimited: p.totalRateLimited.Load(),
		InFlight:         p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueShipments(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		p.setLastError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	// Ошибка одного отправления не должна отменять остальные, поэтому
	// горутины всегда возвращают nil, а ошибки считаются в статистике.
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, sh := range items {
		p.inFlight.Add(1)
		g.Go(func() error {
			defer p.inFlight.Add(-1)
			if err := p.processOne(ctx, sh); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				slog.Error("process shipment", "shipment_id", sh.ID, "tracking_number", sh.TrackingNumber, "error", err.Error())
			}
			p.totalProcessed.Add(1)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) carrierLimit(code string) int64 {
	if n, ok := p.carrierRateLimits[strings.ToLower(code)]; ok {
		return n
	}
	return p.rateLimitPerMinute
}

func (p *Poller) processOne(ctx context.Context, sh *models.Shipment) error {
	now := time.Now().UTC()

	if p.rl != nil && p.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:carrier:%s:%s", strings.ToLower(sh.Carrier), now.Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, minuteKey, p.carrierLimit(sh.Carrier), 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Не ходим к перевозчику: отправление вернётся в выборку по истечении lease.
			slog.Warn("carrier rate limit exceeded", "carrier", sh.Carrier, "count", n)
			p.totalRateLimited.Add(1)
			return nil
		}
	}

	res, err := p.carrier.GetTracking(ctx, sh.Carrier, sh.TrackingNumber)
	if err != nil {
		e := err.Error()
		nextFail := sh.CheckFailCount + 1
		upd := pgstore.ShipmentUpdate{
			ShipmentID:  sh.ID,
			CheckedAt:   now,
			NextCheckAt: now.Add(p.planner.BackoffDelay(nextFail)),
			Error:       &e,
		}
		if applyErr := p.repo.ApplyShipmentStatus(ctx, upd); applyErr != nil {
			return errors.Wrap(applyErr, "store carrier error")
		}
		return errors.Wrapf(err, "get tracking %s/%s", sh.Carrier, sh.TrackingNumber)
	}

	phase, _ := carrierstatus.NotificationPhase(res.Status)
	_, err = p.updater.HandleTrackingUpdate(ctx, webhooks.Update{
		Carrier:        sh.Carrier,
		TrackingNumber: sh.TrackingNumber,
		Result:         res,
		NextCheckAt:    now.Add(p.planner.NextCheckDelay(phase)),
		Source:         "poller",
	})
	return err
}
