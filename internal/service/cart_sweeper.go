package service

import (
	"context"
	"fmt"
	"time"

	"supermarket/internal/store"
	"supermarket/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepLockKey = "cart-sweeper"

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Locker is a cluster-wide mutex; redisclient.Client satisfies it
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// CartSweeper periodically marks idle active carts as abandoned
type CartSweeper struct {
	store   *store.Store
	idleTTL time.Duration
	locker  Locker
	sched   *cron.Cron
	logger  *zap.Logger
}

// NewCartSweeper schedules a sweep on the given cron spec. locker may be nil when a
// single instance runs.
func NewCartSweeper(store *store.Store, idleTTL time.Duration, spec string, locker Locker) (*CartSweeper, error) {
	if idleTTL <= 0 {
		return nil, fmt.Errorf("cart idle ttl must be positive, got %s", idleTTL)
	}

	sw := &CartSweeper{
		store:   store,
		idleTTL: idleTTL,
		locker:  locker,
		sched:   cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser)),
		logger:  util.GetLogger(),
	}

	if _, err := sw.sched.AddFunc(spec, sw.run); err != nil {
		return nil, fmt.Errorf("invalid cart sweep schedule %q: %w", spec, err)
	}
	return sw, nil
}

// Start begins running sweeps in the background
func (sw *CartSweeper) Start() {
	sw.logger.Info("Starting cart sweeper", zap.Duration("idle_ttl", sw.idleTTL))
	sw.sched.Start()
}

// Stop stops scheduling sweeps and waits for a running one to finish
func (sw *CartSweeper) Stop() {
	<-sw.sched.Stop().Done()
	sw.logger.Info("Cart sweeper stopped")
}

func (sw *CartSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if sw.locker != nil {
		token, ok, err := sw.locker.AcquireLock(ctx, sweepLockKey, time.Minute)
		if err != nil {
			sw.logger.Warn("Failed to acquire sweep lock", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := sw.locker.ReleaseLock(ctx, sweepLockKey, token); err != nil {
				sw.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	if _, err := sw.Sweep(ctx); err != nil {
		sw.logger.Error("Cart sweep failed", zap.Error(err))
	}
}

// Sweep abandons active carts untouched for longer than the idle TTL
func (sw *CartSweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CartSweeper.Sweep")
	defer span.End()

	n, err := sw.store.AbandonIdleCarts(ctx, time.Now().Add(-sw.idleTTL))
	if err != nil {
		return 0, err
	}

	if n > 0 {
		util.CartsAbandonedTotal.Add(float64(n))
		sw.logger.Info("Abandoned idle carts", zap.Int64("count", n))
	}
	return n, nil
}
