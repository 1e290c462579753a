package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

// Keeper force-settles active rights that have reached expiry, so allocated
// capital always returns to the pool.
type Keeper struct {
	gw       *Gateway
	address  common.Address
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewKeeper creates a Keeper that settles as address every interval.
func NewKeeper(gw *Gateway, address common.Address, interval time.Duration, logger *slog.Logger) *Keeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Keeper{
		gw:       gw,
		address:  address,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "keeper")),
	}
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick settles every expired right once and returns how many it settled.
// Rights that fail on a stale price or a concurrent settlement are left for
// the next tick.
func (k *Keeper) Tick(ctx context.Context) int {
	settled := 0
	for _, r := range k.gw.ExpiredRights(k.now()) {
		if ctx.Err() != nil {
			break
		}
		_, err := k.gw.ForceSettle(ctx, r.ID, k.address)
		switch {
		case err == nil:
			settled++
		case domain.Retryable(err), errors.Is(err, domain.ErrSettlementInFlight):
			k.logger.InfoContext(ctx, "keeper: settlement deferred",
				slog.Uint64("right_id", r.ID),
				slog.String("reason", err.Error()),
			)
		default:
			k.logger.ErrorContext(ctx, "keeper: force settle failed",
				slog.Uint64("right_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if settled > 0 {
		k.logger.InfoContext(ctx, "keeper: settled expired rights", slog.Int("count", settled))
	}
	return settled
}
