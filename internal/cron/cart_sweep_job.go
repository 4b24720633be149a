package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/blendpoint-backend/pkg/logger"
)

const (
	defaultCartIdleTTL    = 72 * time.Hour
	defaultCartSweepBatch = 200
)

type cartSweeper interface {
	SweepStale(ctx context.Context, before time.Time, limit int) (int, error)
}

type CartSweepJobParams struct {
	Logger  *logger.Logger
	Carts   cartSweeper
	IdleTTL time.Duration
	Batch   int
}

// NewCartSweepJob abandons active carts nobody has touched for IdleTTL. One
// run handles at most Batch carts; the rest wait for the next cycle.
func NewCartSweepJob(params CartSweepJobParams) (Job, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	ttl := params.IdleTTL
	if ttl <= 0 {
		ttl = defaultCartIdleTTL
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultCartSweepBatch
	}
	return &cartSweepJob{logg: params.Logger, carts: params.Carts, ttl: ttl, batch: batch, now: time.Now}, nil
}

type cartSweepJob struct {
	logg  *logger.Logger
	carts cartSweeper
	ttl   time.Duration
	batch int
	now   func() time.Time
}

func (j *cartSweepJob) Name() string { return "cart-idle-sweep" }

func (j *cartSweepJob) Run(ctx context.Context) (int64, error) {
	before := j.now().Add(-j.ttl)
	swept, err := j.carts.SweepStale(ctx, before, j.batch)
	if err != nil {
		return int64(swept), fmt.Errorf("sweep idle carts: %w", err)
	}
	if swept == j.batch {
		j.logg.Warn(j.logg.WithField(ctx, "batch", j.batch), "cron.cart_sweep.batch_full")
	}
	return int64(swept), nil
}
