package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sellershub/settlement-engine/internal/observability"
	"github.com/sellershub/settlement-engine/internal/service"
	"go.uber.org/zap"
)

// PayoutSweeper re-drives payouts stuck in PENDING. A payout normally moves
// out of PENDING inside the request that created it; rows left behind mean the
// process died between insert and orchestration. Safe to run alongside the
// request path: Process is idempotent per payout.
type PayoutSweeper struct {
	payouts      *service.PayoutService
	pollInterval time.Duration
	staleAfter   time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewPayoutSweeper(payouts *service.PayoutService) *PayoutSweeper {
	return &PayoutSweeper{
		payouts:      payouts,
		pollInterval: 30 * time.Second,
		staleAfter:   2 * time.Minute,
		batchSize:    10,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets how often the sweeper looks for stale payouts.
func (w *PayoutSweeper) WithPollInterval(interval time.Duration) *PayoutSweeper {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithStaleAfter sets how long a payout may sit in PENDING before the sweeper
// picks it up.
func (w *PayoutSweeper) WithStaleAfter(age time.Duration) *PayoutSweeper {
	if age > 0 {
		w.staleAfter = age
	}
	return w
}

// WithBatchSize caps how many stale payouts a single sweep processes.
func (w *PayoutSweeper) WithBatchSize(size int32) *PayoutSweeper {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval until the context is
// canceled or Stop is called.
func (w *PayoutSweeper) Start(ctx context.Context) {
	zap.L().Info("payout sweeper starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("stale_after", w.staleAfter),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("payout sweeper context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("payout sweeper stop signal received")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop stops the running sweep loop.
func (w *PayoutSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the sweeper in a goroutine and returns a stop function.
func (w *PayoutSweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// SweepOnce runs a single sweep immediately. Useful for manual triggering.
func (w *PayoutSweeper) SweepOnce(ctx context.Context) (int, error) {
	return w.payouts.ProcessStalePayouts(ctx, w.staleAfter, w.batchSize)
}

func (w *PayoutSweeper) sweep(ctx context.Context) {
	processed, err := w.payouts.ProcessStalePayouts(ctx, w.staleAfter, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("payout_sweeper", "failed")
		zap.L().Error("payout sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("payout_sweeper", "success")
	if processed > 0 {
		zap.L().Info("payout sweep re-drove stale payouts", zap.Int("processed", processed))
	}
}
