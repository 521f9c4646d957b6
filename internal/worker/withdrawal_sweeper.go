package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/service"
	"go.uber.org/zap"
)

const sweeperName = "withdrawal_sweeper"

// WithdrawalSweeper fails and releases withdrawals stuck in processing, which happens
// when an instance dies between reserving funds and recording the gateway outcome.
// Safe for concurrent instances thanks to FOR UPDATE SKIP LOCKED.
type WithdrawalSweeper struct {
	payouts   *service.PayoutService
	interval  time.Duration
	window    time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewWithdrawalSweeper raises window to the payout service's MinStaleWindow when it
// is shorter, so an in-flight transfer is never swept.
func NewWithdrawalSweeper(payouts *service.PayoutService, window time.Duration) *WithdrawalSweeper {
	if floor := payouts.MinStaleWindow(); window < floor {
		zap.L().Warn("stale window shorter than gateway timeout allows, raising it",
			zap.Duration("requested", window),
			zap.Duration("window", floor),
		)
		window = floor
	}
	return &WithdrawalSweeper{
		payouts:   payouts,
		interval:  time.Minute,
		window:    window,
		batchSize: 20,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval sets how often the sweeper looks for stale withdrawals.
func (w *WithdrawalSweeper) WithInterval(interval time.Duration) *WithdrawalSweeper {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize caps how many withdrawals one sweep recovers.
func (w *WithdrawalSweeper) WithBatchSize(size int32) *WithdrawalSweeper {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *WithdrawalSweeper) Start(ctx context.Context) {
	zap.L().Info("withdrawal sweeper starting",
		zap.Duration("interval", w.interval),
		zap.Duration("stale_window", w.window),
		zap.Int32("batch_size", w.batchSize),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("withdrawal sweeper context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("withdrawal sweeper stop signal received")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				zap.L().Error("withdrawal sweep failed", zap.Error(err))
			}
		}
	}
}

func (w *WithdrawalSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// SweepOnce runs a single recovery pass and returns how many withdrawals it failed.
func (w *WithdrawalSweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := w.payouts.RecoverStaleWithdrawals(ctx, w.window, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun(sweeperName, "failed")
		return 0, err
	}
	observability.IncrementWorkerRun(sweeperName, "success")
	if n > 0 {
		zap.L().Warn("recovered stale withdrawals", zap.Int("count", n))
	}
	return n, nil
}

// Run starts the sweeper in a goroutine and returns a stop function.
func (w *WithdrawalSweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *WithdrawalSweeper) String() string {
	return fmt.Sprintf("WithdrawalSweeper(interval=%v, window=%v, batch=%d)", w.interval, w.window, w.batchSize)
}
