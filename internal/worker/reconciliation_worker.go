package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reconciliationName = "reconciliation"

// ReconciliationWorker runs the wallet ledger check on a cron schedule.
type ReconciliationWorker struct {
	svc      *service.ReconciliationService
	schedule string
	lock     Lock
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewReconciliationWorker builds a worker for schedule, a standard cron spec or a
// descriptor such as "@every 1h". lock may be nil when only one instance runs.
func NewReconciliationWorker(svc *service.ReconciliationService, schedule string, lock Lock) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		schedule: schedule,
		lock:     lock,
		cron:     cron.New(),
	}
}

// Run registers the job, starts the scheduler and returns a stop function that
// waits for an in-flight run to finish.
func (w *ReconciliationWorker) Run(ctx context.Context) (func(), error) {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule reconciliation %q: %w", w.schedule, err)
	}
	zap.L().Info("reconciliation worker starting", zap.String("schedule", w.schedule))
	w.cron.Start()
	return w.Stop, nil
}

func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		<-w.cron.Stop().Done()
		zap.L().Info("reconciliation worker stopped")
	})
}

// RunOnce performs a single reconciliation, skipping it when another instance holds the lock.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.lock != nil {
		locked, err := w.lock.Acquire(ctx)
		if err != nil {
			observability.IncrementWorkerRun(reconciliationName, "failed")
			zap.L().Error("reconciliation lock acquire failed", zap.Error(err))
			return
		}
		if !locked {
			observability.IncrementWorkerRun(reconciliationName, "skipped")
			zap.L().Info("reconciliation running on another instance; skipping")
			return
		}
		defer func() {
			if err := w.lock.Release(context.WithoutCancel(ctx)); err != nil {
				zap.L().Warn("failed to release reconciliation lock", zap.Error(err))
			}
		}()
	}

	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun(reconciliationName, "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	if !report.Balanced() {
		observability.IncrementWorkerRun(reconciliationName, "imbalanced")
		return
	}
	observability.IncrementWorkerRun(reconciliationName, "success")
}
