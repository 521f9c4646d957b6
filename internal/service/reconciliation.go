package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"go.uber.org/zap"
)

// ReconciliationService verifies wallet ledger invariants.
type ReconciliationService struct {
	store       QueryStore
	staleWindow time.Duration
}

// NewReconciliationService creates a reconciliation service. Reservations held
// longer than staleWindow are reported.
func NewReconciliationService(store QueryStore, staleWindow time.Duration) *ReconciliationService {
	return &ReconciliationService{store: store, staleWindow: staleWindow}
}

// ReconciliationReport summarizes one run.
type ReconciliationReport struct {
	Imbalances        []repository.WalletPoolImbalance
	StaleReservations int64
}

// Balanced is true when every pool matches its journal.
func (r ReconciliationReport) Balanced() bool {
	return len(r.Imbalances) == 0
}

// Run compares every wallet pool with the sum of its journal entries.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	queries := s.store.Queries()
	imbalances, err := queries.GetWalletPoolImbalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("run wallet imbalance query: %w", err)
	}

	stale, err := queries.CountHeldReservationsBefore(ctx, time.Now().Add(-s.staleWindow))
	if err != nil {
		return nil, fmt.Errorf("count stale reservations: %w", err)
	}
	observability.SetStaleReservations(stale)

	report := &ReconciliationReport{Imbalances: imbalances, StaleReservations: stale}
	for _, row := range imbalances {
		observability.IncrementLedgerImbalance(row.Pool)
		zap.L().Error("CRITICAL: wallet pool diverged from journal",
			zap.String("agent_id", row.AgentID.String()),
			zap.String("pool", row.Pool),
			zap.Int64("balance", row.Balance),
			zap.Int64("journal_sum", row.JournalSum),
			zap.Stringer("difference", domain.Money(row.Balance-row.JournalSum)),
		)
	}
	if stale > 0 {
		zap.L().Warn("reservations held past stale window", zap.Int64("count", stale), zap.Duration("window", s.staleWindow))
	}
	if report.Balanced() {
		zap.L().Info("wallet ledger balanced")
	}
	return report, nil
}
