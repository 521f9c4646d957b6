package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliation_Balanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.verifiedAgent(t)
	fund(t, f, agent.ID, domain.PoolDeliveryEarnings, 10_000)
	_, err := f.payouts.RequestWithdrawal(ctx, agent.ID, domain.PoolDeliveryEarnings, 4_000)
	require.NoError(t, err)

	report, err := NewReconciliationService(f.store, time.Hour).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
	assert.Zero(t, report.StaleReservations)
}

func TestReconciliation_DetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	fund(t, f, agent.ID, domain.PoolCustomerFunds, 10_000)
	f.store.SetWalletBalance(agent.ID, domain.PoolCustomerFunds, 12_500)

	report, err := NewReconciliationService(f.store, time.Hour).Run(ctx)
	require.NoError(t, err)
	require.False(t, report.Balanced())
	require.Len(t, report.Imbalances, 1)
	row := report.Imbalances[0]
	assert.Equal(t, agent.ID, row.AgentID)
	assert.Equal(t, domain.PoolCustomerFunds, row.Pool)
	assert.Equal(t, int64(12_500), row.Balance)
	assert.Equal(t, int64(10_000), row.JournalSum)
}

func TestReconciliation_CountsStaleReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	fund(t, f, agent.ID, domain.PoolCustomerFunds, 10_000)

	f.store.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	_, err := f.wallets.Reserve(ctx, agent.ID, domain.PoolCustomerFunds, 1_000)
	require.NoError(t, err)
	f.store.SetClock(time.Now)

	_, err = f.wallets.Reserve(ctx, agent.ID, domain.PoolCustomerFunds, 1_000)
	require.NoError(t, err)

	report, err := NewReconciliationService(f.store, time.Hour).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
	assert.Equal(t, int64(1), report.StaleReservations)
}
