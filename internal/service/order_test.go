package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	order := f.newOrder(t, 250_000, 50_000)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Nil(t, order.DeliveryAgentID)
	assert.Regexp(t, regexp.MustCompile(`^CC-\d{8}-[0-9A-F]{6}$`), order.OrderNumber)

	audit := f.store.AuditLog()
	require.Len(t, audit, 1)
	assert.Equal(t, "order_created", audit[0].Action)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	valid := CreateOrderInput{
		CustomerID:      uuid.New(),
		SellerID:        uuid.New(),
		SellerType:      domain.SellerTypeVendor,
		Total:           10_000,
		DeliveryFee:     2_000,
		DeliveryAddress: "Block B",
	}

	cases := []struct {
		name   string
		mutate func(in *CreateOrderInput)
		want   error
	}{
		{"zero total", func(in *CreateOrderInput) { in.Total = 0 }, models.ErrInvalidAmount},
		{"negative fee", func(in *CreateOrderInput) { in.DeliveryFee = -1 }, models.ErrInvalidAmount},
		{"fee above total", func(in *CreateOrderInput) { in.DeliveryFee = 10_001 }, models.ErrInvalidAmount},
		{"missing address", func(in *CreateOrderInput) { in.DeliveryAddress = "  " }, models.ErrValidation},
		{"bad seller type", func(in *CreateOrderInput) { in.SellerType = "kiosk" }, models.ErrValidation},
		{"missing customer", func(in *CreateOrderInput) { in.CustomerID = uuid.Nil }, models.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.orders.CreateOrder(context.Background(), in, nil)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAdvance_FullLifecycleCreditsDeliveryFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 300_000, 50_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)

	for _, next := range []string{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusPickedUp} {
		updated, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)

		wallet, err := f.wallets.GetWallet(ctx, agent.ID)
		require.NoError(t, err)
		assert.Zero(t, wallet.DeliveryEarnings, "no credit before delivery")
	}

	delivered, err := f.orders.Advance(ctx, order.ID, domain.OrderStatusDelivered, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)

	wallet, err := f.wallets.GetWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), wallet.DeliveryEarnings)
	assert.Zero(t, wallet.CustomerFunds)

	entries := f.store.WalletEntries(agent.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "order:"+order.ID.String(), entries[0].Reference)
	f.requireConserved(t, agent.ID)
}

func TestAdvance_NothingLeavesDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 20_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)
	for _, next := range []string{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusPickedUp, domain.OrderStatusDelivered} {
		_, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.NoError(t, err)
	}

	for _, next := range []string{domain.OrderStatusDelivered, domain.OrderStatusPickedUp, domain.OrderStatusCancelled, domain.OrderStatusPending} {
		_, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition, "delivered -> %s", next)
	}

	wallet, err := f.wallets.GetWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), wallet.DeliveryEarnings, "delivery fee credited exactly once")
}

func TestAdvance_RejectsSkipsAndBackwardMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 20_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)
	_, err = f.orders.Advance(ctx, order.ID, domain.OrderStatusPreparing, agent.ID)
	require.NoError(t, err)

	for _, next := range []string{domain.OrderStatusDelivered, domain.OrderStatusPickedUp, domain.OrderStatusAccepted, domain.OrderStatusCancelled, "teleported"} {
		_, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.ErrorIs(t, err, models.ErrInvalidTransition, "preparing -> %s", next)
	}

	current, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPreparing, current.Status)
}

func TestAdvance_ForbiddenForOtherAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.newAgent(t, true)
	other := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 20_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, owner.ID)
	require.NoError(t, err)

	_, err = f.orders.Advance(ctx, order.ID, domain.OrderStatusPreparing, other.ID)
	require.ErrorIs(t, err, models.ErrForbidden)
}

func TestAdvance_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Advance(context.Background(), uuid.New(), domain.OrderStatusPreparing, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdvance_ZeroDeliveryFeeRecordsNoCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 0)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)
	for _, next := range []string{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusPickedUp, domain.OrderStatusDelivered} {
		_, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.NoError(t, err)
	}

	assert.Empty(t, f.store.WalletEntries(agent.ID))
	wallet, err := f.wallets.GetWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Zero(t, wallet.TotalBalance())
}

func TestAdvance_CreditFailureRollsBackTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 20_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)
	for _, next := range []string{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusPickedUp} {
		_, err := f.orders.Advance(ctx, order.ID, next, agent.ID)
		require.NoError(t, err)
	}

	f.store.FailOn("InsertWalletEntry", assert.AnError)
	_, err = f.orders.Advance(ctx, order.ID, domain.OrderStatusDelivered, agent.ID)
	require.ErrorIs(t, err, assert.AnError)
	f.store.FailOn("InsertWalletEntry", nil)

	current, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPickedUp, current.Status)
	wallet, err := f.wallets.GetWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Zero(t, wallet.DeliveryEarnings)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.newOrder(t, 100_000, 20_000)

	cancelled, err := f.orders.CancelOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	_, err = f.orders.CancelOrder(ctx, order.ID, nil)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	agent := f.newAgent(t, true)
	_, err = f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition, "cancelled orders cannot be claimed")
}

func TestCancelOrder_RejectedAfterAcceptance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	order := f.newOrder(t, 100_000, 20_000)

	_, err := f.assignments.ClaimOrder(ctx, order.ID, agent.ID)
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, order.ID, nil)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestListAgentOrders_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	agent := f.newAgent(t, true)
	first := f.newOrder(t, 100_000, 10_000)
	second := f.newOrder(t, 100_000, 10_000)
	f.newOrder(t, 100_000, 10_000)

	_, err := f.assignments.ClaimOrder(ctx, first.ID, agent.ID)
	require.NoError(t, err)
	_, err = f.assignments.ClaimOrder(ctx, second.ID, agent.ID)
	require.NoError(t, err)

	orders, err := f.orders.ListAgentOrders(ctx, agent.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}
