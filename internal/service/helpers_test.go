package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/ayo6706/campus-courier/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu            sync.Mutex
	recipientCode string
	registerErr   error
	transferRef   string
	transferErr   error
	delay         time.Duration
	transfers     []string
	// onTransfer runs before InitiateTransfer returns, as a racing webhook would.
	onTransfer func(reference string)
}

func (g *stubGateway) RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error) {
	if g.registerErr != nil {
		return "", g.registerErr
	}
	return g.recipientCode, nil
}

func (g *stubGateway) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	g.mu.Lock()
	g.transfers = append(g.transfers, reference)
	g.mu.Unlock()
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.transferErr != nil {
		return "", g.transferErr
	}
	if g.onTransfer != nil {
		g.onTransfer(reference)
	}
	return g.transferRef, nil
}

type fixture struct {
	store       *memstore.Store
	gateway     *stubGateway
	orders      *OrderService
	assignments *AssignmentService
	wallets     *WalletService
	payouts     *PayoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	gw := &stubGateway{recipientCode: "RCP_test", transferRef: "TRF_test"}
	payouts := NewPayoutService(store, gw, time.Second)
	return &fixture{
		store:       store,
		gateway:     gw,
		orders:      NewOrderService(store),
		assignments: NewAssignmentService(store, 15*time.Second),
		wallets:     NewWalletService(store),
		payouts:     payouts,
	}
}

func (f *fixture) newAgent(t *testing.T, available bool) models.DeliveryAgent {
	t.Helper()
	agent, err := f.store.Queries().CreateDeliveryAgent(context.Background(), repository.CreateDeliveryAgentParams{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		IsAvailable: available,
		VehicleType: domain.VehicleBicycle,
	})
	require.NoError(t, err)
	return agent
}

func (f *fixture) newOrder(t *testing.T, total, fee int64) models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:      uuid.New(),
		SellerID:        uuid.New(),
		SellerType:      domain.SellerTypeRestaurant,
		Total:           total,
		DeliveryFee:     fee,
		DeliveryAddress: "Hall 3, Room 12",
	}, nil)
	require.NoError(t, err)
	return *order
}

func (f *fixture) verifiedAgent(t *testing.T) models.DeliveryAgent {
	t.Helper()
	ctx := context.Background()
	agent := f.newAgent(t, true)
	_, err := f.payouts.UpsertPayoutProfile(ctx, agent.ID, "0123456789", "058")
	require.NoError(t, err)
	_, err = f.payouts.RegisterPayee(ctx, agent.ID)
	require.NoError(t, err)
	return agent
}

// requireConserved checks that every pool equals the sum of its journal.
func (f *fixture) requireConserved(t *testing.T, agentID uuid.UUID) {
	t.Helper()
	wallet, err := f.wallets.GetWallet(context.Background(), agentID)
	require.NoError(t, err)

	sums := map[string]int64{}
	for _, e := range f.store.WalletEntries(agentID) {
		sums[e.Pool] += e.Amount
	}
	require.Equal(t, sums[domain.PoolCustomerFunds], wallet.CustomerFunds, "customer_funds diverged from journal")
	require.Equal(t, sums[domain.PoolDeliveryEarnings], wallet.DeliveryEarnings, "delivery_earnings diverged from journal")
}
