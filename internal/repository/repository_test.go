package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/campus-courier/internal/db"
	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/ayo6706/campus-courier/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		os.Exit(m.Run())
	}

	release := dblock.Acquire()
	ctx := context.Background()
	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		release()
		fmt.Printf("Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	sqlDB := db.OpenSQL(pool)
	if err := db.Migrate(ctx, sqlDB, "up"); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		release()
		fmt.Printf("Unable to migrate database: %v\n", err)
		os.Exit(1)
	}
	_ = sqlDB.Close()
	testPool = pool

	code := m.Run()
	pool.Close()
	release()
	os.Exit(code)
}

func requireDB(t *testing.T) *repository.Store {
	t.Helper()
	if testPool == nil {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	return repository.NewStore(testPool)
}

func createAgent(t *testing.T, store *repository.Store, available bool) models.DeliveryAgent {
	t.Helper()
	agent, err := store.Queries().CreateDeliveryAgent(context.Background(), repository.CreateDeliveryAgentParams{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		IsAvailable: available,
		VehicleType: domain.VehicleBicycle,
	})
	require.NoError(t, err)
	return agent
}

func TestMigrationsParse(t *testing.T) {
	require.NoError(t, db.ValidateMigrations())
}

func TestClaimOrder_SingleWinnerInPostgres(t *testing.T) {
	store := requireDB(t)
	ctx := context.Background()
	orders := service.NewOrderService(store)
	assignments := service.NewAssignmentService(store, 15*time.Second)

	order, err := orders.CreateOrder(ctx, service.CreateOrderInput{
		CustomerID:      uuid.New(),
		SellerID:        uuid.New(),
		SellerType:      domain.SellerTypeRestaurant,
		Total:           4500,
		DeliveryFee:     400,
		DeliveryAddress: "Queen Amina Hall",
	}, nil)
	require.NoError(t, err)

	const contenders = 8
	agents := make([]models.DeliveryAgent, contenders)
	for i := range agents {
		agents[i] = createAgent(t, store, true)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		losses  int
	)
	for _, agent := range agents {
		wg.Add(1)
		go func(agentID uuid.UUID) {
			defer wg.Done()
			_, err := assignments.ClaimOrder(ctx, order.ID, agentID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, agentID)
				return
			}
			if errors.Is(err, models.ErrAlreadyClaimed) {
				losses++
			}
		}(agent.ID)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, contenders-1, losses)

	stored, err := store.Queries().GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveryAgentID)
	assert.Equal(t, winners[0], *stored.DeliveryAgentID)
	assert.Equal(t, domain.OrderStatusAccepted, stored.Status)
}

func TestClaimOrder_ConditionalWriteRejectsSecondAgent(t *testing.T) {
	store := requireDB(t)
	ctx := context.Background()
	q := store.Queries()
	first := createAgent(t, store, true)
	second := createAgent(t, store, true)

	orderID := uuid.New()
	_, err := q.CreateOrder(ctx, repository.CreateOrderParams{
		ID:              orderID,
		OrderNumber:     "CC-TEST-" + orderID.String()[:8],
		CustomerID:      uuid.New(),
		SellerID:        uuid.New(),
		SellerType:      domain.SellerTypeVendor,
		Total:           1000,
		DeliveryFee:     100,
		DeliveryAddress: "Library annex",
	})
	require.NoError(t, err)

	rows, err := q.ClaimOrder(ctx, repository.ClaimOrderParams{ID: orderID, AgentID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.ClaimOrder(ctx, repository.ClaimOrderParams{ID: orderID, AgentID: second.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = q.CancelPendingOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestDebitWalletPool_NeverGoesNegative(t *testing.T) {
	store := requireDB(t)
	ctx := context.Background()
	q := store.Queries()
	agent := createAgent(t, store, true)

	_, err := q.CreditWalletPool(ctx, repository.WalletPoolAmountParams{AgentID: agent.ID, Pool: domain.PoolCustomerFunds, Amount: 500})
	require.NoError(t, err)

	rows, err := q.DebitWalletPool(ctx, repository.WalletPoolAmountParams{AgentID: agent.ID, Pool: domain.PoolCustomerFunds, Amount: 800})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = q.DebitWalletPool(ctx, repository.WalletPoolAmountParams{AgentID: agent.ID, Pool: domain.PoolCustomerFunds, Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	wallet, err := q.GetAgentWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.CustomerFunds)
}

func TestWalletOperationsKeepJournalBalanced(t *testing.T) {
	store := requireDB(t)
	ctx := context.Background()
	wallets := service.NewWalletService(store)
	agent := createAgent(t, store, true)

	_, err := wallets.Credit(ctx, agent.ID, domain.PoolDeliveryEarnings, 10000, "seed")
	require.NoError(t, err)
	held, err := wallets.Reserve(ctx, agent.ID, domain.PoolDeliveryEarnings, 3000)
	require.NoError(t, err)
	released, err := wallets.Reserve(ctx, agent.ID, domain.PoolDeliveryEarnings, 2000)
	require.NoError(t, err)
	require.NoError(t, wallets.Finalize(ctx, held.ID))
	require.NoError(t, wallets.Release(ctx, released.ID))

	_, err = wallets.Reserve(ctx, agent.ID, domain.PoolDeliveryEarnings, 9000)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	wallet, err := wallets.GetWallet(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), wallet.DeliveryEarnings)

	imbalances, err := store.Queries().GetWalletPoolImbalances(ctx)
	require.NoError(t, err)
	for _, row := range imbalances {
		assert.NotEqual(t, agent.ID, row.AgentID, "pool %s diverged from journal", row.Pool)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store := requireDB(t)
	ctx := context.Background()
	agent := createAgent(t, store, true)

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(q repository.Querier) error {
		if _, err := q.CreditWalletPool(ctx, repository.WalletPoolAmountParams{AgentID: agent.ID, Pool: domain.PoolDeliveryEarnings, Amount: 700}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	wallet, err := store.Queries().GetAgentWallet(ctx, agent.ID)
	if err == nil {
		assert.Equal(t, int64(0), wallet.DeliveryEarnings)
	}
}
