package repository

import (
	"context"
	"time"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract used by services. Every write that arbitrates
// a race is a single conditional statement and reports the affected row count.
type Querier interface {
	CreateOrder(ctx context.Context, arg CreateOrderParams) (models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	ClaimOrder(ctx context.Context, arg ClaimOrderParams) (int64, error)
	AdvanceOrderStatus(ctx context.Context, arg AdvanceOrderStatusParams) (int64, error)
	CancelPendingOrder(ctx context.Context, id uuid.UUID) (int64, error)
	CountActiveOrdersForAgent(ctx context.Context, agentID uuid.UUID) (int64, error)
	ListClaimableOrders(ctx context.Context, arg ListParams) ([]models.Order, error)
	ListAgentOrders(ctx context.Context, arg ListAgentOrdersParams) ([]models.Order, error)

	CreateDeliveryAgent(ctx context.Context, arg CreateDeliveryAgentParams) (models.DeliveryAgent, error)
	GetDeliveryAgent(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error)
	GetDeliveryAgentForUpdate(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error)
	GetDeliveryAgentByUserID(ctx context.Context, userID uuid.UUID) (models.DeliveryAgent, error)
	SetAgentAvailability(ctx context.Context, arg SetAgentAvailabilityParams) (int64, error)

	GetAgentWallet(ctx context.Context, agentID uuid.UUID) (models.AgentWallet, error)
	CreditWalletPool(ctx context.Context, arg WalletPoolAmountParams) (models.AgentWallet, error)
	DebitWalletPool(ctx context.Context, arg WalletPoolAmountParams) (int64, error)
	InsertWalletEntry(ctx context.Context, arg InsertWalletEntryParams) error
	ListWalletEntries(ctx context.Context, arg ListWalletEntriesParams) ([]models.WalletEntry, error)
	InsertReservation(ctx context.Context, arg InsertReservationParams) (models.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (models.Reservation, error)
	SettleReservation(ctx context.Context, arg SettleReservationParams) (int64, error)
	GetWalletPoolImbalances(ctx context.Context) ([]WalletPoolImbalance, error)
	CountHeldReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetPayoutProfile(ctx context.Context, userID uuid.UUID) (models.AgentPayoutProfile, error)
	UpsertPayoutProfile(ctx context.Context, arg UpsertPayoutProfileParams) (models.AgentPayoutProfile, error)
	SetPayoutRecipientCode(ctx context.Context, arg SetPayoutRecipientCodeParams) (int64, error)

	InsertWithdrawal(ctx context.Context, arg InsertWithdrawalParams) (models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)
	GetWithdrawalByGatewayReference(ctx context.Context, gatewayReference string) (models.WithdrawalRequest, error)
	UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error)
	ListAgentWithdrawals(ctx context.Context, arg ListAgentWithdrawalsParams) ([]models.WithdrawalRequest, error)
	GetStaleProcessingWithdrawals(ctx context.Context, arg GetStaleProcessingWithdrawalsParams) ([]models.WithdrawalRequest, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)

	GetIdempotencyKey(ctx context.Context, idempotencyKey string) (IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error)
}

type ListParams struct {
	Limit  int32
	Offset int32
}

type CreateOrderParams struct {
	ID              uuid.UUID
	OrderNumber     string
	CustomerID      uuid.UUID
	SellerID        uuid.UUID
	SellerType      string
	Total           int64
	DeliveryFee     int64
	DeliveryAddress string
	DeliveryNotes   *string
}

type ClaimOrderParams struct {
	ID      uuid.UUID
	AgentID uuid.UUID
}

type AdvanceOrderStatusParams struct {
	ID         uuid.UUID
	AgentID    uuid.UUID
	FromStatus string
	ToStatus   string
}

type ListAgentOrdersParams struct {
	AgentID uuid.UUID
	Limit   int32
	Offset  int32
}

type CreateDeliveryAgentParams struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	IsAvailable bool
	VehicleType string
}

type SetAgentAvailabilityParams struct {
	ID          uuid.UUID
	IsAvailable bool
}

type WalletPoolAmountParams struct {
	AgentID uuid.UUID
	Pool    string
	Amount  int64
}

type InsertWalletEntryParams struct {
	ID        uuid.UUID
	AgentID   uuid.UUID
	Pool      string
	Kind      string
	Amount    int64
	Reference string
}

type ListWalletEntriesParams struct {
	AgentID uuid.UUID
	Limit   int32
	Offset  int32
}

type InsertReservationParams struct {
	ID      uuid.UUID
	AgentID uuid.UUID
	Pool    string
	Amount  int64
}

type SettleReservationParams struct {
	ID         uuid.UUID
	FromStatus string
	ToStatus   string
}

// WalletPoolImbalance is a pool whose stored balance differs from its journal sum.
type WalletPoolImbalance struct {
	AgentID    uuid.UUID
	Pool       string
	Balance    int64
	JournalSum int64
}

type UpsertPayoutProfileParams struct {
	UserID        uuid.UUID
	AccountNumber string
	BankCode      string
}

type SetPayoutRecipientCodeParams struct {
	UserID        uuid.UUID
	AccountNumber string
	BankCode      string
	RecipientCode string
}

type InsertWithdrawalParams struct {
	ID            uuid.UUID
	AgentID       uuid.UUID
	Amount        int64
	Pool          string
	Status        string
	ReservationID uuid.UUID
}

type UpdateWithdrawalStatusParams struct {
	ID               uuid.UUID
	FromStatus       string
	ToStatus         string
	GatewayReference *string
	ErrorMessage     *string
}

type ListAgentWithdrawalsParams struct {
	AgentID uuid.UUID
	Limit   int32
	Offset  int32
}

type GetStaleProcessingWithdrawalsParams struct {
	UpdatedBefore time.Time
	Limit         int32
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}
