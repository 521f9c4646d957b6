package models

import (
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/google/uuid"
)

type Order struct {
	ID              uuid.UUID  `json:"id"`
	OrderNumber     string     `json:"order_number"`
	Status          string     `json:"status"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	SellerID        uuid.UUID  `json:"seller_id"`
	SellerType      string     `json:"seller_type"`
	DeliveryAgentID *uuid.UUID `json:"delivery_agent_id"`
	Total           int64      `json:"total"`
	DeliveryFee     int64      `json:"delivery_fee"`
	DeliveryAddress string     `json:"delivery_address"`
	DeliveryNotes   *string    `json:"delivery_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AssignedTo reports whether agentID is the order's delivery agent.
func (o Order) AssignedTo(agentID uuid.UUID) bool {
	return o.DeliveryAgentID != nil && *o.DeliveryAgentID == agentID
}

type DeliveryAgent struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	IsAvailable bool      `json:"is_available"`
	VehicleType string    `json:"vehicle_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AgentWallet struct {
	AgentID          uuid.UUID `json:"agent_id"`
	CustomerFunds    int64     `json:"customer_funds"`
	DeliveryEarnings int64     `json:"delivery_earnings"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TotalBalance is informational; the two pools are the source of truth.
func (w AgentWallet) TotalBalance() int64 {
	return w.CustomerFunds + w.DeliveryEarnings
}

// Pool returns the balance of the named pool.
func (w AgentWallet) Pool(pool string) int64 {
	switch pool {
	case domain.PoolCustomerFunds:
		return w.CustomerFunds
	case domain.PoolDeliveryEarnings:
		return w.DeliveryEarnings
	default:
		return 0
	}
}

type WalletEntry struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	Pool      string    `json:"pool"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"` // signed
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Reservation is the handle returned by a wallet reserve. It reaches exactly one of
// finalized or released.
type Reservation struct {
	ID        uuid.UUID  `json:"id"`
	AgentID   uuid.UUID  `json:"agent_id"`
	Pool      string     `json:"pool"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

type AgentPayoutProfile struct {
	UserID        uuid.UUID  `json:"user_id"`
	AccountNumber string     `json:"account_number"`
	BankCode      string     `json:"bank_code"`
	RecipientCode *string    `json:"-"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Verified is true once the gateway has issued a recipient code.
func (p AgentPayoutProfile) Verified() bool {
	return p.RecipientCode != nil && *p.RecipientCode != ""
}

type WithdrawalRequest struct {
	ID               uuid.UUID  `json:"id"`
	AgentID          uuid.UUID  `json:"agent_id"`
	Amount           int64      `json:"amount"`
	Pool             string     `json:"pool"`
	Status           string     `json:"status"`
	ReservationID    uuid.UUID  `json:"reservation_id"`
	GatewayReference *string    `json:"gateway_reference"`
	ErrorMessage     *string    `json:"error_message"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at"`
}
