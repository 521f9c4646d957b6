package domain

// Currency is the only settlement currency the platform handles.
const Currency = "NGN"

// MaxActiveOrdersPerAgent caps how many non-terminal orders one agent may hold.
const MaxActiveOrdersPerAgent = 2

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusAccepted  = "accepted"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusPickedUp  = "picked_up"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	SellerTypeRestaurant = "restaurant"
	SellerTypeVendor     = "vendor"
)

const (
	VehicleFoot       = "foot"
	VehicleBicycle    = "bicycle"
	VehicleMotorcycle = "motorcycle"
	VehicleCar        = "car"
)

// Wallet pools
const (
	PoolCustomerFunds    = "customer_funds"
	PoolDeliveryEarnings = "delivery_earnings"
)

// Wallet journal entry kinds
const (
	EntryKindCredit  = "credit"
	EntryKindReserve = "reserve"
	EntryKindRelease = "release"
)

// Reservation statuses
const (
	ReservationHeld      = "held"
	ReservationFinalized = "finalized"
	ReservationReleased  = "released"
)

// Withdrawal statuses
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

// Roles carried in the auth token.
const (
	RoleAgent   = "agent"
	RoleService = "service"
	RoleAdmin   = "admin"
)

// IsValidPool reports whether pool names one of the two wallet pools.
func IsValidPool(pool string) bool {
	return pool == PoolCustomerFunds || pool == PoolDeliveryEarnings
}

// IsTerminalOrderStatus reports whether no further transition is possible.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}
