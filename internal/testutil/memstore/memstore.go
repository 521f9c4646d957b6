// Package memstore is an in-memory repository.Querier for unit tests. Each call is
// atomic and the conditional writes report affected rows exactly like their SQL
// counterparts, so race arbitration can be exercised without Postgres.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditEntry is a stored audit row.
type AuditEntry struct {
	ID int64
	repository.InsertAuditLogParams
}

type state struct {
	orders       map[uuid.UUID]models.Order
	orderSeq     []uuid.UUID
	agents       map[uuid.UUID]models.DeliveryAgent
	wallets      map[uuid.UUID]models.AgentWallet
	entries      []models.WalletEntry
	reservations map[uuid.UUID]models.Reservation
	profiles     map[uuid.UUID]models.AgentPayoutProfile
	withdrawals  map[uuid.UUID]models.WithdrawalRequest
	withdrawSeq  []uuid.UUID
	audit        []AuditEntry
	idem         map[string]repository.IdempotencyKey
}

func newState() *state {
	return &state{
		orders:       map[uuid.UUID]models.Order{},
		agents:       map[uuid.UUID]models.DeliveryAgent{},
		wallets:      map[uuid.UUID]models.AgentWallet{},
		reservations: map[uuid.UUID]models.Reservation{},
		profiles:     map[uuid.UUID]models.AgentPayoutProfile{},
		withdrawals:  map[uuid.UUID]models.WithdrawalRequest{},
		idem:         map[string]repository.IdempotencyKey{},
	}
}

func (s *state) clone() *state {
	c := &state{
		orders:       make(map[uuid.UUID]models.Order, len(s.orders)),
		orderSeq:     slices.Clone(s.orderSeq),
		agents:       make(map[uuid.UUID]models.DeliveryAgent, len(s.agents)),
		wallets:      make(map[uuid.UUID]models.AgentWallet, len(s.wallets)),
		entries:      slices.Clone(s.entries),
		reservations: make(map[uuid.UUID]models.Reservation, len(s.reservations)),
		profiles:     make(map[uuid.UUID]models.AgentPayoutProfile, len(s.profiles)),
		withdrawals:  make(map[uuid.UUID]models.WithdrawalRequest, len(s.withdrawals)),
		withdrawSeq:  slices.Clone(s.withdrawSeq),
		audit:        slices.Clone(s.audit),
		idem:         make(map[string]repository.IdempotencyKey, len(s.idem)),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	return c
}

// Store satisfies the service layer's store contract. Transactions are serialized:
// RunInTx holds the store lock for the whole callback and restores the previous
// state if the callback fails.
type Store struct {
	mu     sync.Mutex
	data   *state
	now    func() time.Time
	faults map[string]error
}

func New() *Store {
	return &Store{
		data:   newState(),
		now:    func() time.Time { return time.Now().UTC() },
		faults: map[string]error{},
	}
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every call to the named Querier method return err until cleared
// with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) Queries() repository.Querier {
	return &querier{s: s}
}

func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&querier{s: s, inTx: true}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// AuditLog returns a copy of every audit row written so far.
func (s *Store) AuditLog() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.audit)
}

// WalletEntries returns the journal rows for one agent in insertion order.
func (s *Store) WalletEntries(agentID uuid.UUID) []models.WalletEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WalletEntry
	for _, e := range s.data.entries {
		if e.AgentID == agentID {
			out = append(out, e)
		}
	}
	return out
}

// Reservations returns every reservation for one agent.
func (s *Store) Reservations(agentID uuid.UUID) []models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.data.reservations {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out
}

// WithdrawalCount is the number of stored withdrawal requests.
func (s *Store) WithdrawalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.withdrawals)
}

// SetWalletBalance overwrites a pool without a journal row, for drift tests.
func (s *Store) SetWalletBalance(agentID uuid.UUID, pool string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.data.wallets[agentID]
	w.AgentID = agentID
	switch pool {
	case domain.PoolCustomerFunds:
		w.CustomerFunds = amount
	case domain.PoolDeliveryEarnings:
		w.DeliveryEarnings = amount
	}
	s.data.wallets[agentID] = w
}

// TouchWithdrawal rewrites updated_at, for stale-recovery tests.
func (s *Store) TouchWithdrawal(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.data.withdrawals[id]; ok {
		w.UpdatedAt = at
		s.data.withdrawals[id] = w
	}
}

type querier struct {
	s    *Store
	inTx bool
}

var _ repository.Querier = (*querier)(nil)

// do runs fn against the current state, taking the store lock unless the
// caller is already inside RunInTx.
func (q *querier) do(method string, fn func(st *state, now time.Time) error) error {
	if !q.inTx {
		q.s.mu.Lock()
		defer q.s.mu.Unlock()
	}
	if err, ok := q.s.faults[method]; ok {
		return err
	}
	return fn(q.s.data, q.s.now())
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: fmt.Sprintf("duplicate key value violates unique constraint %q", constraint)}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", ConstraintName: constraint, Message: fmt.Sprintf("new row violates check constraint %q", constraint)}
}

func window[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func isActive(status string) bool {
	return !domain.IsTerminalOrderStatus(status)
}

// Orders

func (q *querier) CreateOrder(ctx context.Context, arg repository.CreateOrderParams) (models.Order, error) {
	var out models.Order
	err := q.do("CreateOrder", func(st *state, now time.Time) error {
		if _, ok := st.orders[arg.ID]; ok {
			return uniqueViolation("orders_pkey")
		}
		for _, o := range st.orders {
			if o.OrderNumber == arg.OrderNumber {
				return uniqueViolation("orders_order_number_key")
			}
		}
		out = models.Order{
			ID:              arg.ID,
			OrderNumber:     arg.OrderNumber,
			Status:          domain.OrderStatusPending,
			CustomerID:      arg.CustomerID,
			SellerID:        arg.SellerID,
			SellerType:      arg.SellerType,
			Total:           arg.Total,
			DeliveryFee:     arg.DeliveryFee,
			DeliveryAddress: arg.DeliveryAddress,
			DeliveryNotes:   arg.DeliveryNotes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		st.orders[arg.ID] = out
		st.orderSeq = append(st.orderSeq, arg.ID)
		return nil
	})
	return out, err
}

func (q *querier) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	var out models.Order
	err := q.do("GetOrder", func(st *state, _ time.Time) error {
		o, ok := st.orders[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = o
		return nil
	})
	return out, err
}

func (q *querier) ClaimOrder(ctx context.Context, arg repository.ClaimOrderParams) (int64, error) {
	var rows int64
	err := q.do("ClaimOrder", func(st *state, now time.Time) error {
		o, ok := st.orders[arg.ID]
		if !ok || o.DeliveryAgentID != nil || o.Status != domain.OrderStatusPending {
			return nil
		}
		agentID := arg.AgentID
		o.DeliveryAgentID = &agentID
		o.Status = domain.OrderStatusAccepted
		o.UpdatedAt = now
		st.orders[arg.ID] = o
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) AdvanceOrderStatus(ctx context.Context, arg repository.AdvanceOrderStatusParams) (int64, error) {
	var rows int64
	err := q.do("AdvanceOrderStatus", func(st *state, now time.Time) error {
		o, ok := st.orders[arg.ID]
		if !ok || !o.AssignedTo(arg.AgentID) || o.Status != arg.FromStatus {
			return nil
		}
		o.Status = arg.ToStatus
		o.UpdatedAt = now
		st.orders[arg.ID] = o
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) CancelPendingOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	var rows int64
	err := q.do("CancelPendingOrder", func(st *state, now time.Time) error {
		o, ok := st.orders[id]
		if !ok || o.Status != domain.OrderStatusPending || o.DeliveryAgentID != nil {
			return nil
		}
		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = now
		st.orders[id] = o
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) CountActiveOrdersForAgent(ctx context.Context, agentID uuid.UUID) (int64, error) {
	var n int64
	err := q.do("CountActiveOrdersForAgent", func(st *state, _ time.Time) error {
		for _, o := range st.orders {
			if o.AssignedTo(agentID) && isActive(o.Status) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (q *querier) ListClaimableOrders(ctx context.Context, arg repository.ListParams) ([]models.Order, error) {
	var out []models.Order
	err := q.do("ListClaimableOrders", func(st *state, _ time.Time) error {
		var items []models.Order
		for _, id := range st.orderSeq {
			o := st.orders[id]
			if o.Status == domain.OrderStatusPending && o.DeliveryAgentID == nil {
				items = append(items, o)
			}
		}
		out = window(items, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

func (q *querier) ListAgentOrders(ctx context.Context, arg repository.ListAgentOrdersParams) ([]models.Order, error) {
	var out []models.Order
	err := q.do("ListAgentOrders", func(st *state, _ time.Time) error {
		var items []models.Order
		for i := len(st.orderSeq) - 1; i >= 0; i-- {
			o := st.orders[st.orderSeq[i]]
			if o.AssignedTo(arg.AgentID) {
				items = append(items, o)
			}
		}
		out = window(items, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

// Agents

func (q *querier) CreateDeliveryAgent(ctx context.Context, arg repository.CreateDeliveryAgentParams) (models.DeliveryAgent, error) {
	var out models.DeliveryAgent
	err := q.do("CreateDeliveryAgent", func(st *state, now time.Time) error {
		for _, a := range st.agents {
			if a.ID == arg.ID {
				return uniqueViolation("delivery_agents_pkey")
			}
			if a.UserID == arg.UserID {
				return uniqueViolation("delivery_agents_user_id_key")
			}
		}
		out = models.DeliveryAgent{
			ID:          arg.ID,
			UserID:      arg.UserID,
			IsAvailable: arg.IsAvailable,
			VehicleType: arg.VehicleType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		st.agents[arg.ID] = out
		return nil
	})
	return out, err
}

func (q *querier) GetDeliveryAgent(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error) {
	var out models.DeliveryAgent
	err := q.do("GetDeliveryAgent", func(st *state, _ time.Time) error {
		a, ok := st.agents[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = a
		return nil
	})
	return out, err
}

// GetDeliveryAgentForUpdate needs no extra locking: transactions are already serialized.
func (q *querier) GetDeliveryAgentForUpdate(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error) {
	return q.GetDeliveryAgent(ctx, id)
}

func (q *querier) GetDeliveryAgentByUserID(ctx context.Context, userID uuid.UUID) (models.DeliveryAgent, error) {
	var out models.DeliveryAgent
	err := q.do("GetDeliveryAgentByUserID", func(st *state, _ time.Time) error {
		for _, a := range st.agents {
			if a.UserID == userID {
				out = a
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *querier) SetAgentAvailability(ctx context.Context, arg repository.SetAgentAvailabilityParams) (int64, error) {
	var rows int64
	err := q.do("SetAgentAvailability", func(st *state, now time.Time) error {
		a, ok := st.agents[arg.ID]
		if !ok {
			return nil
		}
		a.IsAvailable = arg.IsAvailable
		a.UpdatedAt = now
		st.agents[arg.ID] = a
		rows = 1
		return nil
	})
	return rows, err
}

// Wallet

func (q *querier) GetAgentWallet(ctx context.Context, agentID uuid.UUID) (models.AgentWallet, error) {
	var out models.AgentWallet
	err := q.do("GetAgentWallet", func(st *state, _ time.Time) error {
		w, ok := st.wallets[agentID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = w
		return nil
	})
	return out, err
}

func (q *querier) CreditWalletPool(ctx context.Context, arg repository.WalletPoolAmountParams) (models.AgentWallet, error) {
	var out models.AgentWallet
	err := q.do("CreditWalletPool", func(st *state, now time.Time) error {
		w := st.wallets[arg.AgentID]
		w.AgentID = arg.AgentID
		switch arg.Pool {
		case domain.PoolCustomerFunds:
			w.CustomerFunds += arg.Amount
		case domain.PoolDeliveryEarnings:
			w.DeliveryEarnings += arg.Amount
		}
		if w.CustomerFunds < 0 || w.DeliveryEarnings < 0 {
			return checkViolation("agent_wallets_pool_check")
		}
		w.UpdatedAt = now
		st.wallets[arg.AgentID] = w
		out = w
		return nil
	})
	return out, err
}

func (q *querier) DebitWalletPool(ctx context.Context, arg repository.WalletPoolAmountParams) (int64, error) {
	var rows int64
	err := q.do("DebitWalletPool", func(st *state, now time.Time) error {
		w, ok := st.wallets[arg.AgentID]
		if !ok || w.Pool(arg.Pool) < arg.Amount {
			return nil
		}
		switch arg.Pool {
		case domain.PoolCustomerFunds:
			w.CustomerFunds -= arg.Amount
		case domain.PoolDeliveryEarnings:
			w.DeliveryEarnings -= arg.Amount
		default:
			return nil
		}
		w.UpdatedAt = now
		st.wallets[arg.AgentID] = w
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) InsertWalletEntry(ctx context.Context, arg repository.InsertWalletEntryParams) error {
	return q.do("InsertWalletEntry", func(st *state, now time.Time) error {
		if arg.Kind == domain.EntryKindCredit && strings.HasPrefix(arg.Reference, "order:") {
			for _, e := range st.entries {
				if e.Kind == domain.EntryKindCredit && e.Reference == arg.Reference {
					return uniqueViolation("uq_wallet_entries_order_credit")
				}
			}
		}
		st.entries = append(st.entries, models.WalletEntry{
			ID:        arg.ID,
			AgentID:   arg.AgentID,
			Pool:      arg.Pool,
			Kind:      arg.Kind,
			Amount:    arg.Amount,
			Reference: arg.Reference,
			CreatedAt: now,
		})
		return nil
	})
}

func (q *querier) ListWalletEntries(ctx context.Context, arg repository.ListWalletEntriesParams) ([]models.WalletEntry, error) {
	var out []models.WalletEntry
	err := q.do("ListWalletEntries", func(st *state, _ time.Time) error {
		var items []models.WalletEntry
		for i := len(st.entries) - 1; i >= 0; i-- {
			if st.entries[i].AgentID == arg.AgentID {
				items = append(items, st.entries[i])
			}
		}
		out = window(items, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

func (q *querier) InsertReservation(ctx context.Context, arg repository.InsertReservationParams) (models.Reservation, error) {
	var out models.Reservation
	err := q.do("InsertReservation", func(st *state, now time.Time) error {
		if _, ok := st.reservations[arg.ID]; ok {
			return uniqueViolation("wallet_reservations_pkey")
		}
		out = models.Reservation{
			ID:        arg.ID,
			AgentID:   arg.AgentID,
			Pool:      arg.Pool,
			Amount:    arg.Amount,
			Status:    domain.ReservationHeld,
			CreatedAt: now,
		}
		st.reservations[arg.ID] = out
		return nil
	})
	return out, err
}

func (q *querier) GetReservation(ctx context.Context, id uuid.UUID) (models.Reservation, error) {
	var out models.Reservation
	err := q.do("GetReservation", func(st *state, _ time.Time) error {
		r, ok := st.reservations[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = r
		return nil
	})
	return out, err
}

func (q *querier) SettleReservation(ctx context.Context, arg repository.SettleReservationParams) (int64, error) {
	var rows int64
	err := q.do("SettleReservation", func(st *state, now time.Time) error {
		r, ok := st.reservations[arg.ID]
		if !ok || r.Status != arg.FromStatus {
			return nil
		}
		r.Status = arg.ToStatus
		settled := now
		r.SettledAt = &settled
		st.reservations[arg.ID] = r
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) GetWalletPoolImbalances(ctx context.Context) ([]repository.WalletPoolImbalance, error) {
	var out []repository.WalletPoolImbalance
	err := q.do("GetWalletPoolImbalances", func(st *state, _ time.Time) error {
		type key struct {
			agent uuid.UUID
			pool  string
		}
		sums := map[key]int64{}
		for _, e := range st.entries {
			sums[key{e.AgentID, e.Pool}] += e.Amount
		}
		balances := map[key]int64{}
		for id, w := range st.wallets {
			balances[key{id, domain.PoolCustomerFunds}] = w.CustomerFunds
			balances[key{id, domain.PoolDeliveryEarnings}] = w.DeliveryEarnings
		}
		seen := map[key]struct{}{}
		check := func(k key) {
			if _, ok := seen[k]; ok {
				return
			}
			seen[k] = struct{}{}
			if balances[k] != sums[k] {
				out = append(out, repository.WalletPoolImbalance{
					AgentID:    k.agent,
					Pool:       k.pool,
					Balance:    balances[k],
					JournalSum: sums[k],
				})
			}
		}
		for k := range balances {
			check(k)
		}
		for k := range sums {
			check(k)
		}
		slices.SortFunc(out, func(a, b repository.WalletPoolImbalance) int {
			if c := strings.Compare(a.AgentID.String(), b.AgentID.String()); c != 0 {
				return c
			}
			return strings.Compare(a.Pool, b.Pool)
		})
		return nil
	})
	return out, err
}

func (q *querier) CountHeldReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := q.do("CountHeldReservationsBefore", func(st *state, _ time.Time) error {
		for _, r := range st.reservations {
			if r.Status == domain.ReservationHeld && r.CreatedAt.Before(cutoff) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Payout profiles

func (q *querier) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (models.AgentPayoutProfile, error) {
	var out models.AgentPayoutProfile
	err := q.do("GetPayoutProfile", func(st *state, _ time.Time) error {
		p, ok := st.profiles[userID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = p
		return nil
	})
	return out, err
}

func (q *querier) UpsertPayoutProfile(ctx context.Context, arg repository.UpsertPayoutProfileParams) (models.AgentPayoutProfile, error) {
	var out models.AgentPayoutProfile
	err := q.do("UpsertPayoutProfile", func(st *state, now time.Time) error {
		p, ok := st.profiles[arg.UserID]
		if !ok || p.AccountNumber != arg.AccountNumber || p.BankCode != arg.BankCode {
			p.RecipientCode = nil
			p.VerifiedAt = nil
		}
		p.UserID = arg.UserID
		p.AccountNumber = arg.AccountNumber
		p.BankCode = arg.BankCode
		p.UpdatedAt = now
		st.profiles[arg.UserID] = p
		out = p
		return nil
	})
	return out, err
}

func (q *querier) SetPayoutRecipientCode(ctx context.Context, arg repository.SetPayoutRecipientCodeParams) (int64, error) {
	var rows int64
	err := q.do("SetPayoutRecipientCode", func(st *state, now time.Time) error {
		p, ok := st.profiles[arg.UserID]
		if !ok || p.AccountNumber != arg.AccountNumber || p.BankCode != arg.BankCode {
			return nil
		}
		code := arg.RecipientCode
		verified := now
		p.RecipientCode = &code
		p.VerifiedAt = &verified
		p.UpdatedAt = now
		st.profiles[arg.UserID] = p
		rows = 1
		return nil
	})
	return rows, err
}

// Withdrawals

func (q *querier) InsertWithdrawal(ctx context.Context, arg repository.InsertWithdrawalParams) (models.WithdrawalRequest, error) {
	var out models.WithdrawalRequest
	err := q.do("InsertWithdrawal", func(st *state, now time.Time) error {
		if _, ok := st.withdrawals[arg.ID]; ok {
			return uniqueViolation("withdrawal_requests_pkey")
		}
		if _, ok := st.reservations[arg.ReservationID]; !ok {
			return &pgconn.PgError{Code: "23503", ConstraintName: "withdrawal_requests_reservation_id_fkey"}
		}
		out = models.WithdrawalRequest{
			ID:            arg.ID,
			AgentID:       arg.AgentID,
			Amount:        arg.Amount,
			Pool:          arg.Pool,
			Status:        arg.Status,
			ReservationID: arg.ReservationID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		st.withdrawals[arg.ID] = out
		st.withdrawSeq = append(st.withdrawSeq, arg.ID)
		return nil
	})
	return out, err
}

func (q *querier) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	var out models.WithdrawalRequest
	err := q.do("GetWithdrawal", func(st *state, _ time.Time) error {
		w, ok := st.withdrawals[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = w
		return nil
	})
	return out, err
}

func (q *querier) GetWithdrawalByGatewayReference(ctx context.Context, gatewayReference string) (models.WithdrawalRequest, error) {
	var out models.WithdrawalRequest
	err := q.do("GetWithdrawalByGatewayReference", func(st *state, _ time.Time) error {
		for _, w := range st.withdrawals {
			if w.GatewayReference != nil && *w.GatewayReference == gatewayReference {
				out = w
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *querier) UpdateWithdrawalStatus(ctx context.Context, arg repository.UpdateWithdrawalStatusParams) (int64, error) {
	var rows int64
	err := q.do("UpdateWithdrawalStatus", func(st *state, now time.Time) error {
		w, ok := st.withdrawals[arg.ID]
		if !ok || w.Status != arg.FromStatus {
			return nil
		}
		if arg.GatewayReference != nil {
			for id, other := range st.withdrawals {
				if id != arg.ID && other.GatewayReference != nil && *other.GatewayReference == *arg.GatewayReference {
					return uniqueViolation("withdrawal_requests_gateway_reference_key")
				}
			}
			ref := *arg.GatewayReference
			w.GatewayReference = &ref
		}
		if arg.ErrorMessage != nil {
			msg := *arg.ErrorMessage
			w.ErrorMessage = &msg
		}
		w.Status = arg.ToStatus
		if arg.ToStatus == domain.WithdrawalStatusCompleted || arg.ToStatus == domain.WithdrawalStatusFailed {
			processed := now
			w.ProcessedAt = &processed
		}
		w.UpdatedAt = now
		st.withdrawals[arg.ID] = w
		rows = 1
		return nil
	})
	return rows, err
}

func (q *querier) ListAgentWithdrawals(ctx context.Context, arg repository.ListAgentWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	err := q.do("ListAgentWithdrawals", func(st *state, _ time.Time) error {
		var items []models.WithdrawalRequest
		for i := len(st.withdrawSeq) - 1; i >= 0; i-- {
			w := st.withdrawals[st.withdrawSeq[i]]
			if w.AgentID == arg.AgentID {
				items = append(items, w)
			}
		}
		out = window(items, arg.Limit, arg.Offset)
		return nil
	})
	return out, err
}

func (q *querier) GetStaleProcessingWithdrawals(ctx context.Context, arg repository.GetStaleProcessingWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	err := q.do("GetStaleProcessingWithdrawals", func(st *state, _ time.Time) error {
		var items []models.WithdrawalRequest
		for _, id := range st.withdrawSeq {
			w := st.withdrawals[id]
			if w.Status == domain.WithdrawalStatusProcessing && w.UpdatedAt.Before(arg.UpdatedBefore) {
				items = append(items, w)
			}
		}
		out = window(items, arg.Limit, 0)
		return nil
	})
	return out, err
}

// Audit

func (q *querier) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.do("InsertAuditLog", func(st *state, _ time.Time) error {
		id = int64(len(st.audit) + 1)
		st.audit = append(st.audit, AuditEntry{ID: id, InsertAuditLogParams: arg})
		return nil
	})
	return id, err
}

// Idempotency

func (q *querier) GetIdempotencyKey(ctx context.Context, idempotencyKey string) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do("GetIdempotencyKey", func(st *state, _ time.Time) error {
		k, ok := st.idem[idempotencyKey]
		if !ok {
			return pgx.ErrNoRows
		}
		out = k
		return nil
	})
	return out, err
}

func (q *querier) ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do("ReserveIdempotencyKey", func(st *state, now time.Time) error {
		if _, ok := st.idem[arg.IdempotencyKey]; ok {
			return pgx.ErrNoRows
		}
		out = repository.IdempotencyKey{
			IdempotencyKey: arg.IdempotencyKey,
			RequestHash:    arg.RequestHash,
			Method:         arg.Method,
			Path:           arg.Path,
			InProgress:     true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		st.idem[arg.IdempotencyKey] = out
		return nil
	})
	return out, err
}

func (q *querier) FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	var out repository.IdempotencyKey
	err := q.do("FinalizeIdempotencyKey", func(st *state, now time.Time) error {
		k, ok := st.idem[arg.IdempotencyKey]
		if !ok || k.RequestHash != arg.RequestHash {
			return pgx.ErrNoRows
		}
		k.ResponseStatus = arg.ResponseStatus
		k.ResponseBody = slices.Clone(arg.ResponseBody)
		k.ContentType = arg.ContentType
		k.InProgress = false
		k.UpdatedAt = now
		st.idem[arg.IdempotencyKey] = k
		out = k
		return nil
	})
	return out, err
}
