package repository

import (
	"context"
	"time"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const getAgentWallet = `
SELECT agent_id, customer_funds, delivery_earnings, updated_at
FROM agent_wallets WHERE agent_id = $1`

func (q *Queries) GetAgentWallet(ctx context.Context, agentID uuid.UUID) (models.AgentWallet, error) {
	var w models.AgentWallet
	err := q.db.QueryRow(ctx, getAgentWallet, agentID).Scan(&w.AgentID, &w.CustomerFunds, &w.DeliveryEarnings, &w.UpdatedAt)
	return w, err
}

const creditWalletPool = `
INSERT INTO agent_wallets (agent_id, customer_funds, delivery_earnings)
VALUES (
	$1,
	CASE WHEN $2::text = 'customer_funds' THEN $3::bigint ELSE 0 END,
	CASE WHEN $2::text = 'delivery_earnings' THEN $3::bigint ELSE 0 END
)
ON CONFLICT (agent_id) DO UPDATE SET
	customer_funds = agent_wallets.customer_funds + EXCLUDED.customer_funds,
	delivery_earnings = agent_wallets.delivery_earnings + EXCLUDED.delivery_earnings,
	updated_at = NOW()
RETURNING agent_id, customer_funds, delivery_earnings, updated_at`

// CreditWalletPool increments one pool, creating the wallet on first credit.
func (q *Queries) CreditWalletPool(ctx context.Context, arg WalletPoolAmountParams) (models.AgentWallet, error) {
	var w models.AgentWallet
	err := q.db.QueryRow(ctx, creditWalletPool, arg.AgentID, arg.Pool, arg.Amount).
		Scan(&w.AgentID, &w.CustomerFunds, &w.DeliveryEarnings, &w.UpdatedAt)
	return w, err
}

const debitWalletPool = `
UPDATE agent_wallets SET
	customer_funds = CASE WHEN $2::text = 'customer_funds' THEN customer_funds - $3::bigint ELSE customer_funds END,
	delivery_earnings = CASE WHEN $2::text = 'delivery_earnings' THEN delivery_earnings - $3::bigint ELSE delivery_earnings END,
	updated_at = NOW()
WHERE agent_id = $1
  AND (CASE WHEN $2::text = 'customer_funds' THEN customer_funds ELSE delivery_earnings END) >= $3::bigint`

// DebitWalletPool decrements one pool only if it covers the amount. Zero rows means
// the wallet is missing or short.
func (q *Queries) DebitWalletPool(ctx context.Context, arg WalletPoolAmountParams) (int64, error) {
	tag, err := q.db.Exec(ctx, debitWalletPool, arg.AgentID, arg.Pool, arg.Amount)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertWalletEntry = `
INSERT INTO wallet_entries (id, agent_id, pool, kind, amount, reference)
VALUES ($1, $2, $3, $4, $5, $6)`

func (q *Queries) InsertWalletEntry(ctx context.Context, arg InsertWalletEntryParams) error {
	_, err := q.db.Exec(ctx, insertWalletEntry, arg.ID, arg.AgentID, arg.Pool, arg.Kind, arg.Amount, arg.Reference)
	return err
}

const listWalletEntries = `
SELECT id, agent_id, pool, kind, amount, reference, created_at
FROM wallet_entries
WHERE agent_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListWalletEntries(ctx context.Context, arg ListWalletEntriesParams) ([]models.WalletEntry, error) {
	rows, err := q.db.Query(ctx, listWalletEntries, arg.AgentID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.WalletEntry
	for rows.Next() {
		var e models.WalletEntry
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Pool, &e.Kind, &e.Amount, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const reservationColumns = `id, agent_id, pool, amount, status, created_at, settled_at`

func scanReservation(row pgx.Row) (models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(&r.ID, &r.AgentID, &r.Pool, &r.Amount, &r.Status, &r.CreatedAt, &r.SettledAt)
	return r, err
}

const insertReservation = `
INSERT INTO wallet_reservations (id, agent_id, pool, amount, status)
VALUES ($1, $2, $3, $4, 'held')
RETURNING ` + reservationColumns

func (q *Queries) InsertReservation(ctx context.Context, arg InsertReservationParams) (models.Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, insertReservation, arg.ID, arg.AgentID, arg.Pool, arg.Amount))
}

const getReservation = `SELECT ` + reservationColumns + ` FROM wallet_reservations WHERE id = $1`

func (q *Queries) GetReservation(ctx context.Context, id uuid.UUID) (models.Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getReservation, id))
}

const settleReservation = `
UPDATE wallet_reservations
SET status = $3, settled_at = NOW()
WHERE id = $1 AND status = $2`

func (q *Queries) SettleReservation(ctx context.Context, arg SettleReservationParams) (int64, error) {
	tag, err := q.db.Exec(ctx, settleReservation, arg.ID, arg.FromStatus, arg.ToStatus)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const getWalletPoolImbalances = `
WITH sums AS (
	SELECT agent_id, pool, SUM(amount)::bigint AS journal_sum
	FROM wallet_entries
	GROUP BY agent_id, pool
), balances AS (
	SELECT agent_id, 'customer_funds'::text AS pool, customer_funds AS balance FROM agent_wallets
	UNION ALL
	SELECT agent_id, 'delivery_earnings'::text AS pool, delivery_earnings AS balance FROM agent_wallets
)
SELECT
	COALESCE(b.agent_id, s.agent_id) AS agent_id,
	COALESCE(b.pool, s.pool) AS pool,
	COALESCE(b.balance, 0)::bigint AS balance,
	COALESCE(s.journal_sum, 0)::bigint AS journal_sum
FROM balances b
FULL OUTER JOIN sums s ON s.agent_id = b.agent_id AND s.pool = b.pool
WHERE COALESCE(b.balance, 0) <> COALESCE(s.journal_sum, 0)
ORDER BY 1, 2`

func (q *Queries) GetWalletPoolImbalances(ctx context.Context) ([]WalletPoolImbalance, error) {
	rows, err := q.db.Query(ctx, getWalletPoolImbalances)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []WalletPoolImbalance
	for rows.Next() {
		var i WalletPoolImbalance
		if err := rows.Scan(&i.AgentID, &i.Pool, &i.Balance, &i.JournalSum); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countHeldReservationsBefore = `
SELECT COUNT(*) FROM wallet_reservations WHERE status = 'held' AND created_at < $1`

func (q *Queries) CountHeldReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countHeldReservationsBefore, cutoff).Scan(&n)
	return n, err
}
