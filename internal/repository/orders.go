package repository

import (
	"context"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, order_number, status, customer_id, seller_id, seller_type, delivery_agent_id,
	total, delivery_fee, delivery_address, delivery_notes, created_at, updated_at`

func scanOrder(row pgx.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.Status,
		&o.CustomerID,
		&o.SellerID,
		&o.SellerType,
		&o.DeliveryAgentID,
		&o.Total,
		&o.DeliveryFee,
		&o.DeliveryAddress,
		&o.DeliveryNotes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	var items []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrder = `
INSERT INTO orders (id, order_number, status, customer_id, seller_id, seller_type, total, delivery_fee, delivery_address, delivery_notes)
VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (models.Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.OrderNumber,
		arg.CustomerID,
		arg.SellerID,
		arg.SellerType,
		arg.Total,
		arg.DeliveryFee,
		arg.DeliveryAddress,
		arg.DeliveryNotes,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const claimOrder = `
UPDATE orders
SET delivery_agent_id = $2, status = 'accepted', updated_at = NOW()
WHERE id = $1 AND delivery_agent_id IS NULL AND status = 'pending'`

// ClaimOrder is the assignment arbiter: at most one caller sees a row affected.
func (q *Queries) ClaimOrder(ctx context.Context, arg ClaimOrderParams) (int64, error) {
	tag, err := q.db.Exec(ctx, claimOrder, arg.ID, arg.AgentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const advanceOrderStatus = `
UPDATE orders
SET status = $4, updated_at = NOW()
WHERE id = $1 AND delivery_agent_id = $2 AND status = $3`

func (q *Queries) AdvanceOrderStatus(ctx context.Context, arg AdvanceOrderStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, advanceOrderStatus, arg.ID, arg.AgentID, arg.FromStatus, arg.ToStatus)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const cancelPendingOrder = `
UPDATE orders
SET status = 'cancelled', updated_at = NOW()
WHERE id = $1 AND status = 'pending' AND delivery_agent_id IS NULL`

func (q *Queries) CancelPendingOrder(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, cancelPendingOrder, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countActiveOrdersForAgent = `
SELECT COUNT(*) FROM orders
WHERE delivery_agent_id = $1 AND status NOT IN ('delivered', 'cancelled')`

func (q *Queries) CountActiveOrdersForAgent(ctx context.Context, agentID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveOrdersForAgent, agentID).Scan(&n)
	return n, err
}

const listClaimableOrders = `
SELECT ` + orderColumns + ` FROM orders
WHERE status = 'pending' AND delivery_agent_id IS NULL
ORDER BY created_at ASC, id ASC
LIMIT $1 OFFSET $2`

func (q *Queries) ListClaimableOrders(ctx context.Context, arg ListParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, listClaimableOrders, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listAgentOrders = `
SELECT ` + orderColumns + ` FROM orders
WHERE delivery_agent_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListAgentOrders(ctx context.Context, arg ListAgentOrdersParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, listAgentOrders, arg.AgentID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
