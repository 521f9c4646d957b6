package repository

import (
	"context"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const agentColumns = `id, user_id, is_available, vehicle_type, created_at, updated_at`

func scanAgent(row pgx.Row) (models.DeliveryAgent, error) {
	var a models.DeliveryAgent
	err := row.Scan(&a.ID, &a.UserID, &a.IsAvailable, &a.VehicleType, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

const createDeliveryAgent = `
INSERT INTO delivery_agents (id, user_id, is_available, vehicle_type)
VALUES ($1, $2, $3, $4)
RETURNING ` + agentColumns

func (q *Queries) CreateDeliveryAgent(ctx context.Context, arg CreateDeliveryAgentParams) (models.DeliveryAgent, error) {
	return scanAgent(q.db.QueryRow(ctx, createDeliveryAgent, arg.ID, arg.UserID, arg.IsAvailable, arg.VehicleType))
}

const getDeliveryAgent = `SELECT ` + agentColumns + ` FROM delivery_agents WHERE id = $1`

func (q *Queries) GetDeliveryAgent(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error) {
	return scanAgent(q.db.QueryRow(ctx, getDeliveryAgent, id))
}

const getDeliveryAgentForUpdate = `SELECT ` + agentColumns + ` FROM delivery_agents WHERE id = $1 FOR UPDATE`

// GetDeliveryAgentForUpdate locks the agent row until the enclosing transaction ends.
func (q *Queries) GetDeliveryAgentForUpdate(ctx context.Context, id uuid.UUID) (models.DeliveryAgent, error) {
	return scanAgent(q.db.QueryRow(ctx, getDeliveryAgentForUpdate, id))
}

const getDeliveryAgentByUserID = `SELECT ` + agentColumns + ` FROM delivery_agents WHERE user_id = $1`

func (q *Queries) GetDeliveryAgentByUserID(ctx context.Context, userID uuid.UUID) (models.DeliveryAgent, error) {
	return scanAgent(q.db.QueryRow(ctx, getDeliveryAgentByUserID, userID))
}

const setAgentAvailability = `
UPDATE delivery_agents SET is_available = $2, updated_at = NOW() WHERE id = $1`

func (q *Queries) SetAgentAvailability(ctx context.Context, arg SetAgentAvailabilityParams) (int64, error) {
	tag, err := q.db.Exec(ctx, setAgentAvailability, arg.ID, arg.IsAvailable)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
