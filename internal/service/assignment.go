package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignmentService decides which delivery agent gets an unassigned order.
type AssignmentService struct {
	store        QueryStore
	audit        *AuditService
	pollInterval time.Duration
}

func NewAssignmentService(store QueryStore, pollInterval time.Duration) *AssignmentService {
	return &AssignmentService{
		store:        store,
		audit:        NewAuditService(),
		pollInterval: pollInterval,
	}
}

// AgentSummary is what the agent app polls for.
type AgentSummary struct {
	Agent               models.DeliveryAgent `json:"agent"`
	ActiveOrders        int64                `json:"active_orders"`
	MaxActiveOrders     int                  `json:"max_active_orders"`
	PollIntervalSeconds int                  `json:"poll_interval_seconds"`
}

// ClaimOrder assigns an unassigned pending order to agentID. The agent row is
// locked for the duration so the active-order cap holds across instances, and the
// final conditional write guarantees at most one agent wins the order.
func (s *AssignmentService) ClaimOrder(ctx context.Context, orderID, agentID uuid.UUID) (*models.Order, error) {
	var claimed models.Order
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		order, err := qtx.GetOrder(ctx, orderID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.DeliveryAgentID != nil {
			return fmt.Errorf("%w: order %s", models.ErrAlreadyClaimed, orderID)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, orderID, order.Status)
		}

		agent, err := qtx.GetDeliveryAgentForUpdate(ctx, agentID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: delivery agent %s", models.ErrNotFound, agentID)
			}
			return fmt.Errorf("failed to lock delivery agent: %w", err)
		}

		active, err := qtx.CountActiveOrdersForAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to count active orders: %w", err)
		}
		if active >= domain.MaxActiveOrdersPerAgent {
			return fmt.Errorf("%w: agent %s already holds %d active orders", models.ErrCapacityExceeded, agentID, active)
		}
		if !agent.IsAvailable {
			return fmt.Errorf("%w: agent %s is offline", models.ErrForbidden, agentID)
		}

		rows, err := qtx.ClaimOrder(ctx, repository.ClaimOrderParams{ID: orderID, AgentID: agentID})
		if err != nil {
			return fmt.Errorf("failed to claim order: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: order %s", models.ErrAlreadyClaimed, orderID)
		}

		metadata := marshalMetadata(map[string]any{"active_orders": active + 1})
		if err := s.audit.Write(ctx, qtx, auditEntityOrder, orderID, &agentID, "order_claimed", domain.OrderStatusPending, domain.OrderStatusAccepted, metadata); err != nil {
			return err
		}

		claimed, err = qtx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		return nil
	})
	observability.IncrementClaim(claimOutcome(err))
	if err != nil {
		return nil, err
	}

	zap.L().Info("order claimed", zap.String("order_id", orderID.String()), zap.String("agent_id", agentID.String()))
	return &claimed, nil
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return "claimed"
	case errors.Is(err, models.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, models.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, models.ErrForbidden):
		return "offline"
	case errors.Is(err, models.ErrInvalidTransition):
		return "not_claimable"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// ToggleAvailability sets whether the agent accepts new claims. Orders already
// claimed are untouched. Setting the current value again is a no-op.
func (s *AssignmentService) ToggleAvailability(ctx context.Context, agentID uuid.UUID, available bool) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		current, err := qtx.GetDeliveryAgentForUpdate(ctx, agentID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: delivery agent %s", models.ErrNotFound, agentID)
			}
			return fmt.Errorf("failed to load delivery agent: %w", err)
		}
		if current.IsAvailable == available {
			agent = current
			return nil
		}

		rows, err := qtx.SetAgentAvailability(ctx, repository.SetAgentAvailabilityParams{ID: agentID, IsAvailable: available})
		if err != nil {
			return fmt.Errorf("failed to update availability: %w", err)
		}
		if err := requireExactlyOne(rows, "update agent availability"); err != nil {
			return err
		}

		prev, next := availabilityLabel(current.IsAvailable), availabilityLabel(available)
		if err := s.audit.Write(ctx, qtx, auditEntityAgent, agentID, &agentID, "availability_changed", prev, next, nil); err != nil {
			return err
		}

		agent, err = qtx.GetDeliveryAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to reload delivery agent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func availabilityLabel(available bool) string {
	if available {
		return "online"
	}
	return "offline"
}

// RegisterAgent creates the delivery agent record for an approved user.
func (s *AssignmentService) RegisterAgent(ctx context.Context, userID uuid.UUID, vehicleType string, actorID *uuid.UUID) (*models.DeliveryAgent, error) {
	switch vehicleType {
	case domain.VehicleFoot, domain.VehicleBicycle, domain.VehicleMotorcycle, domain.VehicleCar:
	default:
		return nil, fmt.Errorf("%w: unsupported vehicle_type %q", models.ErrValidation, vehicleType)
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", models.ErrValidation)
	}

	var agent models.DeliveryAgent
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		agent, err = qtx.CreateDeliveryAgent(ctx, repository.CreateDeliveryAgentParams{
			ID:          uuid.New(),
			UserID:      userID,
			IsAvailable: false,
			VehicleType: vehicleType,
		})
		if err != nil {
			return fmt.Errorf("failed to create delivery agent: %w", err)
		}
		return s.audit.Write(ctx, qtx, auditEntityAgent, agent.ID, actorID, "agent_registered", "", availabilityLabel(false), nil)
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// AgentForUser resolves the delivery agent behind an authenticated user.
func (s *AssignmentService) AgentForUser(ctx context.Context, userID uuid.UUID) (*models.DeliveryAgent, error) {
	agent, err := s.store.Queries().GetDeliveryAgentByUserID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: no delivery agent for user %s", models.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load delivery agent: %w", err)
	}
	return &agent, nil
}

func (s *AssignmentService) GetAgentSummary(ctx context.Context, agentID uuid.UUID) (*AgentSummary, error) {
	queries := s.store.Queries()
	agent, err := queries.GetDeliveryAgent(ctx, agentID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: delivery agent %s", models.ErrNotFound, agentID)
		}
		return nil, fmt.Errorf("failed to load delivery agent: %w", err)
	}
	active, err := queries.CountActiveOrdersForAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active orders: %w", err)
	}
	return &AgentSummary{
		Agent:               agent,
		ActiveOrders:        active,
		MaxActiveOrders:     domain.MaxActiveOrdersPerAgent,
		PollIntervalSeconds: int(s.pollInterval / time.Second),
	}, nil
}

// ListClaimableOrders is the feed of pending unassigned orders, oldest first.
func (s *AssignmentService) ListClaimableOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	l, o := pageBounds(limit, offset)
	orders, err := s.store.Queries().ListClaimableOrders(ctx, repository.ListParams{Limit: l, Offset: o})
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable orders: %w", err)
	}
	return orders, nil
}
