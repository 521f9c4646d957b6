package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const orderNumberAttempts = 3

// OrderService owns the order lifecycle.
type OrderService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewOrderService(store QueryStore) *OrderService {
	return &OrderService{
		store: store,
		audit: NewAuditService(),
		now:   time.Now,
	}
}

// CreateOrderInput is what checkout hands over once payment is captured.
type CreateOrderInput struct {
	CustomerID      uuid.UUID
	SellerID        uuid.UUID
	SellerType      string
	Total           int64
	DeliveryFee     int64
	DeliveryAddress string
	DeliveryNotes   *string
}

func (in CreateOrderInput) validate() error {
	if in.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: customer_id is required", models.ErrValidation)
	}
	if in.SellerID == uuid.Nil {
		return fmt.Errorf("%w: seller_id is required", models.ErrValidation)
	}
	if in.SellerType != domain.SellerTypeRestaurant && in.SellerType != domain.SellerTypeVendor {
		return fmt.Errorf("%w: unsupported seller_type %q", models.ErrValidation, in.SellerType)
	}
	if in.Total <= 0 {
		return fmt.Errorf("%w: total must be positive", models.ErrInvalidAmount)
	}
	if in.DeliveryFee < 0 || in.DeliveryFee > in.Total {
		return fmt.Errorf("%w: delivery_fee must be between 0 and total", models.ErrInvalidAmount)
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery_address is required", models.ErrValidation)
	}
	return nil
}

// CreateOrder records a new pending, unassigned order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput, actorID *uuid.UUID) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		order models.Order
		err   error
	)
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		orderID := uuid.New()
		err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			var err error
			order, err = qtx.CreateOrder(ctx, repository.CreateOrderParams{
				ID:              orderID,
				OrderNumber:     s.orderNumber(orderID),
				CustomerID:      in.CustomerID,
				SellerID:        in.SellerID,
				SellerType:      in.SellerType,
				Total:           in.Total,
				DeliveryFee:     in.DeliveryFee,
				DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
				DeliveryNotes:   in.DeliveryNotes,
			})
			if err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}
			return s.audit.Write(ctx, qtx, auditEntityOrder, orderID, actorID, "order_created", "", domain.OrderStatusPending, nil)
		})
		if !isOrderNumberCollision(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// orderNumber renders CC-YYYYMMDD-XXXXXX.
func (s *OrderService) orderNumber(id uuid.UUID) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
	return fmt.Sprintf("CC-%s-%s", s.now().UTC().Format("20060102"), suffix)
}

func isOrderNumberCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "order_number")
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// ListAgentOrders returns the agent's orders, newest first.
func (s *OrderService) ListAgentOrders(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]models.Order, error) {
	l, o := pageBounds(limit, offset)
	orders, err := s.store.Queries().ListAgentOrders(ctx, repository.ListAgentOrdersParams{
		AgentID: agentID,
		Limit:   l,
		Offset:  o,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list agent orders: %w", err)
	}
	return orders, nil
}

// Advance moves an order one step forward on behalf of its assigned agent. Entering
// delivered credits the delivery fee to the agent's earnings in the same transaction.
func (s *OrderService) Advance(ctx context.Context, orderID uuid.UUID, requested string, agentID uuid.UUID) (*models.Order, error) {
	var (
		updated models.Order
		from    string
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		order, err := qtx.GetOrder(ctx, orderID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		if !order.AssignedTo(agentID) {
			return fmt.Errorf("%w: order %s is not assigned to agent %s", models.ErrForbidden, orderID, agentID)
		}
		if !canAgentAdvance(order.Status, requested) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, requested)
		}
		from = order.Status

		rows, err := qtx.AdvanceOrderStatus(ctx, repository.AdvanceOrderStatusParams{
			ID:         orderID,
			AgentID:    agentID,
			FromStatus: order.Status,
			ToStatus:   requested,
		})
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: order %s changed concurrently", models.ErrInvalidTransition, orderID)
		}

		metadata := map[string]any{}
		if requested == domain.OrderStatusDelivered && order.DeliveryFee > 0 {
			if _, err := creditPool(ctx, qtx, agentID, domain.PoolDeliveryEarnings, order.DeliveryFee, "order:"+orderID.String()); err != nil {
				return fmt.Errorf("failed to credit delivery earnings: %w", err)
			}
			metadata["delivery_fee_credited"] = order.DeliveryFee
		}

		if err := s.audit.Write(ctx, qtx, auditEntityOrder, orderID, &agentID, "order_status_changed", order.Status, requested, marshalMetadata(metadata)); err != nil {
			return err
		}

		updated, err = qtx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementOrderTransition(from, requested)
	if requested == domain.OrderStatusDelivered {
		zap.L().Info("order delivered",
			zap.String("order_id", orderID.String()),
			zap.String("agent_id", agentID.String()),
			zap.Int64("delivery_fee", updated.DeliveryFee),
		)
	}
	return &updated, nil
}

// CancelOrder cancels a pending order nobody has claimed yet. A claim and a cancel
// racing on the same order are arbitrated by the database; exactly one wins.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID) (*models.Order, error) {
	var updated models.Order
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		order, err := qtx.GetOrder(ctx, orderID)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		rows, err := qtx.CancelPendingOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: order %s is %s and cannot be cancelled", models.ErrInvalidTransition, orderID, order.Status)
		}

		if err := s.audit.Write(ctx, qtx, auditEntityOrder, orderID, actorID, "order_cancelled", order.Status, domain.OrderStatusCancelled, nil); err != nil {
			return err
		}

		updated, err = qtx.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementOrderTransition(domain.OrderStatusPending, domain.OrderStatusCancelled)
	return &updated, nil
}
