package handler

import (
	"net/http"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/google/uuid"
)

// OrderHandler exposes the order lifecycle and the claim feed.
type OrderHandler struct {
	orders      *service.OrderService
	assignments *service.AssignmentService
}

func NewOrderHandler(orders *service.OrderService, assignments *service.AssignmentService) *OrderHandler {
	return &OrderHandler{orders: orders, assignments: assignments}
}

type createOrderRequest struct {
	CustomerID      string  `json:"customer_id" validate:"required,uuid"`
	SellerID        string  `json:"seller_id" validate:"required,uuid"`
	SellerType      string  `json:"seller_type" validate:"required,oneof=restaurant vendor"`
	Total           int64   `json:"total" validate:"gt=0"`
	DeliveryFee     int64   `json:"delivery_fee" validate:"gte=0"`
	DeliveryAddress string  `json:"delivery_address" validate:"required,max=500"`
	DeliveryNotes   *string `json:"delivery_notes,omitempty" validate:"omitempty,max=500"`
}

// CreateOrder handles POST /v1/orders. Called by checkout once payment is captured.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req createOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "order/create")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		CustomerID:      uuid.MustParse(req.CustomerID),
		SellerID:        uuid.MustParse(req.SellerID),
		SellerType:      req.SellerType,
		Total:           req.Total,
		DeliveryFee:     req.DeliveryFee,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryNotes:   req.DeliveryNotes,
	}, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "order/create")
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /v1/orders/{id}. Agents only see orders assigned to them.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	_, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order")
	if !ok {
		return
	}

	var agent *models.DeliveryAgent
	if !isPrivileged(role) {
		if agent, ok = currentAgent(w, r, h.assignments); !ok {
			return
		}
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, r, err, "order/read")
		return
	}
	if agent != nil && !order.AssignedTo(agent.ID) {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// ListClaimable handles GET /v1/orders/claimable.
func (h *OrderHandler) ListClaimable(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentAgent(w, r, h.assignments); !ok {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	orders, err := h.assignments.ListClaimableOrders(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, err, "order/claimable")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

// ClaimOrder handles POST /v1/orders/{id}/claim.
func (h *OrderHandler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order")
	if !ok {
		return
	}
	order, err := h.assignments.ClaimOrder(r.Context(), orderID, agent.ID)
	if err != nil {
		respondServiceError(w, r, err, "order/claim")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

// AdvanceOrder handles POST /v1/orders/{id}/status.
func (h *OrderHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order")
	if !ok {
		return
	}
	var req advanceOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "order/advance")
		return
	}
	order, err := h.orders.Advance(r.Context(), orderID, req.Status, agent.ID)
	if err != nil {
		respondServiceError(w, r, err, "order/advance")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// CancelOrder handles POST /v1/orders/{id}/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order")
	if !ok {
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), orderID, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "order/cancel")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}
