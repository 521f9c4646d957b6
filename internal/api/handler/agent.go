package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/service"
)

// AgentHandler serves the delivery agent's own resources under /v1/agents/me.
type AgentHandler struct {
	assignments *service.AssignmentService
	orders      *service.OrderService
	wallets     *service.WalletService
}

func NewAgentHandler(assignments *service.AssignmentService, orders *service.OrderService, wallets *service.WalletService) *AgentHandler {
	return &AgentHandler{assignments: assignments, orders: orders, wallets: wallets}
}

// currentAgent resolves the delivery agent behind the token. Callers without an
// agent record are forbidden rather than not found.
func currentAgent(w http.ResponseWriter, r *http.Request, assignments *service.AssignmentService) (*models.DeliveryAgent, bool) {
	userID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return nil, false
	}
	agent, err := assignments.AgentForUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondError(w, r, http.StatusForbidden, "auth/not-a-delivery-agent", "caller is not a registered delivery agent")
			return nil, false
		}
		respondServiceError(w, r, err, "agent/resolve")
		return nil, false
	}
	return agent, true
}

// GetMe handles GET /v1/agents/me.
func (h *AgentHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	summary, err := h.assignments.GetAgentSummary(r.Context(), agent.ID)
	if err != nil {
		respondServiceError(w, r, err, "agent/summary")
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// SetAvailability handles PUT /v1/agents/me/availability.
func (h *AgentHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "agent/availability")
		return
	}
	updated, err := h.assignments.ToggleAvailability(r.Context(), agent.ID, *req.Available)
	if err != nil {
		respondServiceError(w, r, err, "agent/availability")
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

// ListOrders handles GET /v1/agents/me/orders.
func (h *AgentHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListAgentOrders(r.Context(), agent.ID, limit, offset)
	if err != nil {
		respondServiceError(w, r, err, "agent/orders")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

type walletResponse struct {
	AgentID          string `json:"agent_id"`
	CustomerFunds    int64  `json:"customer_funds"`
	DeliveryEarnings int64  `json:"delivery_earnings"`
	TotalBalance     int64  `json:"total_balance"`
	Currency         string `json:"currency"`
	Display          string `json:"display_total"`
}

func newWalletResponse(wallet *models.AgentWallet) walletResponse {
	return walletResponse{
		AgentID:          wallet.AgentID.String(),
		CustomerFunds:    wallet.CustomerFunds,
		DeliveryEarnings: wallet.DeliveryEarnings,
		TotalBalance:     wallet.TotalBalance(),
		Currency:         domain.Currency,
		Display:          domain.Money(wallet.TotalBalance()).String(),
	}
}

// GetWallet handles GET /v1/agents/me/wallet.
func (h *AgentHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), agent.ID)
	if err != nil {
		respondServiceError(w, r, err, "wallet/read")
		return
	}
	RespondJSON(w, http.StatusOK, newWalletResponse(wallet))
}

// ListWalletEntries handles GET /v1/agents/me/wallet/entries.
func (h *AgentHandler) ListWalletEntries(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	entries, err := h.wallets.ListEntries(r.Context(), agent.ID, limit, offset)
	if err != nil {
		respondServiceError(w, r, err, "wallet/entries")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}
