package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminHandler holds operator-only endpoints.
type AdminHandler struct {
	assignments *service.AssignmentService
	wallets     *service.WalletService
}

func NewAdminHandler(assignments *service.AssignmentService, wallets *service.WalletService) *AdminHandler {
	return &AdminHandler{assignments: assignments, wallets: wallets}
}

type registerAgentRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid"`
	VehicleType string `json:"vehicle_type" validate:"required,oneof=foot bicycle motorcycle car"`
}

// RegisterAgent handles POST /v1/admin/agents for an approved applicant.
func (h *AdminHandler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req registerAgentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "admin/register-agent")
		return
	}
	agent, err := h.assignments.RegisterAgent(r.Context(), uuid.MustParse(req.UserID), req.VehicleType, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "admin/register-agent")
		return
	}
	RespondJSON(w, http.StatusCreated, agent)
}

// creditRequest takes the amount in naira as a decimal string, e.g. "2500.00".
type creditRequest struct {
	Pool      string `json:"pool" validate:"required,oneof=customer_funds delivery_earnings"`
	Amount    string `json:"amount" validate:"required"`
	Reference string `json:"reference" validate:"required,max=128"`
}

// CreditWallet handles POST /v1/admin/agents/{id}/wallet/credits. This is how the
// customer_funds pool is funded.
func (h *AdminHandler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	agentID, ok := pathUUID(w, r, "id", "agent")
	if !ok {
		return
	}
	var req creditRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "admin/credit")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "invalid-amount", "amount must be a decimal number of naira")
		return
	}
	if amount.Exponent() < -2 {
		RespondError(w, r, http.StatusBadRequest, "invalid-amount", "amount cannot have more than two decimal places")
		return
	}
	minor := domain.MoneyFromDecimal(amount)

	wallet, err := h.wallets.Credit(r.Context(), agentID, req.Pool, int64(minor), "admin:"+strings.TrimSpace(req.Reference))
	if err != nil {
		respondServiceError(w, r, err, "admin/credit")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"credited": minor,
		"display":  minor.String(),
		"wallet":   newWalletResponse(wallet),
	})
}
