package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/service"
	"go.uber.org/zap"
)

// PayoutHandler handles bank details, payee registration and withdrawals.
type PayoutHandler struct {
	payouts     *service.PayoutService
	assignments *service.AssignmentService
}

func NewPayoutHandler(payouts *service.PayoutService, assignments *service.AssignmentService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, assignments: assignments}
}

type payoutProfileRequest struct {
	AccountNumber string `json:"account_number" validate:"required,number,len=10"`
	BankCode      string `json:"bank_code" validate:"required,number,min=3,max=6"`
}

type payoutProfileResponse struct {
	AccountNumber string     `json:"account_number"`
	BankCode      string     `json:"bank_code"`
	Verified      bool       `json:"verified"`
	VerifiedAt    *time.Time `json:"verified_at"`
}

func newPayoutProfileResponse(p *models.AgentPayoutProfile) payoutProfileResponse {
	return payoutProfileResponse{
		AccountNumber: maskAccount(p.AccountNumber),
		BankCode:      p.BankCode,
		Verified:      p.Verified(),
		VerifiedAt:    p.VerifiedAt,
	}
}

func maskAccount(account string) string {
	if len(account) <= 4 {
		return account
	}
	masked := make([]byte, len(account))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(account)-4:], account[len(account)-4:])
	return string(masked)
}

// GetPayoutProfile handles GET /v1/agents/me/payout-profile.
func (h *PayoutHandler) GetPayoutProfile(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	profile, err := h.payouts.GetPayoutProfile(r.Context(), agent.ID)
	if err != nil {
		respondServiceError(w, r, err, "payout-profile/read")
		return
	}
	RespondJSON(w, http.StatusOK, newPayoutProfileResponse(profile))
}

// UpsertPayoutProfile handles PUT /v1/agents/me/payout-profile.
func (h *PayoutHandler) UpsertPayoutProfile(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	var req payoutProfileRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "payout-profile/update")
		return
	}
	profile, err := h.payouts.UpsertPayoutProfile(r.Context(), agent.ID, req.AccountNumber, req.BankCode)
	if err != nil {
		respondServiceError(w, r, err, "payout-profile/update")
		return
	}
	RespondJSON(w, http.StatusOK, newPayoutProfileResponse(profile))
}

// RegisterPayee handles POST /v1/agents/me/payee. Safe to retry after a gateway error.
func (h *PayoutHandler) RegisterPayee(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	profile, err := h.payouts.RegisterPayee(r.Context(), agent.ID)
	if err != nil {
		if errors.Is(err, models.ErrGateway) {
			w.Header().Set("Retry-After", "30")
		}
		respondServiceError(w, r, err, "payee/register")
		return
	}
	RespondJSON(w, http.StatusOK, newPayoutProfileResponse(profile))
}

type withdrawalRequest struct {
	Pool   string `json:"pool" validate:"required"`
	Amount int64  `json:"amount"`
}

// RequestWithdrawal handles POST /v1/withdrawals. The call blocks until the gateway
// answers; a gateway failure returns 502 with the failed withdrawal in the body.
func (h *PayoutHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondServiceError(w, r, err, "withdrawal/create")
		return
	}

	withdrawal, err := h.payouts.RequestWithdrawal(r.Context(), agent.ID, req.Pool, req.Amount)
	if err != nil {
		if errors.Is(err, models.ErrGateway) && withdrawal != nil {
			zap.L().Warn("withdrawal failed at gateway",
				zap.String("withdrawal_id", withdrawal.ID.String()),
				zap.Error(err),
			)
			RespondJSON(w, http.StatusBadGateway, withdrawal)
			return
		}
		respondServiceError(w, r, err, "withdrawal/create")
		return
	}
	RespondJSON(w, http.StatusCreated, withdrawal)
}

// GetWithdrawal handles GET /v1/withdrawals/{id}.
func (h *PayoutHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	_, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	withdrawalID, ok := pathUUID(w, r, "id", "withdrawal")
	if !ok {
		return
	}

	var agent *models.DeliveryAgent
	if !isPrivileged(role) {
		if agent, ok = currentAgent(w, r, h.assignments); !ok {
			return
		}
	}

	withdrawal, err := h.payouts.GetWithdrawal(r.Context(), withdrawalID)
	if err != nil {
		respondServiceError(w, r, err, "withdrawal/read")
		return
	}
	if agent != nil && withdrawal.AgentID != agent.ID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}

// ListWithdrawals handles GET /v1/agents/me/withdrawals.
func (h *PayoutHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	agent, ok := currentAgent(w, r, h.assignments)
	if !ok {
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	items, err := h.payouts.ListAgentWithdrawals(r.Context(), agent.ID, limit, offset)
	if err != nil {
		respondServiceError(w, r, err, "withdrawal/list")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
