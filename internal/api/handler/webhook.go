package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/campus-courier/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBytes = 256 << 10

// WebhookHandler handles transfer events pushed by the payout gateway.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
	}
}

// HandleGatewayEvent handles POST /v1/webhooks/payout-gateway. The signature covers
// the raw body, so it is read in full before anything parses it.
func (h *WebhookHandler) HandleGatewayEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Paystack-Signature")

	resp, err := h.webhookSvc.HandleGatewayEvent(r.Context(), body, signature)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
			return
		}
		respondServiceError(w, r, err, "webhook/process")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
