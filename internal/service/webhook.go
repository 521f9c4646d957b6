package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid signature")

const (
	eventTransferSuccess  = "transfer.success"
	eventTransferFailed   = "transfer.failed"
	eventTransferReversed = "transfer.reversed"
)

// Webhook outcomes reported back to the caller.
const (
	WebhookIgnored              = "ignored"
	WebhookApplied              = "applied"
	WebhookConfirmed            = "confirmed"
	WebhookManualReconciliation = "manual_reconciliation"
)

// WebhookService handles transfer events pushed by the payout gateway.
type WebhookService struct {
	store   QueryStore
	payouts *PayoutService
	secret  []byte
	skipSig bool
	audit   *AuditService
}

// NewWebhookService creates a new WebhookService instance.
func NewWebhookService(store QueryStore, payouts *PayoutService, secret string, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:   store,
		payouts: payouts,
		secret:  []byte(secret),
		skipSig: skipSignature,
		audit:   NewAuditService(),
	}
}

// WebhookResult describes what an event did.
type WebhookResult struct {
	Outcome      string     `json:"outcome"`
	Event        string     `json:"event"`
	WithdrawalID *uuid.UUID `json:"withdrawal_id,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// HandleGatewayEvent verifies and applies a transfer event. A withdrawal still in
// processing is settled by the event; a terminal withdrawal is never changed, and a
// contradicting event is recorded and flagged for manual reconciliation.
func (s *WebhookService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !s.verifySignature(payload, signature) {
		return nil, ErrInvalidSignature
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", models.ErrValidation)
	}

	event := gjson.GetBytes(payload, "event").String()
	result := &WebhookResult{Outcome: WebhookIgnored, Event: event}
	switch event {
	case eventTransferSuccess, eventTransferFailed, eventTransferReversed:
	default:
		zap.L().Info("ignoring gateway event", zap.String("event", event))
		return result, nil
	}

	transferCode := gjson.GetBytes(payload, "data.transfer_code").String()
	reference := gjson.GetBytes(payload, "data.reference").String()
	w, err := s.findWithdrawal(ctx, transferCode, reference)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			zap.L().Warn("gateway event for unknown withdrawal",
				zap.String("event", event),
				zap.String("transfer_code", transferCode),
				zap.String("reference", reference),
			)
			return result, nil
		}
		return nil, err
	}
	result.WithdrawalID = &w.ID

	reason := gjson.GetBytes(payload, "data.reason").String()
	if reason == "" {
		reason = gjson.GetBytes(payload, "data.status").String()
	}
	succeeded := event == eventTransferSuccess

	switch w.Status {
	case domain.WithdrawalStatusProcessing:
		var settled *models.WithdrawalRequest
		if succeeded {
			ref := transferCode
			if ref == "" {
				ref = reference
			}
			settled, err = s.payouts.completeWithdrawal(ctx, w.ID, ref)
		} else {
			settled, err = s.payouts.failWithdrawal(ctx, w.ID, fmt.Sprintf("%s: %s", event, reason))
		}
		if err != nil {
			return nil, err
		}
		result.Outcome = WebhookApplied
		result.Status = settled.Status
		return result, nil

	case domain.WithdrawalStatusCompleted, domain.WithdrawalStatusFailed:
		consistent := succeeded == (w.Status == domain.WithdrawalStatusCompleted)
		action := "gateway_event_confirmed"
		result.Outcome = WebhookConfirmed
		if !consistent {
			action = "gateway_event_conflict"
			result.Outcome = WebhookManualReconciliation
		}
		metadata := marshalMetadata(map[string]any{"event": event, "transfer_code": transferCode, "reason": reason})
		if err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			return s.audit.Write(ctx, qtx, auditEntityWithdrawal, w.ID, nil, action, w.Status, w.Status, metadata)
		}); err != nil {
			return nil, err
		}
		if !consistent {
			observability.IncrementManualReconciliation(strings.ReplaceAll(event, ".", "_") + "_after_" + w.Status)
			zap.L().Error("gateway event contradicts terminal withdrawal; manual reconciliation required",
				zap.String("withdrawal_id", w.ID.String()),
				zap.String("status", w.Status),
				zap.String("event", event),
				zap.String("reason", reason),
			)
		}
		result.Status = w.Status
		return result, nil

	default:
		zap.L().Warn("gateway event for withdrawal not yet sent", zap.String("withdrawal_id", w.ID.String()), zap.String("status", w.Status))
		result.Status = w.Status
		return result, nil
	}
}

// findWithdrawal matches by the gateway's transfer code first, then by our own
// reference, which is the withdrawal id.
func (s *WebhookService) findWithdrawal(ctx context.Context, transferCode, reference string) (models.WithdrawalRequest, error) {
	queries := s.store.Queries()
	if transferCode != "" {
		w, err := queries.GetWithdrawalByGatewayReference(ctx, transferCode)
		if err == nil {
			return w, nil
		}
		if !isNoRows(err) {
			return models.WithdrawalRequest{}, fmt.Errorf("failed to load withdrawal: %w", err)
		}
	}
	id, err := uuid.Parse(reference)
	if err != nil {
		return models.WithdrawalRequest{}, models.ErrNotFound
	}
	w, err := queries.GetWithdrawal(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return models.WithdrawalRequest{}, models.ErrNotFound
		}
		return models.WithdrawalRequest{}, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	return w, nil
}

// verifySignature checks the hex HMAC-SHA512 of the raw body.
func (s *WebhookService) verifySignature(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.secret) == 0 {
		return false
	}

	h := hmac.New(sha512.New, s.secret)
	h.Write(payload)
	expectedSig := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expectedSig))
}
