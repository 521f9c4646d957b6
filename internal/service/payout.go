package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/gateway"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultGatewayTimeout = 15 * time.Second
	abandonedReason       = "processing abandoned"

	// A processing withdrawal is only stale once it has outlived this many gateway timeouts.
	staleWindowFactor = 2
)

// PayoutService moves money from agent wallets to their bank accounts through the
// payout gateway, compensating the wallet when a transfer does not go through.
type PayoutService struct {
	store          QueryStore
	gateway        gateway.Gateway
	audit          *AuditService
	gatewayTimeout time.Duration
}

func NewPayoutService(store QueryStore, gw gateway.Gateway, gatewayTimeout time.Duration) *PayoutService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &PayoutService{
		store:          store,
		gateway:        gw,
		audit:          NewAuditService(),
		gatewayTimeout: gatewayTimeout,
	}
}

// gatewayContext bounds a gateway call and detaches it from the caller, so a client
// disconnect cannot leave a transfer half-recorded.
func (s *PayoutService) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
}

// MinStaleWindow is the shortest processing age at which a withdrawal may be swept.
// Anything shorter could release funds for a transfer that is still in flight.
func (s *PayoutService) MinStaleWindow() time.Duration {
	return staleWindowFactor * s.gatewayTimeout
}

func (s *PayoutService) loadAgent(ctx context.Context, agentID uuid.UUID) (models.DeliveryAgent, error) {
	agent, err := s.store.Queries().GetDeliveryAgent(ctx, agentID)
	if err != nil {
		if isNoRows(err) {
			return models.DeliveryAgent{}, fmt.Errorf("%w: delivery agent %s", models.ErrNotFound, agentID)
		}
		return models.DeliveryAgent{}, fmt.Errorf("failed to load delivery agent: %w", err)
	}
	return agent, nil
}

// GetPayoutProfile returns the agent's bank details.
func (s *PayoutService) GetPayoutProfile(ctx context.Context, agentID uuid.UUID) (*models.AgentPayoutProfile, error) {
	agent, err := s.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.Queries().GetPayoutProfile(ctx, agent.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: no payout profile for agent %s", models.ErrNotFound, agentID)
		}
		return nil, fmt.Errorf("failed to load payout profile: %w", err)
	}
	return &profile, nil
}

// UpsertPayoutProfile stores bank details. Changing them drops any recipient code,
// so the account must be registered with the gateway again.
func (s *PayoutService) UpsertPayoutProfile(ctx context.Context, agentID uuid.UUID, accountNumber, bankCode string) (*models.AgentPayoutProfile, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	bankCode = strings.TrimSpace(bankCode)
	if err := validate.Var(accountNumber, "required,number,len=10"); err != nil {
		return nil, fmt.Errorf("%w: account_number must be 10 digits", models.ErrValidation)
	}
	if err := validate.Var(bankCode, "required,number,min=3,max=6"); err != nil {
		return nil, fmt.Errorf("%w: bank_code must be 3 to 6 digits", models.ErrValidation)
	}

	agent, err := s.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.Queries().UpsertPayoutProfile(ctx, repository.UpsertPayoutProfileParams{
		UserID:        agent.UserID,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save payout profile: %w", err)
	}
	return &profile, nil
}

// RegisterPayee registers the agent's bank account with the gateway and stores the
// returned recipient code. Safe to call again after a gateway error.
func (s *PayoutService) RegisterPayee(ctx context.Context, agentID uuid.UUID) (*models.AgentPayoutProfile, error) {
	agent, err := s.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	queries := s.store.Queries()
	profile, err := queries.GetPayoutProfile(ctx, agent.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: no bank details on file", models.ErrBankNotVerified)
		}
		return nil, fmt.Errorf("failed to load payout profile: %w", err)
	}
	if profile.Verified() {
		return &profile, nil
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	code, err := s.gateway.RegisterPayee(gwCtx, profile.AccountNumber, profile.BankCode)
	cancel()
	if err != nil {
		zap.L().Warn("payee registration failed", zap.Error(err), zap.String("agent_id", agentID.String()))
		return nil, fmt.Errorf("%w: %v", models.ErrGateway, err)
	}

	rows, err := queries.SetPayoutRecipientCode(ctx, repository.SetPayoutRecipientCodeParams{
		UserID:        agent.UserID,
		AccountNumber: profile.AccountNumber,
		BankCode:      profile.BankCode,
		RecipientCode: code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store recipient code: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: bank details changed during registration, register again", models.ErrValidation)
	}

	updated, err := queries.GetPayoutProfile(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payout profile: %w", err)
	}
	zap.L().Info("payee registered", zap.String("agent_id", agentID.String()))
	return &updated, nil
}

// RequestWithdrawal pays amount out of one pool to the agent's verified bank account.
// Funds are reserved and the request moved to processing in one transaction, the
// gateway is called outside any transaction, and the outcome is applied in a second
// transaction. A gateway failure releases the reservation and returns the failed
// withdrawal together with an ErrGateway error.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, agentID uuid.UUID, pool string, amount int64) (*models.WithdrawalRequest, error) {
	if err := validatePoolAmount(pool, amount); err != nil {
		return nil, err
	}

	agent, err := s.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.Queries().GetPayoutProfile(ctx, agent.UserID)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("failed to load payout profile: %w", err)
	}
	if err != nil || !profile.Verified() {
		return nil, fmt.Errorf("%w: register a payee before withdrawing", models.ErrBankNotVerified)
	}

	withdrawalID := uuid.New()
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		res, err := reservePool(ctx, qtx, agentID, pool, amount)
		if err != nil {
			return err
		}

		if _, err := qtx.InsertWithdrawal(ctx, repository.InsertWithdrawalParams{
			ID:            withdrawalID,
			AgentID:       agentID,
			Amount:        amount,
			Pool:          pool,
			Status:        domain.WithdrawalStatusPending,
			ReservationID: res.ID,
		}); err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		metadata := marshalMetadata(map[string]any{"pool": pool, "amount": amount, "reservation_id": res.ID.String()})
		if err := s.audit.Write(ctx, qtx, auditEntityWithdrawal, withdrawalID, &agentID, "withdrawal_requested", "", domain.WithdrawalStatusPending, metadata); err != nil {
			return err
		}

		return s.transitionWithdrawal(ctx, qtx, withdrawalID, &agentID, domain.WithdrawalStatusPending, domain.WithdrawalStatusProcessing, nil, nil, "processing_started")
	})
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	transferRef, gwErr := s.gateway.InitiateTransfer(gwCtx, *profile.RecipientCode, amount, withdrawalID.String())
	cancel()

	settleCtx := context.WithoutCancel(ctx)
	if gwErr != nil {
		reason := gwErr.Error()
		if errors.Is(gwErr, context.DeadlineExceeded) {
			reason = "gateway timeout: " + reason
		}
		failed, err := s.failWithdrawal(settleCtx, withdrawalID, reason)
		if err != nil {
			zap.L().Error("withdrawal compensation failed; left in processing for recovery",
				zap.Error(err),
				zap.String("withdrawal_id", withdrawalID.String()),
				zap.String("gateway_error", reason),
			)
			return nil, fmt.Errorf("%w: %v (compensation failed: %v)", models.ErrGateway, gwErr, err)
		}
		return failed, fmt.Errorf("%w: %v", models.ErrGateway, gwErr)
	}

	completed, err := s.completeWithdrawal(settleCtx, withdrawalID, transferRef)
	if errors.Is(err, models.ErrInvalidTransition) {
		if settled, ok := s.settledByGateway(settleCtx, withdrawalID, transferRef); ok {
			return settled, nil
		}
	}
	if err != nil {
		observability.IncrementManualReconciliation("completion_not_recorded")
		zap.L().Error("transfer accepted by gateway but completion was not recorded; manual reconciliation required",
			zap.Error(err),
			zap.String("withdrawal_id", withdrawalID.String()),
			zap.String("gateway_reference", transferRef),
		)
		return nil, err
	}
	return completed, nil
}

// settledByGateway reports a withdrawal already completed with transferRef, which
// happens when the gateway's success event lands before the synchronous path records it.
func (s *PayoutService) settledByGateway(ctx context.Context, withdrawalID uuid.UUID, transferRef string) (*models.WithdrawalRequest, bool) {
	w, err := s.store.Queries().GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, false
	}
	if w.Status != domain.WithdrawalStatusCompleted || w.GatewayReference == nil || *w.GatewayReference != transferRef {
		return nil, false
	}
	zap.L().Info("withdrawal already completed by gateway event",
		zap.String("withdrawal_id", withdrawalID.String()),
		zap.String("gateway_reference", transferRef),
	)
	return &w, true
}

// transitionWithdrawal applies one checked status change with its audit row.
func (s *PayoutService) transitionWithdrawal(ctx context.Context, qtx repository.Querier, withdrawalID uuid.UUID, actorID *uuid.UUID, from, to string, gatewayRef, errorMessage *string, action string) error {
	if !canTransition(withdrawalTransitions, from, to) {
		return fmt.Errorf("%w: withdrawal %s -> %s", models.ErrInvalidTransition, from, to)
	}
	rows, err := qtx.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
		ID:               withdrawalID,
		FromStatus:       from,
		ToStatus:         to,
		GatewayReference: gatewayRef,
		ErrorMessage:     errorMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: withdrawal %s is no longer %s", models.ErrInvalidTransition, withdrawalID, from)
	}

	var metadata []byte
	if errorMessage != nil {
		metadata = marshalMetadata(map[string]any{"reason": *errorMessage})
	} else if gatewayRef != nil {
		metadata = marshalMetadata(map[string]any{"gateway_reference": *gatewayRef})
	}
	return s.audit.Write(ctx, qtx, auditEntityWithdrawal, withdrawalID, actorID, action, from, to, metadata)
}

// completeWithdrawal records a gateway success and consumes the reservation.
func (s *PayoutService) completeWithdrawal(ctx context.Context, withdrawalID uuid.UUID, transferRef string) (*models.WithdrawalRequest, error) {
	var out models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		w, err := qtx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("failed to load withdrawal: %w", err)
		}
		ref := transferRef
		if err := s.transitionWithdrawal(ctx, qtx, withdrawalID, nil, domain.WithdrawalStatusProcessing, domain.WithdrawalStatusCompleted, &ref, nil, "withdrawal_completed"); err != nil {
			return err
		}
		if err := finalizeReservation(ctx, qtx, w.ReservationID); err != nil {
			return fmt.Errorf("failed to finalize reservation: %w", err)
		}
		out, err = qtx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("failed to reload withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementWithdrawal(out.Pool, domain.WithdrawalStatusCompleted)
	zap.L().Info("withdrawal completed",
		zap.String("withdrawal_id", withdrawalID.String()),
		zap.String("gateway_reference", transferRef),
		zap.Int64("amount", out.Amount),
	)
	return &out, nil
}

// failWithdrawal records a failed transfer and releases the reservation back to its pool.
func (s *PayoutService) failWithdrawal(ctx context.Context, withdrawalID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	var out models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		w, err := qtx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("failed to load withdrawal: %w", err)
		}
		msg := reason
		if err := s.transitionWithdrawal(ctx, qtx, withdrawalID, nil, domain.WithdrawalStatusProcessing, domain.WithdrawalStatusFailed, nil, &msg, "withdrawal_failed"); err != nil {
			return err
		}
		if err := releaseReservation(ctx, qtx, w.ReservationID); err != nil {
			return fmt.Errorf("failed to release reservation: %w", err)
		}
		out, err = qtx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("failed to reload withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.IncrementWithdrawal(out.Pool, domain.WithdrawalStatusFailed)
	zap.L().Warn("withdrawal failed, funds released",
		zap.String("withdrawal_id", withdrawalID.String()),
		zap.String("reason", reason),
		zap.Int64("amount", out.Amount),
	)
	return &out, nil
}

// RecoverStaleWithdrawals fails withdrawals left in processing longer than window,
// typically because the instance handling them stopped mid-call. Their funds are
// released; each one is logged for manual reconciliation against the gateway.
// A window shorter than MinStaleWindow is rejected.
func (s *PayoutService) RecoverStaleWithdrawals(ctx context.Context, window time.Duration, limit int32) (int, error) {
	if window < s.MinStaleWindow() {
		return 0, fmt.Errorf("%w: stale window %s is shorter than %s", models.ErrValidation, window, s.MinStaleWindow())
	}
	cutoff := time.Now().Add(-window)
	var stale []models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		stale, err = qtx.GetStaleProcessingWithdrawals(ctx, repository.GetStaleProcessingWithdrawalsParams{
			UpdatedBefore: cutoff,
			Limit:         limit,
		})
		if err != nil {
			return fmt.Errorf("load stale processing withdrawals: %w", err)
		}
		for _, w := range stale {
			msg := abandonedReason
			if err := s.transitionWithdrawal(ctx, qtx, w.ID, nil, domain.WithdrawalStatusProcessing, domain.WithdrawalStatusFailed, nil, &msg, "withdrawal_abandoned"); err != nil {
				return fmt.Errorf("fail stale withdrawal %s: %w", w.ID, err)
			}
			if err := releaseReservation(ctx, qtx, w.ReservationID); err != nil {
				return fmt.Errorf("release stale withdrawal %s: %w", w.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, w := range stale {
		observability.IncrementWithdrawal(w.Pool, domain.WithdrawalStatusFailed)
		observability.IncrementManualReconciliation("processing_abandoned")
		zap.L().Error("stale withdrawal failed and released; confirm with gateway",
			zap.String("withdrawal_id", w.ID.String()),
			zap.String("agent_id", w.AgentID.String()),
			zap.Int64("amount", w.Amount),
			zap.Time("last_update", w.UpdatedAt),
		)
	}
	return len(stale), nil
}

func (s *PayoutService) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := s.store.Queries().GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: withdrawal %s", models.ErrNotFound, withdrawalID)
		}
		return nil, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	return &w, nil
}

func (s *PayoutService) ListAgentWithdrawals(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	l, o := pageBounds(limit, offset)
	items, err := s.store.Queries().ListAgentWithdrawals(ctx, repository.ListAgentWithdrawalsParams{
		AgentID: agentID,
		Limit:   l,
		Offset:  o,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return items, nil
}
