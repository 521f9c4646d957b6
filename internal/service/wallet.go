package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/google/uuid"
)

// WalletService keeps the two per-agent money pools. Every pool mutation writes a
// signed journal row, so for each pool the balance equals the sum of its journal.
type WalletService struct {
	store QueryStore
}

func NewWalletService(store QueryStore) *WalletService {
	return &WalletService{store: store}
}

// Credit adds amount to one pool of the agent's wallet.
func (s *WalletService) Credit(ctx context.Context, agentID uuid.UUID, pool string, amount int64, reference string) (*models.AgentWallet, error) {
	var wallet models.AgentWallet
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := qtx.GetDeliveryAgent(ctx, agentID); err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: delivery agent %s", models.ErrNotFound, agentID)
			}
			return fmt.Errorf("failed to load delivery agent: %w", err)
		}
		var err error
		wallet, err = creditPool(ctx, qtx, agentID, pool, amount, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Reserve moves amount out of a pool into a held reservation.
func (s *WalletService) Reserve(ctx context.Context, agentID uuid.UUID, pool string, amount int64) (*models.Reservation, error) {
	var res models.Reservation
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		res, err = reservePool(ctx, qtx, agentID, pool, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Release returns a held reservation to its pool.
func (s *WalletService) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		return releaseReservation(ctx, qtx, reservationID)
	})
}

// Finalize consumes a held reservation; the funds have left the platform.
func (s *WalletService) Finalize(ctx context.Context, reservationID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		return finalizeReservation(ctx, qtx, reservationID)
	})
}

// GetWallet returns the agent's balances, zero if nothing was ever credited.
func (s *WalletService) GetWallet(ctx context.Context, agentID uuid.UUID) (*models.AgentWallet, error) {
	wallet, err := s.store.Queries().GetAgentWallet(ctx, agentID)
	if err != nil {
		if isNoRows(err) {
			return &models.AgentWallet{AgentID: agentID}, nil
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

// ListEntries returns the agent's journal, newest first.
func (s *WalletService) ListEntries(ctx context.Context, agentID uuid.UUID, limit, offset int) ([]models.WalletEntry, error) {
	l, o := pageBounds(limit, offset)
	entries, err := s.store.Queries().ListWalletEntries(ctx, repository.ListWalletEntriesParams{
		AgentID: agentID,
		Limit:   l,
		Offset:  o,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet entries: %w", err)
	}
	return entries, nil
}

func validatePoolAmount(pool string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", models.ErrInvalidAmount, amount)
	}
	if !domain.IsValidPool(pool) {
		return fmt.Errorf("%w: unknown pool %q", models.ErrValidation, pool)
	}
	return nil
}

func creditPool(ctx context.Context, qtx repository.Querier, agentID uuid.UUID, pool string, amount int64, reference string) (models.AgentWallet, error) {
	if err := validatePoolAmount(pool, amount); err != nil {
		return models.AgentWallet{}, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return models.AgentWallet{}, fmt.Errorf("%w: credit reference is required", models.ErrValidation)
	}

	wallet, err := qtx.CreditWalletPool(ctx, repository.WalletPoolAmountParams{
		AgentID: agentID,
		Pool:    pool,
		Amount:  amount,
	})
	if err != nil {
		return models.AgentWallet{}, fmt.Errorf("failed to credit wallet: %w", err)
	}
	if err := qtx.InsertWalletEntry(ctx, repository.InsertWalletEntryParams{
		ID:        uuid.New(),
		AgentID:   agentID,
		Pool:      pool,
		Kind:      domain.EntryKindCredit,
		Amount:    amount,
		Reference: reference,
	}); err != nil {
		return models.AgentWallet{}, fmt.Errorf("failed to journal credit: %w", err)
	}
	return wallet, nil
}

func reservePool(ctx context.Context, qtx repository.Querier, agentID uuid.UUID, pool string, amount int64) (models.Reservation, error) {
	if err := validatePoolAmount(pool, amount); err != nil {
		return models.Reservation{}, err
	}

	rows, err := qtx.DebitWalletPool(ctx, repository.WalletPoolAmountParams{
		AgentID: agentID,
		Pool:    pool,
		Amount:  amount,
	})
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to debit wallet: %w", err)
	}
	if rows == 0 {
		return models.Reservation{}, fmt.Errorf("%w: %s requested from %s", models.ErrInsufficientFunds, domain.Money(amount), pool)
	}

	res, err := qtx.InsertReservation(ctx, repository.InsertReservationParams{
		ID:      uuid.New(),
		AgentID: agentID,
		Pool:    pool,
		Amount:  amount,
	})
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to create reservation: %w", err)
	}
	if err := qtx.InsertWalletEntry(ctx, repository.InsertWalletEntryParams{
		ID:        uuid.New(),
		AgentID:   agentID,
		Pool:      pool,
		Kind:      domain.EntryKindReserve,
		Amount:    -amount,
		Reference: "reservation:" + res.ID.String(),
	}); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to journal reserve: %w", err)
	}
	return res, nil
}

func settleReservation(ctx context.Context, qtx repository.Querier, reservationID uuid.UUID, next string) (models.Reservation, error) {
	res, err := qtx.GetReservation(ctx, reservationID)
	if err != nil {
		if isNoRows(err) {
			return models.Reservation{}, fmt.Errorf("%w: reservation %s", models.ErrNotFound, reservationID)
		}
		return models.Reservation{}, fmt.Errorf("failed to load reservation: %w", err)
	}

	rows, err := qtx.SettleReservation(ctx, repository.SettleReservationParams{
		ID:         reservationID,
		FromStatus: domain.ReservationHeld,
		ToStatus:   next,
	})
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to settle reservation: %w", err)
	}
	if rows == 0 {
		return models.Reservation{}, fmt.Errorf("%w: reservation %s is already %s", models.ErrInvalidTransition, reservationID, res.Status)
	}
	return res, nil
}

func releaseReservation(ctx context.Context, qtx repository.Querier, reservationID uuid.UUID) error {
	res, err := settleReservation(ctx, qtx, reservationID, domain.ReservationReleased)
	if err != nil {
		return err
	}

	if _, err := qtx.CreditWalletPool(ctx, repository.WalletPoolAmountParams{
		AgentID: res.AgentID,
		Pool:    res.Pool,
		Amount:  res.Amount,
	}); err != nil {
		return fmt.Errorf("failed to restore wallet: %w", err)
	}
	if err := qtx.InsertWalletEntry(ctx, repository.InsertWalletEntryParams{
		ID:        uuid.New(),
		AgentID:   res.AgentID,
		Pool:      res.Pool,
		Kind:      domain.EntryKindRelease,
		Amount:    res.Amount,
		Reference: "reservation:" + res.ID.String(),
	}); err != nil {
		return fmt.Errorf("failed to journal release: %w", err)
	}
	return nil
}

func finalizeReservation(ctx context.Context, qtx repository.Querier, reservationID uuid.UUID) error {
	_, err := settleReservation(ctx, qtx, reservationID, domain.ReservationFinalized)
	return err
}
