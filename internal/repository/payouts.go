package repository

import (
	"context"

	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payoutProfileColumns = `user_id, account_number, bank_code, recipient_code, verified_at, updated_at`

func scanPayoutProfile(row pgx.Row) (models.AgentPayoutProfile, error) {
	var p models.AgentPayoutProfile
	err := row.Scan(&p.UserID, &p.AccountNumber, &p.BankCode, &p.RecipientCode, &p.VerifiedAt, &p.UpdatedAt)
	return p, err
}

const getPayoutProfile = `SELECT ` + payoutProfileColumns + ` FROM agent_payout_profiles WHERE user_id = $1`

func (q *Queries) GetPayoutProfile(ctx context.Context, userID uuid.UUID) (models.AgentPayoutProfile, error) {
	return scanPayoutProfile(q.db.QueryRow(ctx, getPayoutProfile, userID))
}

// Changing either bank field drops the recipient code so the account must be
// registered again before the next withdrawal.
const upsertPayoutProfile = `
INSERT INTO agent_payout_profiles (user_id, account_number, bank_code)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
	account_number = EXCLUDED.account_number,
	bank_code = EXCLUDED.bank_code,
	recipient_code = CASE
		WHEN agent_payout_profiles.account_number = EXCLUDED.account_number
		 AND agent_payout_profiles.bank_code = EXCLUDED.bank_code
		THEN agent_payout_profiles.recipient_code
		ELSE NULL
	END,
	verified_at = CASE
		WHEN agent_payout_profiles.account_number = EXCLUDED.account_number
		 AND agent_payout_profiles.bank_code = EXCLUDED.bank_code
		THEN agent_payout_profiles.verified_at
		ELSE NULL
	END,
	updated_at = NOW()
RETURNING ` + payoutProfileColumns

func (q *Queries) UpsertPayoutProfile(ctx context.Context, arg UpsertPayoutProfileParams) (models.AgentPayoutProfile, error) {
	return scanPayoutProfile(q.db.QueryRow(ctx, upsertPayoutProfile, arg.UserID, arg.AccountNumber, arg.BankCode))
}

const setPayoutRecipientCode = `
UPDATE agent_payout_profiles
SET recipient_code = $4, verified_at = NOW(), updated_at = NOW()
WHERE user_id = $1 AND account_number = $2 AND bank_code = $3`

// SetPayoutRecipientCode only applies if the bank details are still the ones that
// were registered with the gateway.
func (q *Queries) SetPayoutRecipientCode(ctx context.Context, arg SetPayoutRecipientCodeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, setPayoutRecipientCode, arg.UserID, arg.AccountNumber, arg.BankCode, arg.RecipientCode)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const withdrawalColumns = `id, agent_id, amount, pool, status, reservation_id, gateway_reference,
	error_message, created_at, updated_at, processed_at`

func scanWithdrawal(row pgx.Row) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(
		&w.ID,
		&w.AgentID,
		&w.Amount,
		&w.Pool,
		&w.Status,
		&w.ReservationID,
		&w.GatewayReference,
		&w.ErrorMessage,
		&w.CreatedAt,
		&w.UpdatedAt,
		&w.ProcessedAt,
	)
	return w, err
}

func collectWithdrawals(rows pgx.Rows) ([]models.WithdrawalRequest, error) {
	defer rows.Close()
	var items []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertWithdrawal = `
INSERT INTO withdrawal_requests (id, agent_id, amount, pool, status, reservation_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + withdrawalColumns

func (q *Queries) InsertWithdrawal(ctx context.Context, arg InsertWithdrawalParams) (models.WithdrawalRequest, error) {
	row := q.db.QueryRow(ctx, insertWithdrawal, arg.ID, arg.AgentID, arg.Amount, arg.Pool, arg.Status, arg.ReservationID)
	return scanWithdrawal(row)
}

const getWithdrawal = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

func (q *Queries) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, getWithdrawal, id))
}

const getWithdrawalByGatewayReference = `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE gateway_reference = $1`

func (q *Queries) GetWithdrawalByGatewayReference(ctx context.Context, gatewayReference string) (models.WithdrawalRequest, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, getWithdrawalByGatewayReference, gatewayReference))
}

const updateWithdrawalStatus = `
UPDATE withdrawal_requests
SET status = $3,
	gateway_reference = COALESCE($4, gateway_reference),
	error_message = COALESCE($5, error_message),
	processed_at = CASE WHEN $3::text IN ('completed', 'failed') THEN NOW() ELSE processed_at END,
	updated_at = NOW()
WHERE id = $1 AND status = $2`

func (q *Queries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateWithdrawalStatus,
		arg.ID,
		arg.FromStatus,
		arg.ToStatus,
		arg.GatewayReference,
		arg.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listAgentWithdrawals = `
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE agent_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListAgentWithdrawals(ctx context.Context, arg ListAgentWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, listAgentWithdrawals, arg.AgentID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectWithdrawals(rows)
}

const getStaleProcessingWithdrawals = `
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE status = 'processing' AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED`

func (q *Queries) GetStaleProcessingWithdrawals(ctx context.Context, arg GetStaleProcessingWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, getStaleProcessingWithdrawals, arg.UpdatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectWithdrawals(rows)
}
