package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellershub/settlement-engine/internal/domain"
)

func (q *Queries) GetSnapshot(ctx context.Context, accountID uuid.UUID, currency string) (domain.BalanceSnapshot, error) {
	var s domain.BalanceSnapshot
	err := q.db.QueryRow(ctx, `
		SELECT account_id, currency, available, pending, amount_due, last_payout_at, last_payout_amount, updated_at
		FROM balance_snapshots
		WHERE account_id = $1 AND currency = $2
	`, accountID, currency).Scan(&s.AccountID, &s.Currency, &s.Available, &s.Pending, &s.AmountDue,
		&s.LastPayoutAt, &s.LastPayoutAmount, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return s, fmt.Errorf("get snapshot: %w", err)
	}
	return s, nil
}

// UpsertSnapshot writes the projected balances for one account+currency. The
// caller must hold the account row lock so concurrent projections serialize.
func (q *Queries) UpsertSnapshot(ctx context.Context, s domain.BalanceSnapshot) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO balance_snapshots (account_id, currency, available, pending, amount_due, last_payout_at, last_payout_amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (account_id, currency) DO UPDATE SET
			available = EXCLUDED.available,
			pending = EXCLUDED.pending,
			amount_due = EXCLUDED.amount_due,
			last_payout_at = EXCLUDED.last_payout_at,
			last_payout_amount = EXCLUDED.last_payout_amount,
			updated_at = NOW()
	`, s.AccountID, s.Currency, s.Available, s.Pending, s.AmountDue, s.LastPayoutAt, s.LastPayoutAmount)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
