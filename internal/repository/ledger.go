package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
)

// The ledger is append-only: AppendLedgerEntry is the only statement in the
// repository that writes to ledger_entries. No UPDATE or DELETE exists.

func (q *Queries) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, currency, related_payout_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.AccountID, string(e.Type), e.Amount, e.Currency, e.RelatedPayoutID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (q *Queries) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	sql := `
		SELECT id, account_id, type, amount, currency, related_payout_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
	`
	args := []any{accountID}
	if since != nil {
		sql += ` AND created_at >= $2`
		args = append(args, *since)
	}
	sql += ` ORDER BY created_at, id`

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.AccountID, &typ, &e.Amount, &e.Currency, &e.RelatedPayoutID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = domain.EntryType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queries) HasPayoutDebit(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries
			WHERE related_payout_id = $1 AND type = $2
		)
	`, payoutID, string(domain.EntryPayoutDebit)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payout debit: %w", err)
	}
	return exists, nil
}
