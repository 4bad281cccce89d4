package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellershub/settlement-engine/internal/domain"
)

const accountColumns = `id, owner_user_id, currency, destination_ref, minimum_payout, timezone, created_at`

func scanAccount(row pgx.Row) (domain.SellerAccount, error) {
	var a domain.SellerAccount
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Currency, &a.DestinationRef, &a.MinimumPayout, &a.Timezone, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, domain.ErrAccountNotFound
	}
	if err != nil {
		return a, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountForUpdate takes the account's row lock for the remainder of the
// transaction. Calling it outside a transaction locks nothing.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (q *Queries) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list account ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateAccount registers a seller settlement account. Provisioning belongs
// to the wider marketplace; this exists for operational setup and tests.
func (q *Queries) CreateAccount(ctx context.Context, a *domain.SellerAccount) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO accounts (id, owner_user_id, currency, destination_ref, minimum_payout, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, a.ID, a.OwnerUserID, a.Currency, a.DestinationRef, a.MinimumPayout, a.Timezone).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}
