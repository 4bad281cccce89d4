package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellershub/settlement-engine/internal/domain"
)

const payoutColumns = `id, account_id, amount, currency, status, requested_by, transfer_id, failure_reason, requested_at, processed_at, completed_at`

func scanPayout(row pgx.Row) (domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	var status string
	err := row.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Currency, &status, &p.RequestedBy,
		&p.TransferID, &p.FailureReason, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrPayoutNotFound
	}
	if err != nil {
		return p, fmt.Errorf("scan payout: %w", err)
	}
	p.Status = domain.PayoutStatus(status)
	return p, nil
}

func (q *Queries) scanPayoutRows(rows pgx.Rows) ([]domain.PayoutRequest, error) {
	defer rows.Close()
	var payouts []domain.PayoutRequest
	for rows.Next() {
		var p domain.PayoutRequest
		var status string
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Currency, &status, &p.RequestedBy,
			&p.TransferID, &p.FailureReason, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Status = domain.PayoutStatus(status)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (q *Queries) InsertPayout(ctx context.Context, p domain.PayoutRequest) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payout_requests (id, account_id, amount, currency, status, requested_by, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AccountID, p.Amount, p.Currency, string(p.Status), p.RequestedBy, p.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (q *Queries) GetPayout(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	row := q.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id)
	return scanPayout(row)
}

// ClaimPayout flips PENDING -> PROCESSING. The status guard in the WHERE
// clause makes it a compare-and-swap: exactly one of any number of concurrent
// claimers sees true.
func (q *Queries) ClaimPayout(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2, processed_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(domain.PayoutProcessing), processedAt, string(domain.PayoutPending))
	if err != nil {
		return false, fmt.Errorf("claim payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) CompletePayout(ctx context.Context, id uuid.UUID, transferID string, completedAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2, transfer_id = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, id, string(domain.PayoutCompleted), transferID, completedAt, string(domain.PayoutProcessing))
	if err != nil {
		return false, fmt.Errorf("complete payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) FailPayout(ctx context.Context, id uuid.UUID, from domain.PayoutStatus, reason string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payout_requests
		SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = $4
	`, id, string(domain.PayoutFailed), reason, string(from))
	if err != nil {
		return false, fmt.Errorf("fail payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// HasOpenPayout reports whether the account has a payout that is still in
// flight. Both PENDING and PROCESSING count: a claimed payout holds funds just
// as much as an unclaimed one.
func (q *Queries) HasOpenPayout(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payout_requests
			WHERE account_id = $1 AND status IN ($2, $3)
		)
	`, accountID, string(domain.PayoutPending), string(domain.PayoutProcessing)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open payout: %w", err)
	}
	return exists, nil
}

func (q *Queries) LastCompletedPayout(ctx context.Context, accountID uuid.UUID) (*domain.PayoutRequest, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE account_id = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`, accountID, string(domain.PayoutCompleted))
	p, err := scanPayout(row)
	if errors.Is(err, domain.ErrPayoutNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *Queries) ListPayouts(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.PayoutRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE account_id = $1
		ORDER BY requested_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return q.scanPayoutRows(rows)
}

// ListStalePendingPayouts returns payouts still PENDING past the cutoff, for
// the sweeper. Oldest first so repeated short sweeps eventually cover all.
func (q *Queries) ListStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int32) ([]domain.PayoutRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests
		WHERE status = $1 AND requested_at < $2
		ORDER BY requested_at
		LIMIT $3
	`, string(domain.PayoutPending), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending payouts: %w", err)
	}
	return q.scanPayoutRows(rows)
}

// ListCompletedPayoutsMissingDebit finds COMPLETED payouts with no matching
// payout_debit ledger entry, the signature of a completion commit that failed
// after the transfer went through.
func (q *Queries) ListCompletedPayoutsMissingDebit(ctx context.Context, limit int32) ([]domain.PayoutRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payout_requests p
		WHERE p.status = $1
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_entries e
			WHERE e.related_payout_id = p.id AND e.type = $2
		  )
		ORDER BY p.completed_at
		LIMIT $3
	`, string(domain.PayoutCompleted), string(domain.EntryPayoutDebit), limit)
	if err != nil {
		return nil, fmt.Errorf("list payouts missing debit: %w", err)
	}
	return q.scanPayoutRows(rows)
}
