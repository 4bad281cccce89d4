package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService repairs the two recoverable inconsistencies the
// engine can accumulate: a completed payout whose debit entry never landed
// (the commit failed after the transfer succeeded), and a snapshot that has
// drifted from its ledger. The ledger is the source of truth in both cases.
type ReconciliationService struct {
	store  QueryStore
	ledger *LedgerService
	audit  *AuditService
}

func NewReconciliationService(store QueryStore, ledger *LedgerService) *ReconciliationService {
	return &ReconciliationService{
		store:  store,
		ledger: ledger,
		audit:  NewAuditService(),
	}
}

const reconciliationBatchSize = 100

// Run executes one reconciliation pass. Debit backfill runs first so the
// snapshot verification that follows sees a complete ledger.
func (s *ReconciliationService) Run(ctx context.Context) error {
	if err := s.backfillMissingDebits(ctx); err != nil {
		return err
	}
	return s.verifySnapshots(ctx)
}

// backfillMissingDebits posts the payout-debit entry for completed payouts
// that lack one. Keyed by payout id and re-checked inside the transaction, so
// a concurrent pass cannot double-post.
func (s *ReconciliationService) backfillMissingDebits(ctx context.Context) error {
	missing, err := s.store.Queries().ListCompletedPayoutsMissingDebit(ctx, reconciliationBatchSize)
	if err != nil {
		return fmt.Errorf("list completed payouts missing debit: %w", err)
	}

	for _, payout := range missing {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.backfillDebit(ctx, payout); err != nil {
			zap.L().Error("payout debit backfill failed", zap.Error(err), zap.String("payout_id", payout.ID.String()))
			continue
		}
		observability.IncrementDebitBackfill()
		zap.L().Warn("backfilled missing payout debit",
			zap.String("payout_id", payout.ID.String()),
			zap.String("amount", domain.FormatAmount(payout.Amount, payout.Currency)),
		)
	}
	return nil
}

func (s *ReconciliationService) backfillDebit(ctx context.Context, payout domain.PayoutRequest) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		account, err := q.GetAccountForUpdate(ctx, payout.AccountID)
		if err != nil {
			return err
		}

		exists, err := q.HasPayoutDebit(ctx, payout.ID)
		if err != nil {
			return fmt.Errorf("check payout debit: %w", err)
		}
		if exists {
			return nil
		}

		completedAt := payout.RequestedAt
		if payout.CompletedAt != nil {
			completedAt = *payout.CompletedAt
		}
		relatedID := payout.ID
		entry := domain.LedgerEntry{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Type:            domain.EntryPayoutDebit,
			Amount:          payout.Amount,
			Currency:        account.Currency,
			RelatedPayoutID: &relatedID,
			CreatedAt:       completedAt,
		}
		if err := q.AppendLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("append backfilled debit: %w", err)
		}
		if err := s.ledger.projectEntry(ctx, q, account, entry); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "payout", payout.ID, nil, "payout_debit_backfilled",
			domain.PayoutCompleted, domain.PayoutCompleted, reasonMetadata("completion commit lagged behind transfer"))
	})
}

// verifySnapshots replays each account's ledger and compares the result with
// the stored snapshot. Divergence is counted, logged and repaired from the
// ledger.
func (s *ReconciliationService) verifySnapshots(ctx context.Context) error {
	accountIDs, err := s.store.Queries().ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for _, accountID := range accountIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.verifyAccount(ctx, accountID); err != nil {
			zap.L().Error("snapshot verification failed", zap.Error(err), zap.String("account_id", accountID.String()))
		}
	}
	return nil
}

func (s *ReconciliationService) verifyAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		account, err := q.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		entries, err := q.ListLedgerEntries(ctx, accountID, nil)
		if err != nil {
			return fmt.Errorf("list ledger entries: %w", err)
		}
		replayed, err := domain.Replay(accountID, account.Currency, entries)
		if err != nil {
			return err
		}

		stored, err := q.GetSnapshot(ctx, accountID, account.Currency)
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			stored = domain.NewBalanceSnapshot(accountID, account.Currency)
		} else if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}

		if snapshotsAgree(stored, replayed) {
			return nil
		}

		observability.IncrementSnapshotDivergence(account.Currency)
		zap.L().Error("balance snapshot diverged from ledger; repairing from ledger",
			zap.String("account_id", accountID.String()),
			zap.String("stored_available", stored.Available.String()),
			zap.String("replayed_available", replayed.Available.String()),
		)
		if err := q.UpsertSnapshot(ctx, replayed); err != nil {
			return fmt.Errorf("repair snapshot: %w", err)
		}
		return nil
	})
}

func snapshotsAgree(a, b domain.BalanceSnapshot) bool {
	return a.Available.Equal(b.Available) &&
		a.Pending.Equal(b.Pending) &&
		a.AmountDue.Equal(b.AmountDue)
}
