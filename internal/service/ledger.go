package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrInvalidEntryAmount = errors.New("invalid ledger entry amount")

// LedgerService records balance-affecting events and keeps the snapshot
// projection in step with the ledger, atomically. The marketplace's checkout,
// refund and fee flows call into it; the payout orchestrator posts its debit
// through the same projection path.
type LedgerService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{
		store: store,
		audit: NewAuditService(),
		now:   time.Now,
	}
}

// RecordEntryInput carries one event to append. Amount is a positive
// magnitude for every type except adjustment, which is signed.
type RecordEntryInput struct {
	AccountID uuid.UUID
	Type      domain.EntryType
	Amount    decimal.Decimal
}

// RecordSale credits sale proceeds as held funds.
func (s *LedgerService) RecordSale(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (domain.LedgerEntry, error) {
	return s.RecordEntry(ctx, RecordEntryInput{AccountID: accountID, Type: domain.EntrySale, Amount: amount})
}

// RecordRefund debits a refund from the seller's funds.
func (s *LedgerService) RecordRefund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (domain.LedgerEntry, error) {
	return s.RecordEntry(ctx, RecordEntryInput{AccountID: accountID, Type: domain.EntryRefund, Amount: amount})
}

// RecordFee debits a platform fee.
func (s *LedgerService) RecordFee(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (domain.LedgerEntry, error) {
	return s.RecordEntry(ctx, RecordEntryInput{AccountID: accountID, Type: domain.EntryFee, Amount: amount})
}

// RecordAdjustment posts a signed manual correction.
func (s *LedgerService) RecordAdjustment(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (domain.LedgerEntry, error) {
	return s.RecordEntry(ctx, RecordEntryInput{AccountID: accountID, Type: domain.EntryAdjustment, Amount: amount})
}

// ReleaseHeldFunds moves matured held funds to the available balance. Driven
// by the hold-duration scheduler, which decides when; this only applies the
// transform.
func (s *LedgerService) ReleaseHeldFunds(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (domain.LedgerEntry, error) {
	return s.RecordEntry(ctx, RecordEntryInput{AccountID: accountID, Type: domain.EntryRelease, Amount: amount})
}

// RecordEntry appends one ledger entry and re-projects the snapshot inside a
// single transaction holding the account row lock.
func (s *LedgerService) RecordEntry(ctx context.Context, in RecordEntryInput) (domain.LedgerEntry, error) {
	if !in.Type.Valid() || in.Type == domain.EntryPayoutDebit {
		// Payout debits are posted exclusively by the orchestrator.
		return domain.LedgerEntry{}, fmt.Errorf("%w: %q", domain.ErrInvalidEntryType, in.Type)
	}

	amount, err := signedAmount(in.Type, in.Amount)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	var entry domain.LedgerEntry
	err = s.store.RunInTx(ctx, func(q Queries) error {
		account, err := q.GetAccountForUpdate(ctx, in.AccountID)
		if err != nil {
			return err
		}

		entry = domain.LedgerEntry{
			ID:        uuid.New(),
			AccountID: account.ID,
			Type:      in.Type,
			Amount:    amount,
			Currency:  account.Currency,
			CreatedAt: s.now(),
		}
		if err := q.AppendLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		return s.projectEntry(ctx, q, account, entry)
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// projectEntry applies one already-appended entry to the stored snapshot.
// Must run inside a transaction that holds the account row lock.
func (s *LedgerService) projectEntry(ctx context.Context, q Queries, account domain.SellerAccount, entry domain.LedgerEntry) error {
	snap, err := q.GetSnapshot(ctx, account.ID, account.Currency)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		snap = domain.NewBalanceSnapshot(account.ID, account.Currency)
	} else if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	next, err := snap.Apply(entry)
	if err != nil {
		return fmt.Errorf("project entry %s: %w", entry.ID, err)
	}
	if err := q.UpsertSnapshot(ctx, next); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// GetBalanceSnapshot returns the account's current snapshot; an account that
// has no ledger activity yet reads as all zeros.
func (s *LedgerService) GetBalanceSnapshot(ctx context.Context, accountID uuid.UUID) (domain.BalanceSnapshot, error) {
	q := s.store.Queries()
	account, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	snap, err := q.GetSnapshot(ctx, account.ID, account.Currency)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return domain.NewBalanceSnapshot(account.ID, account.Currency), nil
	}
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// ListEntries returns the account's ledger entries, oldest first.
func (s *LedgerService) ListEntries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	if _, err := s.store.Queries().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListLedgerEntries(ctx, accountID, since)
}

// signedAmount normalizes the caller's magnitude into the ledger's sign
// convention and validates it.
func signedAmount(typ domain.EntryType, amount decimal.Decimal) (decimal.Decimal, error) {
	switch typ {
	case domain.EntrySale, domain.EntryRelease:
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s amount must be positive", ErrInvalidEntryAmount, typ)
		}
		return amount, nil
	case domain.EntryRefund, domain.EntryFee:
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s amount must be a positive magnitude", ErrInvalidEntryAmount, typ)
		}
		return amount.Neg(), nil
	case domain.EntryAdjustment:
		if amount.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: adjustment amount must be non-zero", ErrInvalidEntryAmount)
		}
		return amount, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidEntryType, typ)
}
