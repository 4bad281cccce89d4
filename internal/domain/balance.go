package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrDebitExceedsAvailable rejects a payout debit larger than the
	// available balance. The orchestrator only posts a debit after the
	// processor confirms the transfer and eligibility was re-verified, so
	// hitting this indicates a bug upstream, not a user error.
	ErrDebitExceedsAvailable = errors.New("payout debit exceeds available balance")

	ErrCurrencyMismatch = errors.New("entry currency does not match snapshot currency")
)

// BalanceSnapshot is the current projection of a seller's funds. It is
// mutated only by applying ledger entries; request handlers treat it as
// read-only.
type BalanceSnapshot struct {
	AccountID        uuid.UUID        `json:"account_id"`
	Currency         string           `json:"currency"`
	Available        decimal.Decimal  `json:"available_balance"`
	Pending          decimal.Decimal  `json:"pending_balance"`
	AmountDue        decimal.Decimal  `json:"amount_due"`
	LastPayoutAt     *time.Time       `json:"last_payout_at,omitempty"`
	LastPayoutAmount *decimal.Decimal `json:"last_payout_amount,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewBalanceSnapshot returns the empty snapshot for an account.
func NewBalanceSnapshot(accountID uuid.UUID, currency string) BalanceSnapshot {
	return BalanceSnapshot{
		AccountID: accountID,
		Currency:  currency,
		Available: decimal.Zero,
		Pending:   decimal.Zero,
		AmountDue: decimal.Zero,
	}
}

// CurrentBalance is always derived, never stored.
func (s BalanceSnapshot) CurrentBalance() decimal.Decimal {
	return s.Available.Add(s.Pending).Sub(s.AmountDue)
}

// Apply projects one ledger entry onto the snapshot and returns the result.
// Pure: the receiver is not modified.
//
//   - sale / adjustment(+): funds start held, pending increases.
//   - release: moves up to the held amount from pending to available.
//   - refund / fee / adjustment(-): drain available first, then pending,
//     floored at zero; any shortfall accrues to amount due.
//   - payout_debit: decreases available; rejected if available < amount.
func (s BalanceSnapshot) Apply(e LedgerEntry) (BalanceSnapshot, error) {
	if e.Currency != s.Currency {
		return s, fmt.Errorf("%w: snapshot %s, entry %s", ErrCurrencyMismatch, s.Currency, e.Currency)
	}

	switch e.Type {
	case EntrySale:
		s.Pending = s.Pending.Add(e.Amount)

	case EntryRelease:
		moved := decimal.Min(e.Amount, s.Pending)
		s.Pending = s.Pending.Sub(moved)
		s.Available = s.Available.Add(moved)

	case EntryRefund, EntryFee:
		s = s.drain(e.Amount.Abs())

	case EntryAdjustment:
		if e.Amount.IsNegative() {
			s = s.drain(e.Amount.Abs())
		} else {
			s.Pending = s.Pending.Add(e.Amount)
		}

	case EntryPayoutDebit:
		if s.Available.LessThan(e.Amount) {
			return s, fmt.Errorf("%w: available %s, debit %s",
				ErrDebitExceedsAvailable, FormatAmount(s.Available, s.Currency), FormatAmount(e.Amount, s.Currency))
		}
		s.Available = s.Available.Sub(e.Amount)
		at := e.CreatedAt
		amt := e.Amount
		s.LastPayoutAt = &at
		s.LastPayoutAmount = &amt

	default:
		return s, fmt.Errorf("unknown ledger entry type %q", e.Type)
	}

	s.UpdatedAt = e.CreatedAt
	return s, nil
}

// drain removes amount from available first, then pending, floored at zero;
// the remainder is owed back to the platform.
func (s BalanceSnapshot) drain(amount decimal.Decimal) BalanceSnapshot {
	fromAvailable := decimal.Min(amount, s.Available)
	s.Available = s.Available.Sub(fromAvailable)
	amount = amount.Sub(fromAvailable)

	fromPending := decimal.Min(amount, s.Pending)
	s.Pending = s.Pending.Sub(fromPending)
	amount = amount.Sub(fromPending)

	s.AmountDue = s.AmountDue.Add(amount)
	return s
}

// Replay rebuilds a snapshot from scratch by applying entries in createdAt
// order. Replaying an account's full ledger must reproduce its stored
// snapshot exactly.
func Replay(accountID uuid.UUID, currency string, entries []LedgerEntry) (BalanceSnapshot, error) {
	sorted := make([]LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	snap := NewBalanceSnapshot(accountID, currency)
	for _, e := range sorted {
		next, err := snap.Apply(e)
		if err != nil {
			return snap, fmt.Errorf("replay entry %s: %w", e.ID, err)
		}
		snap = next
	}
	return snap, nil
}
