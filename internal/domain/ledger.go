package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies a balance-affecting event.
type EntryType string

const (
	EntrySale        EntryType = "sale"
	EntryRefund      EntryType = "refund"
	EntryFee         EntryType = "fee"
	EntryPayoutDebit EntryType = "payout_debit"
	EntryAdjustment  EntryType = "adjustment"
	EntryRelease     EntryType = "release"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntrySale, EntryRefund, EntryFee, EntryPayoutDebit, EntryAdjustment, EntryRelease:
		return true
	}
	return false
}

// LedgerEntry is an immutable fact about one seller's funds. The ledger is
// append-only and is the source of truth; balance snapshots are a cache
// derivable by replaying entries. Corrections are new offsetting entries,
// never updates.
//
// Sign convention: sale, release and payout_debit amounts are positive
// magnitudes; refund and fee amounts are negative; adjustment carries either
// sign.
type LedgerEntry struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	Type            EntryType       `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	RelatedPayoutID *uuid.UUID      `json:"related_payout_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
