package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SellerAccount is one seller's settlement unit. Exactly one balance snapshot
// exists per account+currency pair.
type SellerAccount struct {
	ID             uuid.UUID       `json:"id"`
	OwnerUserID    uuid.UUID       `json:"owner_user_id"`
	Currency       string          `json:"currency"`
	DestinationRef string          `json:"destination_ref"`
	MinimumPayout  decimal.Decimal `json:"minimum_payout"`
	Timezone       string          `json:"timezone"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DefaultMinimumPayout applies to accounts with no configured threshold.
var DefaultMinimumPayout = decimal.NewFromInt(20)

// EffectiveMinimumPayout returns the account's payout threshold, falling back
// to the platform default when unset.
func (a SellerAccount) EffectiveMinimumPayout() decimal.Decimal {
	if a.MinimumPayout.IsPositive() {
		return a.MinimumPayout
	}
	return DefaultMinimumPayout
}

// Location resolves the account's configured IANA timezone. Calendar-day
// policies (the same-day duplicate rule) are evaluated in this location.
// Unset or unparseable timezones fall back to UTC.
func (a SellerAccount) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SameCalendarDay reports whether two instants fall on the same calendar day
// in the account's timezone. Day boundaries, not a rolling 24h window.
func (a SellerAccount) SameCalendarDay(t1, t2 time.Time) bool {
	loc := a.Location()
	y1, m1, d1 := t1.In(loc).Date()
	y2, m2, d2 := t2.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
