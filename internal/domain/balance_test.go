package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entryAt(accountID uuid.UUID, typ EntryType, amount string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Amount:    dec(amount),
		Currency:  "USD",
		CreatedAt: at,
	}
}

func TestApplySaleCreditsHeldFunds(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")

	snap, err := snap.Apply(entryAt(accountID, EntrySale, "100.00", time.Now()))
	require.NoError(t, err)
	require.True(t, snap.Pending.Equal(dec("100.00")))
	require.True(t, snap.Available.IsZero())
	require.True(t, snap.CurrentBalance().Equal(dec("100.00")))
}

func TestApplyReleaseMovesPendingToAvailable(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	now := time.Now()

	snap, err := snap.Apply(entryAt(accountID, EntrySale, "100.00", now))
	require.NoError(t, err)
	snap, err = snap.Apply(entryAt(accountID, EntryRelease, "60.00", now.Add(time.Second)))
	require.NoError(t, err)

	require.True(t, snap.Available.Equal(dec("60.00")))
	require.True(t, snap.Pending.Equal(dec("40.00")))

	// A release larger than the held amount moves only what is held.
	snap, err = snap.Apply(entryAt(accountID, EntryRelease, "999.00", now.Add(2*time.Second)))
	require.NoError(t, err)
	require.True(t, snap.Available.Equal(dec("100.00")))
	require.True(t, snap.Pending.IsZero())
}

func TestApplyRefundDrainsAvailableThenPending(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	now := time.Now()

	snap, err := snap.Apply(entryAt(accountID, EntrySale, "100.00", now))
	require.NoError(t, err)
	snap, err = snap.Apply(entryAt(accountID, EntryRelease, "30.00", now.Add(time.Second)))
	require.NoError(t, err)

	// 30 available, 70 pending. Refund 50: 30 from available, 20 from pending.
	snap, err = snap.Apply(entryAt(accountID, EntryRefund, "-50.00", now.Add(2*time.Second)))
	require.NoError(t, err)
	require.True(t, snap.Available.IsZero())
	require.True(t, snap.Pending.Equal(dec("50.00")))
	require.True(t, snap.AmountDue.IsZero())
}

func TestApplyFeeShortfallAccruesAmountDue(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	now := time.Now()

	snap, err := snap.Apply(entryAt(accountID, EntrySale, "10.00", now))
	require.NoError(t, err)
	snap, err = snap.Apply(entryAt(accountID, EntryFee, "-25.00", now.Add(time.Second)))
	require.NoError(t, err)

	require.True(t, snap.Available.IsZero())
	require.True(t, snap.Pending.IsZero())
	require.True(t, snap.AmountDue.Equal(dec("15.00")))
	require.True(t, snap.CurrentBalance().Equal(dec("-15.00")))
}

func TestApplyNegativeAdjustmentDrains(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	now := time.Now()

	snap, err := snap.Apply(entryAt(accountID, EntryAdjustment, "40.00", now))
	require.NoError(t, err)
	require.True(t, snap.Pending.Equal(dec("40.00")))

	snap, err = snap.Apply(entryAt(accountID, EntryAdjustment, "-15.00", now.Add(time.Second)))
	require.NoError(t, err)
	require.True(t, snap.Pending.Equal(dec("25.00")))
}

func TestApplyPayoutDebit(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	now := time.Now()

	snap, err := snap.Apply(entryAt(accountID, EntrySale, "100.00", now))
	require.NoError(t, err)
	snap, err = snap.Apply(entryAt(accountID, EntryRelease, "100.00", now.Add(time.Second)))
	require.NoError(t, err)

	debit := entryAt(accountID, EntryPayoutDebit, "50.00", now.Add(2*time.Second))
	snap, err = snap.Apply(debit)
	require.NoError(t, err)
	require.True(t, snap.Available.Equal(dec("50.00")))
	require.NotNil(t, snap.LastPayoutAt)
	require.NotNil(t, snap.LastPayoutAmount)
	require.True(t, snap.LastPayoutAmount.Equal(dec("50.00")))

	// A debit beyond available is rejected, not applied.
	_, err = snap.Apply(entryAt(accountID, EntryPayoutDebit, "60.00", now.Add(3*time.Second)))
	require.ErrorIs(t, err, ErrDebitExceedsAvailable)
	require.True(t, snap.Available.Equal(dec("50.00")))
}

func TestApplyRejectsCurrencyMismatch(t *testing.T) {
	accountID := uuid.New()
	snap := NewBalanceSnapshot(accountID, "USD")
	e := entryAt(accountID, EntrySale, "10.00", time.Now())
	e.Currency = "EUR"
	_, err := snap.Apply(e)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestReplayOrdersByCreatedAt(t *testing.T) {
	accountID := uuid.New()
	now := time.Now()

	// Deliberately out of order: the release precedes the sale in the slice.
	entries := []LedgerEntry{
		entryAt(accountID, EntryRelease, "80.00", now.Add(time.Second)),
		entryAt(accountID, EntrySale, "100.00", now),
		entryAt(accountID, EntryPayoutDebit, "50.00", now.Add(2*time.Second)),
	}

	snap, err := Replay(accountID, "USD", entries)
	require.NoError(t, err)
	require.True(t, snap.Available.Equal(dec("30.00")))
	require.True(t, snap.Pending.Equal(dec("20.00")))
	require.True(t, snap.AmountDue.IsZero())
}

func TestReplayEmptyLedgerIsZero(t *testing.T) {
	snap, err := Replay(uuid.New(), "USD", nil)
	require.NoError(t, err)
	require.True(t, snap.Available.IsZero())
	require.True(t, snap.Pending.IsZero())
	require.True(t, snap.AmountDue.IsZero())
}

func TestPayoutTransitions(t *testing.T) {
	cases := []struct {
		from, to PayoutStatus
		ok       bool
	}{
		{PayoutPending, PayoutProcessing, true},
		{PayoutPending, PayoutFailed, true},
		{PayoutPending, PayoutCompleted, false},
		{PayoutProcessing, PayoutCompleted, true},
		{PayoutProcessing, PayoutFailed, true},
		{PayoutCompleted, PayoutFailed, false},
		{PayoutFailed, PayoutProcessing, false},
		{PayoutFailed, PayoutPending, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransitionPayout(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSameCalendarDayUsesAccountTimezone(t *testing.T) {
	account := SellerAccount{Timezone: "America/New_York"}

	// 03:00 UTC and 23:00 UTC the previous day are the same New York day.
	t1 := time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	require.True(t, account.SameCalendarDay(t1, t2))

	// But different UTC days for a UTC account.
	utcAccount := SellerAccount{}
	require.False(t, utcAccount.SameCalendarDay(t1, t2))
}
