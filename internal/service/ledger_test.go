package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecordingProjectsBalances(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, account.ID, decimal.NewFromInt(100))
	require.NoError(t, err)

	snap, err := svc.GetBalanceSnapshot(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, snap.Pending.Equal(decimal.NewFromInt(100)), "sale proceeds are held")
	assert.True(t, snap.Available.IsZero())

	_, err = svc.ReleaseHeldFunds(ctx, account.ID, decimal.NewFromInt(60))
	require.NoError(t, err)

	snap, err = svc.GetBalanceSnapshot(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, snap.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, snap.Pending.Equal(decimal.NewFromInt(40)))

	// A refund drains available first.
	_, err = svc.RecordRefund(ctx, account.ID, decimal.NewFromInt(30))
	require.NoError(t, err)
	snap, err = svc.GetBalanceSnapshot(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, snap.Available.Equal(decimal.NewFromInt(30)))
	assert.True(t, snap.Pending.Equal(decimal.NewFromInt(40)))

	_, err = svc.RecordFee(ctx, account.ID, decimal.NewFromInt(5))
	require.NoError(t, err)
	snap, err = svc.GetBalanceSnapshot(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, snap.Available.Equal(decimal.NewFromInt(25)))

	// Current balance reflects all three columns.
	assert.True(t, snap.CurrentBalance().Equal(decimal.NewFromInt(65)))
}

func TestLedgerRefundBeyondFundsAccruesAmountDue(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, account.ID, decimal.NewFromInt(20))
	require.NoError(t, err)
	_, err = svc.RecordRefund(ctx, account.ID, decimal.NewFromInt(50))
	require.NoError(t, err)

	snap, err := svc.GetBalanceSnapshot(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, snap.Available.IsZero())
	assert.True(t, snap.Pending.IsZero())
	assert.True(t, snap.AmountDue.Equal(decimal.NewFromInt(30)), "shortfall becomes amount due, got %s", snap.AmountDue)
	assert.True(t, snap.CurrentBalance().Equal(decimal.NewFromInt(-30)))
}

func TestLedgerAdjustmentIsSigned(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)
	ctx := context.Background()

	entry, err := svc.RecordAdjustment(ctx, account.ID, decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(15)))

	entry, err = svc.RecordAdjustment(ctx, account.ID, decimal.NewFromInt(-10))
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(-10)))

	_, err = svc.RecordAdjustment(ctx, account.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidEntryAmount)
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)
	ctx := context.Background()

	// Magnitude entries must be positive.
	_, err := svc.RecordSale(ctx, account.ID, decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrInvalidEntryAmount)
	_, err = svc.RecordRefund(ctx, account.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidEntryAmount)

	// Payout debits are not recordable through the public path.
	_, err = svc.RecordEntry(ctx, RecordEntryInput{
		AccountID: account.ID,
		Type:      domain.EntryPayoutDebit,
		Amount:    decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrInvalidEntryType)

	_, err = svc.RecordEntry(ctx, RecordEntryInput{
		AccountID: account.ID,
		Type:      domain.EntryType("bonus"),
		Amount:    decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, domain.ErrInvalidEntryType)

	// Unknown account.
	_, err = svc.RecordSale(ctx, uuid.New(), decimal.NewFromInt(10))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedgerGetBalanceSnapshotZeroForNewAccount(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)

	snap, err := svc.GetBalanceSnapshot(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, snap.AccountID)
	assert.Equal(t, account.Currency, snap.Currency)
	assert.True(t, snap.Available.IsZero())
	assert.True(t, snap.Pending.IsZero())
	assert.True(t, snap.AmountDue.IsZero())

	_, err = svc.GetBalanceSnapshot(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestLedgerListEntriesSinceFilter(t *testing.T) {
	store := newMemStore()
	account := newTestAccount()
	store.addAccount(account)
	svc := NewLedgerService(store)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, account.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	_, err = svc.RecordSale(ctx, account.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	all, err := svc.ListEntries(ctx, account.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	recent, err := svc.ListEntries(ctx, account.ID, &cutoff)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Amount.Equal(decimal.NewFromInt(20)))
}
