package domain

import "errors"

var (
	ErrAccountNotFound  = errors.New("seller account not found")
	ErrPayoutNotFound   = errors.New("payout not found")
	ErrSnapshotNotFound = errors.New("balance snapshot not found")
	ErrInvalidEntryType = errors.New("invalid ledger entry type")
)
