package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// IneligibilityCode identifies which payout eligibility rule failed.
type IneligibilityCode string

const (
	IneligibleInvalidAmount       IneligibilityCode = "invalid_amount"
	IneligibleInsufficientFunds   IneligibilityCode = "insufficient_funds"
	IneligibleBelowMinimum        IneligibilityCode = "below_minimum"
	IneligiblePendingPayoutExists IneligibilityCode = "pending_payout_exists"
	IneligibleDuplicateSameDay    IneligibilityCode = "duplicate_same_day"
)

// IneligibleError is the structured rejection returned when a payout request
// fails an eligibility rule. No PayoutRequest row is created in that case.
type IneligibleError struct {
	Code   IneligibilityCode
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("payout ineligible (%s): %s", e.Code, e.Reason)
}

// EligibilityChecker evaluates a requested payout against the business rules.
// It only ever reads; the caller creates the pending row. All reads must run
// inside the same transaction (holding the account row lock) that inserts the
// row, so two concurrent requests cannot both pass the open-payout check.
type EligibilityChecker struct {
	now func() time.Time
}

func NewEligibilityChecker() *EligibilityChecker {
	return &EligibilityChecker{now: time.Now}
}

// Evaluate runs the five checks in order and short-circuits on the first
// failure. A nil return means eligible.
func (c *EligibilityChecker) Evaluate(ctx context.Context, q Queries, account domain.SellerAccount, snap domain.BalanceSnapshot, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &IneligibleError{
			Code:   IneligibleInvalidAmount,
			Reason: fmt.Sprintf("payout amount must be positive, got %s", amount.String()),
		}
	}

	if amount.GreaterThan(snap.Available) {
		return &IneligibleError{
			Code: IneligibleInsufficientFunds,
			Reason: fmt.Sprintf("available balance is %s, requested %s",
				domain.FormatAmount(snap.Available, account.Currency),
				domain.FormatAmount(amount, account.Currency)),
		}
	}

	minimum := account.EffectiveMinimumPayout()
	if amount.LessThan(minimum) {
		return &IneligibleError{
			Code: IneligibleBelowMinimum,
			Reason: fmt.Sprintf("minimum payout is %s, requested %s",
				domain.FormatAmount(minimum, account.Currency),
				domain.FormatAmount(amount, account.Currency)),
		}
	}

	// A claimed (processing) payout is still an open one; it counts the
	// same as pending here.
	open, err := q.HasOpenPayout(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("check open payouts: %w", err)
	}
	if open {
		return &IneligibleError{
			Code:   IneligiblePendingPayoutExists,
			Reason: "another payout for this account is still in flight",
		}
	}

	last, err := q.LastCompletedPayout(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("load last completed payout: %w", err)
	}
	if last != nil && last.CompletedAt != nil && account.SameCalendarDay(*last.CompletedAt, c.now()) {
		return &IneligibleError{
			Code: IneligibleDuplicateSameDay,
			Reason: fmt.Sprintf("a payout of %s already completed today (%s)",
				domain.FormatAmount(last.Amount, last.Currency),
				last.CompletedAt.In(account.Location()).Format("2006-01-02")),
		}
	}

	return nil
}
