package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus is the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutCompleted  PayoutStatus = "COMPLETED"
	PayoutFailed     PayoutStatus = "FAILED"
)

// payoutTransitions encodes the orchestrator's state machine. The direct
// PENDING -> FAILED edge is the preflight failure path, which never enters
// PROCESSING. COMPLETED and FAILED are terminal.
var payoutTransitions = map[PayoutStatus]map[PayoutStatus]struct{}{
	PayoutPending: {
		PayoutProcessing: {},
		PayoutFailed:     {},
	},
	PayoutProcessing: {
		PayoutCompleted: {},
		PayoutFailed:    {},
	},
	PayoutCompleted: {},
	PayoutFailed:    {},
}

// CanTransitionPayout reports whether current -> next is a legal transition.
func CanTransitionPayout(current, next PayoutStatus) bool {
	allowed, ok := payoutTransitions[normalizePayoutStatus(current)]
	if !ok {
		return false
	}
	_, ok = allowed[normalizePayoutStatus(next)]
	return ok
}

func normalizePayoutStatus(s PayoutStatus) PayoutStatus {
	return PayoutStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

// PayoutRequest is one withdrawal attempt. Rows are created in PENDING by the
// eligibility path (or the system-initiated path); only the orchestrator ever
// sets PROCESSING, COMPLETED, FAILED or the transfer reference.
type PayoutRequest struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PayoutStatus    `json:"status"`
	RequestedBy   *uuid.UUID      `json:"requested_by,omitempty"` // nil means system-initiated
	TransferID    *string         `json:"transfer_id,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the payout has reached a final state.
func (p PayoutRequest) Terminal() bool {
	st := normalizePayoutStatus(p.Status)
	return st == PayoutCompleted || st == PayoutFailed
}
