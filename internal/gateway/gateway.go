package gateway

import (
	"context"
	"errors"
)

// Gateway is the external payment processor contract consumed by the payout
// orchestrator. Amounts cross this boundary as minor-unit integers; decimal
// conversion stays on the engine side.
type Gateway interface {
	// GetAvailableBalance returns the platform's upstream balance for a
	// currency, in minor units. Used as the preflight check before a
	// transfer is attempted.
	GetAvailableBalance(ctx context.Context, currency string) (int64, error)

	// CreateTransfer moves funds to the seller's external destination and
	// returns the processor's transfer reference.
	CreateTransfer(ctx context.Context, amountMinorUnits int64, currency, destinationRef string) (string, error)
}

// ErrorCode is the small taxonomy the orchestrator classifies gateway
// failures into.
type ErrorCode string

const (
	CodeInsufficientFunds  ErrorCode = "insufficient_funds"
	CodeInvalidDestination ErrorCode = "invalid_destination"
	CodeOther              ErrorCode = "other"
)

// Error is a typed failure from the payment processor.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Classify maps any gateway failure onto the taxonomy and a user-facing
// message. Timeouts and cancellations land in the "other" class; they never
// surface as an indefinite hang.
func Classify(err error) (ErrorCode, string) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch gwErr.Code {
		case CodeInsufficientFunds:
			return CodeInsufficientFunds, "the platform's upstream balance cannot cover this transfer"
		case CodeInvalidDestination:
			return CodeInvalidDestination, "the destination account configured for this seller was rejected by the payment processor"
		}
		return CodeOther, "the transfer could not be completed: " + gwErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeOther, "the payment processor did not respond in time"
	}
	return CodeOther, "the transfer could not be completed"
}
