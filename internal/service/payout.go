package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/gateway"
	"github.com/sellershub/settlement-engine/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Failure codes surfaced on PayoutResult for orchestration failures (a payout
// row exists and is marked FAILED). Eligibility failures surface as
// IneligibleError instead and create no row.
const (
	FailureUpstreamFunds      = "upstream_insufficient_funds"
	FailureAlreadyProcessed   = "already_processed"
	FailurePreflightUnavail   = "preflight_unavailable"
	FailureGatewayInsufficent = string(gateway.CodeInsufficientFunds)
	FailureGatewayDestination = string(gateway.CodeInvalidDestination)
	FailureGatewayOther       = string(gateway.CodeOther)
)

var ErrCurrencyMismatch = errors.New("requested currency does not match account currency")

const defaultGatewayTimeout = 15 * time.Second

// PayoutService owns the payout state machine: rows are created PENDING here,
// and only this service ever moves them to PROCESSING, COMPLETED or FAILED.
type PayoutService struct {
	store          QueryStore
	gateway        gateway.Gateway
	ledger         *LedgerService
	checker        *EligibilityChecker
	audit          *AuditService
	notifier       Notifier
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewPayoutService(store QueryStore, gw gateway.Gateway, ledger *LedgerService) *PayoutService {
	return &PayoutService{
		store:          store,
		gateway:        gw,
		ledger:         ledger,
		checker:        NewEligibilityChecker(),
		audit:          NewAuditService(),
		notifier:       NopNotifier{},
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
	}
}

// WithNotifier installs the post-settlement hook.
func (s *PayoutService) WithNotifier(n Notifier) *PayoutService {
	s.notifier = n
	return s
}

// WithGatewayTimeout bounds each external gateway call.
func (s *PayoutService) WithGatewayTimeout(d time.Duration) *PayoutService {
	if d > 0 {
		s.gatewayTimeout = d
	}
	return s
}

// RequestPayoutInput is a seller- or operator-initiated withdrawal request.
type RequestPayoutInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	RequestedBy *uuid.UUID
}

// PayoutResult is the orchestration outcome returned to callers. SideEffects
// lists best-effort follow-ups (notifications, lagging ledger writes); the
// core outcome in Success never depends on them.
type PayoutResult struct {
	Success     bool         `json:"success"`
	PayoutID    uuid.UUID    `json:"payout_id"`
	TransferID  string       `json:"transfer_id,omitempty"`
	ErrorCode   string       `json:"error_code,omitempty"`
	ErrorReason string       `json:"error_reason,omitempty"`
	SideEffects []SideEffect `json:"-"`
}

// RequestPayout runs the eligibility checks and, on pass, creates the pending
// row and immediately drives it through Process. Eligibility failures return
// an IneligibleError and create no row; a failed orchestration still leaves
// the FAILED row visible for audit and reports the reason to the caller.
func (s *PayoutService) RequestPayout(ctx context.Context, in RequestPayoutInput) (*PayoutResult, error) {
	payout, err := s.createPayout(ctx, in, true)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, payout.ID)
}

// ProcessPayoutForAccount is the system-initiated entry point used by the
// payout scheduler. It records a nil requester and deliberately does not
// re-run the eligibility checker: scheduled payouts are pre-validated by the
// scheduler. The orchestration state machine is identical.
func (s *PayoutService) ProcessPayoutForAccount(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, currency string) (*PayoutResult, error) {
	payout, err := s.createPayout(ctx, RequestPayoutInput{
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
	}, false)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, payout.ID)
}

// createPayout validates the request, optionally runs the eligibility
// checker, and inserts the PENDING row — all under the account row lock so
// that two concurrent requests cannot both observe "no open payout".
func (s *PayoutService) createPayout(ctx context.Context, in RequestPayoutInput, checkEligibility bool) (domain.PayoutRequest, error) {
	if !in.Amount.IsPositive() {
		return domain.PayoutRequest{}, &IneligibleError{
			Code:   IneligibleInvalidAmount,
			Reason: fmt.Sprintf("payout amount must be positive, got %s", in.Amount.String()),
		}
	}

	var payout domain.PayoutRequest
	err := s.store.RunInTx(ctx, func(q Queries) error {
		account, err := q.GetAccountForUpdate(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if in.Currency != account.Currency {
			return fmt.Errorf("%w: account settles in %s, requested %s", ErrCurrencyMismatch, account.Currency, in.Currency)
		}

		if checkEligibility {
			snap, err := q.GetSnapshot(ctx, account.ID, account.Currency)
			if errors.Is(err, domain.ErrSnapshotNotFound) {
				snap = domain.NewBalanceSnapshot(account.ID, account.Currency)
			} else if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			if err := s.checker.Evaluate(ctx, q, account, snap, in.Amount); err != nil {
				return err
			}
		}

		payout = domain.PayoutRequest{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Amount:      in.Amount,
			Currency:    account.Currency,
			Status:      domain.PayoutPending,
			RequestedBy: in.RequestedBy,
			RequestedAt: s.now(),
		}
		if err := q.InsertPayout(ctx, payout); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		action := "payout_requested"
		if in.RequestedBy == nil {
			action = "payout_scheduled"
		}
		return s.audit.Write(ctx, q, "payout", payout.ID, in.RequestedBy, action, "", domain.PayoutPending, nil)
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	return payout, nil
}

// Process drives one payout through the state machine in named phases:
// claim, preflight, transfer, commit. Re-invoking it for a payout that has
// already been claimed or finished is an idempotent no-op; it never creates a
// second transfer or a second ledger entry.
func (s *PayoutService) Process(ctx context.Context, payoutID uuid.UUID) (*PayoutResult, error) {
	q := s.store.Queries()

	payout, err := q.GetPayout(ctx, payoutID)
	if errors.Is(err, domain.ErrPayoutNotFound) {
		return &PayoutResult{
			PayoutID:    payoutID,
			ErrorCode:   FailureAlreadyProcessed,
			ErrorReason: "payout not found or already processed",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payout: %w", err)
	}
	if payout.Status != domain.PayoutPending {
		return s.alreadyProcessedResult(payout), nil
	}

	account, err := q.GetAccount(ctx, payout.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	required, err := domain.MinorUnits(payout.Amount, payout.Currency)
	if err != nil {
		return s.failFromPending(ctx, payout, FailureGatewayOther, err.Error())
	}

	// Preflight: verify upstream funds before committing to a transfer
	// attempt. A shortfall is a business-expected outcome, failed straight
	// from PENDING without ever entering PROCESSING.
	upstream, err := s.upstreamBalance(ctx, payout.Currency)
	if err != nil {
		_, reason := gateway.Classify(err)
		return s.failFromPending(ctx, payout, FailurePreflightUnavail, "balance inquiry failed: "+reason)
	}
	if upstream < required {
		reason := fmt.Sprintf("upstream available %s, required %s",
			domain.FormatAmount(domain.FromMinorUnits(upstream, payout.Currency), payout.Currency),
			domain.FormatAmount(payout.Amount, payout.Currency))
		zap.L().Warn("payout preflight failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("reason", reason),
		)
		return s.failFromPending(ctx, payout, FailureUpstreamFunds, reason)
	}

	// Claim: conditional PENDING -> PROCESSING. A concurrent Process call
	// loses this update and backs off; the PROCESSING status serializes the
	// in-flight gateway call without holding any database lock.
	processedAt := s.now()
	claimed, err := q.ClaimPayout(ctx, payout.ID, processedAt)
	if err != nil {
		return nil, fmt.Errorf("claim payout: %w", err)
	}
	if !claimed {
		current, err := q.GetPayout(ctx, payout.ID)
		if err != nil {
			return nil, fmt.Errorf("reload payout after lost claim: %w", err)
		}
		return s.alreadyProcessedResult(current), nil
	}
	payout.Status = domain.PayoutProcessing
	payout.ProcessedAt = &processedAt
	s.auditBestEffort(ctx, payout.ID, nil, "payout_claimed", domain.PayoutPending, domain.PayoutProcessing, nil)

	// Transfer: the one blocking external call, outside any transaction.
	transferID, err := s.createTransfer(ctx, required, payout.Currency, account.DestinationRef)
	if err != nil {
		code, reason := gateway.Classify(err)
		zap.L().Warn("payout transfer failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("class", string(code)),
			zap.Error(err),
		)
		return s.failFromProcessing(ctx, payout, string(code), reason)
	}

	// Commit: record completion, post the debit and re-project the snapshot
	// as one unit. If this fails the transfer has still happened — record
	// completion alone and leave the ledger gap to reconciliation; never
	// re-invoke the transfer.
	completedAt := s.now()
	result := &PayoutResult{Success: true, PayoutID: payout.ID, TransferID: transferID}
	if err := s.commitCompletion(ctx, payout, transferID, completedAt); err != nil {
		zap.L().Error("transfer succeeded but completion commit failed; recording completion only",
			zap.Error(err),
			zap.String("payout_id", payout.ID.String()),
			zap.String("transfer_id", transferID),
		)
		if _, recErr := q.CompletePayout(ctx, payout.ID, transferID, completedAt); recErr != nil {
			zap.L().Error("fallback completion record failed; reconciliation must repair from transfer reference",
				zap.Error(recErr),
				zap.String("payout_id", payout.ID.String()),
			)
		}
		result.SideEffects = append(result.SideEffects, SideEffect{Name: "ledger_debit", Err: err})
		observability.IncrementPayoutOutcome("completed_degraded", "")
	} else {
		observability.IncrementPayoutOutcome("completed", "")
	}

	payout.Status = domain.PayoutCompleted
	payout.TransferID = &transferID
	payout.CompletedAt = &completedAt
	result.SideEffects = append(result.SideEffects, runNotify(ctx, s.notifier, payout))
	return result, nil
}

// ProcessStalePayouts re-drives payouts stuck in PENDING (for example when a
// request crashed between insert and Process) through the same idempotent
// Process path. Used by the background sweeper.
func (s *PayoutService) ProcessStalePayouts(ctx context.Context, staleAfter time.Duration, limit int32) (int, error) {
	cutoff := s.now().Add(-staleAfter)
	stale, err := s.store.Queries().ListStalePendingPayouts(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale pending payouts: %w", err)
	}

	processed := 0
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := s.Process(ctx, p.ID); err != nil {
			zap.L().Error("stale payout reprocess failed", zap.Error(err), zap.String("payout_id", p.ID.String()))
			continue
		}
		processed++
	}
	return processed, nil
}

// GetPayout returns one payout by id.
func (s *PayoutService) GetPayout(ctx context.Context, payoutID uuid.UUID) (domain.PayoutRequest, error) {
	return s.store.Queries().GetPayout(ctx, payoutID)
}

// ListPayouts returns the account's payout requests, most recent first.
func (s *PayoutService) ListPayouts(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.PayoutRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.Queries().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Queries().ListPayouts(ctx, accountID, limit, offset)
}

// upstreamBalance queries the processor's available funds with a bounded
// timeout.
func (s *PayoutService) upstreamBalance(ctx context.Context, currency string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	start := time.Now()
	balance, err := s.gateway.GetAvailableBalance(ctx, currency)
	observability.ObserveGatewayCall("get_available_balance", err == nil, time.Since(start))
	return balance, err
}

// createTransfer invokes the processor with a bounded timeout. There is no
// cancellation once the call is in flight; by the time funds may have moved,
// the payout row already reflects that an attempt was made.
func (s *PayoutService) createTransfer(ctx context.Context, amountMinorUnits int64, currency, destinationRef string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	start := time.Now()
	transferID, err := s.gateway.CreateTransfer(ctx, amountMinorUnits, currency, destinationRef)
	observability.ObserveGatewayCall("create_transfer", err == nil, time.Since(start))
	return transferID, err
}

// commitCompletion records the terminal COMPLETED state, the payout-debit
// ledger entry and the snapshot update atomically.
func (s *PayoutService) commitCompletion(ctx context.Context, payout domain.PayoutRequest, transferID string, completedAt time.Time) error {
	return s.store.RunInTx(ctx, func(q Queries) error {
		account, err := q.GetAccountForUpdate(ctx, payout.AccountID)
		if err != nil {
			return err
		}

		ok, err := q.CompletePayout(ctx, payout.ID, transferID, completedAt)
		if err != nil {
			return fmt.Errorf("mark payout completed: %w", err)
		}
		if !ok {
			return fmt.Errorf("payout %s no longer in %s", payout.ID, domain.PayoutProcessing)
		}

		relatedID := payout.ID
		entry := domain.LedgerEntry{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Type:            domain.EntryPayoutDebit,
			Amount:          payout.Amount,
			Currency:        account.Currency,
			RelatedPayoutID: &relatedID,
			CreatedAt:       completedAt,
		}
		if err := q.AppendLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("append payout debit: %w", err)
		}
		if err := s.ledger.projectEntry(ctx, q, account, entry); err != nil {
			return err
		}

		return s.audit.Write(ctx, q, "payout", payout.ID, nil, "payout_completed",
			domain.PayoutProcessing, domain.PayoutCompleted, map[string]string{"transfer_id": transferID})
	})
}

// failFromPending marks a payout FAILED directly from PENDING (the preflight
// path). No ledger mutation occurs on any failure path.
func (s *PayoutService) failFromPending(ctx context.Context, payout domain.PayoutRequest, code, reason string) (*PayoutResult, error) {
	return s.fail(ctx, payout, domain.PayoutPending, code, reason)
}

// failFromProcessing marks a claimed payout FAILED after a gateway error.
func (s *PayoutService) failFromProcessing(ctx context.Context, payout domain.PayoutRequest, code, reason string) (*PayoutResult, error) {
	return s.fail(ctx, payout, domain.PayoutProcessing, code, reason)
}

func (s *PayoutService) fail(ctx context.Context, payout domain.PayoutRequest, from domain.PayoutStatus, code, reason string) (*PayoutResult, error) {
	q := s.store.Queries()
	ok, err := q.FailPayout(ctx, payout.ID, from, reason)
	if err != nil {
		return nil, fmt.Errorf("mark payout failed: %w", err)
	}
	if !ok {
		current, err := q.GetPayout(ctx, payout.ID)
		if err != nil {
			return nil, fmt.Errorf("reload payout after lost fail transition: %w", err)
		}
		return s.alreadyProcessedResult(current), nil
	}

	s.auditBestEffort(ctx, payout.ID, nil, "payout_failed", from, domain.PayoutFailed, reasonMetadata(reason))
	observability.IncrementPayoutOutcome("failed", code)

	payout.Status = domain.PayoutFailed
	payout.FailureReason = &reason
	result := &PayoutResult{
		PayoutID:    payout.ID,
		ErrorCode:   code,
		ErrorReason: reason,
	}
	result.SideEffects = append(result.SideEffects, runNotify(ctx, s.notifier, payout))
	return result, nil
}

// alreadyProcessedResult reports a payout that is past PENDING without
// touching it. A completed payout replays its success.
func (s *PayoutService) alreadyProcessedResult(p domain.PayoutRequest) *PayoutResult {
	result := &PayoutResult{PayoutID: p.ID}
	switch p.Status {
	case domain.PayoutCompleted:
		result.Success = true
		if p.TransferID != nil {
			result.TransferID = *p.TransferID
		}
	case domain.PayoutFailed:
		result.ErrorCode = FailureAlreadyProcessed
		if p.FailureReason != nil {
			result.ErrorReason = *p.FailureReason
		}
	default:
		result.ErrorCode = FailureAlreadyProcessed
		result.ErrorReason = "payout is already being processed"
	}
	return result
}

// auditBestEffort writes an audit record outside the main transaction;
// failure is logged, never propagated.
func (s *PayoutService) auditBestEffort(ctx context.Context, payoutID uuid.UUID, actorID *uuid.UUID, action string, prev, next domain.PayoutStatus, metadata map[string]string) {
	err := s.store.RunInTx(ctx, func(q Queries) error {
		return s.audit.Write(ctx, q, "payout", payoutID, actorID, action, prev, next, metadata)
	})
	if err != nil {
		zap.L().Warn("audit write failed", zap.Error(err), zap.String("payout_id", payoutID.String()), zap.String("action", action))
	}
}
