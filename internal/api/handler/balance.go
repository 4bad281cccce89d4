package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/service"
	"go.uber.org/zap"
)

// BalanceHandler serves the projected balance snapshot.
type BalanceHandler struct {
	ledgerSvc *service.LedgerService
	store     service.QueryStore
}

func NewBalanceHandler(ledgerSvc *service.LedgerService, store service.QueryStore) *BalanceHandler {
	return &BalanceHandler{ledgerSvc: ledgerSvc, store: store}
}

// GetBalance handles GET /v1/accounts/{id}/balance. Accounts with no ledger
// activity report all-zero balances rather than 404.
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, isOperator, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}
	if !isOperator {
		if !verifyAccountOwnership(w, r, h.store, accountID, actorID) {
			return
		}
	}

	snap, err := h.ledgerSvc.GetBalanceSnapshot(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
			return
		}
		zap.L().Error("get balance failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "balance/read-failed", "Failed to get balance")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"account_id":         snap.AccountID,
		"currency":           snap.Currency,
		"available":          snap.Available,
		"pending":            snap.Pending,
		"amount_due":         snap.AmountDue,
		"current_balance":    snap.CurrentBalance(),
		"last_payout_at":     snap.LastPayoutAt,
		"last_payout_amount": snap.LastPayoutAmount,
		"updated_at":         snap.UpdatedAt,
	})
}
