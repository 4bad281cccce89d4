package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/service"
	"go.uber.org/zap"
)

// PayoutHandler handles HTTP requests for payouts.
type PayoutHandler struct {
	payoutSvc *service.PayoutService
	store     service.QueryStore
}

func NewPayoutHandler(payoutSvc *service.PayoutService, store service.QueryStore) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc, store: store}
}

// CreatePayoutRequest represents the request body for requesting a payout.
type CreatePayoutRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// CreatePayout handles POST /v1/payouts. The orchestration runs synchronously:
// the response carries the terminal outcome, success or not.
func (h *PayoutHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	actorID, isOperator, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AccountID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-account-id", "account_id is required")
		return
	}
	if strings.TrimSpace(req.Currency) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-currency", "currency is required")
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	if !isOperator {
		if !verifyAccountOwnership(w, r, h.store, accountID, actorID) {
			return
		}
	}

	result, err := h.payoutSvc.RequestPayout(r.Context(), service.RequestPayoutInput{
		AccountID:   accountID,
		Amount:      amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		RequestedBy: &actorID,
	})
	if err != nil {
		var ineligible *service.IneligibleError
		switch {
		case errors.As(err, &ineligible):
			RespondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"eligible": false,
				"code":     ineligible.Code,
				"reason":   ineligible.Reason,
			})
			return
		case errors.Is(err, domain.ErrAccountNotFound):
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
			return
		case errors.Is(err, service.ErrCurrencyMismatch):
			RespondError(w, r, http.StatusBadRequest, "request/currency-mismatch", "currency does not match account currency")
			return
		}
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("create payout failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/create-failed", "Failed to create payout")
		return
	}

	status := http.StatusCreated
	if !result.Success {
		// The payout row exists and is FAILED; the request itself succeeded.
		status = http.StatusOK
	}
	RespondJSON(w, status, result)
}

// GetPayout handles GET /v1/payouts/{id}.
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	actorID, isOperator, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-id", "Invalid payout ID")
		return
	}

	payout, err := h.payoutSvc.GetPayout(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutNotFound) {
			RespondError(w, r, http.StatusNotFound, "payout/not-found", "Payout not found")
			return
		}
		zap.L().Error("get payout failed", zap.Error(err), zap.String("payout_id", payoutID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/read-failed", "Failed to get payout")
		return
	}
	if !isOperator {
		if !verifyAccountOwnership(w, r, h.store, payout.AccountID, actorID) {
			return
		}
	}

	RespondJSON(w, http.StatusOK, payout)
}

// ProcessPayout handles POST /v1/payouts/{id}/process (operator only). It
// re-drives a payout through the orchestrator; terminal payouts replay their
// recorded outcome.
func (h *PayoutHandler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-id", "Invalid payout ID")
		return
	}

	result, err := h.payoutSvc.Process(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutNotFound) {
			RespondError(w, r, http.StatusNotFound, "payout/not-found", "Payout not found")
			return
		}
		zap.L().Error("process payout failed", zap.Error(err), zap.String("payout_id", payoutID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/process-failed", "Failed to process payout")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// ListAccountPayouts handles GET /v1/accounts/{id}/payouts.
func (h *PayoutHandler) ListAccountPayouts(w http.ResponseWriter, r *http.Request) {
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
	limit, offset, err := parsePagination(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-pagination", err.Error())
		return
	}
	if !isOperator {
		if !verifyAccountOwnership(w, r, h.store, accountID, actorID) {
			return
		}
	}

	payouts, err := h.payoutSvc.ListPayouts(r.Context(), accountID, limit, offset)
	if err != nil {
		zap.L().Error("list payouts failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payout/list-failed", "Failed to list payouts")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  payouts,
		"limit":  limit,
		"offset": offset,
		"count":  len(payouts),
	})
}
