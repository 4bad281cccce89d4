package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/service"
	"go.uber.org/zap"
)

// LedgerHandler records settlement events and serves ledger history.
type LedgerHandler struct {
	ledgerSvc *service.LedgerService
	store     service.QueryStore
}

func NewLedgerHandler(ledgerSvc *service.LedgerService, store service.QueryStore) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc, store: store}
}

// ListEntries handles GET /v1/accounts/{id}/ledger. Accepts an optional
// ?since=RFC3339 filter.
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
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

	var since *time.Time
	if v := strings.TrimSpace(r.URL.Query().Get("since")); v != "" {
		parsed, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-since", "since must be an RFC3339 timestamp")
			return
		}
		since = &parsed
	}
	if !isOperator {
		if !verifyAccountOwnership(w, r, h.store, accountID, actorID) {
			return
		}
	}

	entries, err := h.ledgerSvc.ListEntries(r.Context(), accountID, since)
	if err != nil {
		zap.L().Error("list ledger entries failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "ledger/list-failed", "Failed to list ledger entries")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

// RecordEntryRequest represents the body for posting a settlement event.
type RecordEntryRequest struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
}

// RecordEntry handles POST /v1/accounts/{id}/entries (operator only). It
// posts a sale, refund, fee or adjustment and re-projects the balance.
func (h *LedgerHandler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	var req RecordEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	entryType := domain.EntryType(strings.TrimSpace(strings.ToLower(req.Type)))
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	entry, err := h.ledgerSvc.RecordEntry(r.Context(), service.RecordEntryInput{
		AccountID: accountID,
		Type:      entryType,
		Amount:    amount,
	})
	if err != nil {
		h.respondRecordError(w, r, accountID, err)
		return
	}

	RespondJSON(w, http.StatusCreated, entry)
}

// ReleaseRequest represents the body for releasing held funds.
type ReleaseRequest struct {
	Amount string `json:"amount"`
}

// ReleaseFunds handles POST /v1/accounts/{id}/release (operator only). It
// moves matured held funds into the available balance.
func (h *LedgerHandler) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a decimal string")
		return
	}

	entry, err := h.ledgerSvc.ReleaseHeldFunds(r.Context(), accountID, amount)
	if err != nil {
		h.respondRecordError(w, r, accountID, err)
		return
	}

	RespondJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) respondRecordError(w http.ResponseWriter, r *http.Request, accountID uuid.UUID, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
	case errors.Is(err, domain.ErrInvalidEntryType):
		RespondError(w, r, http.StatusBadRequest, "request/invalid-entry-type", "type must be sale, refund, fee or adjustment")
	case errors.Is(err, service.ErrInvalidEntryAmount):
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("record ledger entry failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "ledger/record-failed", "Failed to record ledger entry")
	}
}
