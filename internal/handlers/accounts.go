package handlers

import (
	"encoding/json"
	"net/http"

	"transfers/internal/money"
	"transfers/internal/store"
	"transfers/internal/validator"

	"github.com/go-chi/chi/v5"
)

type createAccountRequest struct {
	OwnerID        string `json:"owner_id"`
	InitialBalance string `json:"initial_balance"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateOwnerID(req.OwnerID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}
	balanceMinor := int64(0)
	if req.InitialBalance != "" {
		parsed, err := money.ParseMinor(req.InitialBalance)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid initial_balance")
			return
		}
		balanceMinor = parsed
	}
	account, err := h.service.CreateAccount(r.Context(), req.OwnerID, balanceMinor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, accountPayload(account))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if err := validator.ValidateOwnerID(ownerID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}
	account, err := h.service.GetAccount(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accountPayload(account))
}

func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if err := validator.ValidateOwnerID(ownerID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}
	report, err := h.service.ReconcileAccount(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":     report.AccountID,
		"stored_balance": money.FormatMinor(report.StoredBalance),
		"ledger_sum":     money.FormatMinor(report.LedgerSum),
		"difference":     money.FormatMinor(report.Difference),
	})
}

func accountPayload(account store.Account) map[string]any {
	return map[string]any{
		"account_id": account.ID,
		"owner_id":   account.OwnerID,
		"balance":    money.FormatMinor(account.Balance),
		"created_at": account.CreatedAt,
	}
}
