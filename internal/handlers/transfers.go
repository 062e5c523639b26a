package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"transfers/internal/money"
	"transfers/internal/services"
	"transfers/internal/store"
	"transfers/internal/validator"

	"github.com/go-chi/chi/v5"
)

type transferRequest struct {
	FromOwnerID    string `json:"from_owner_id"`
	ToOwnerID      string `json:"to_owner_id"`
	Amount         string `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transfersTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	if err := validator.ValidateIdempotencyKey(key); err != nil {
		transfersTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid idempotency key")
		return
	}
	if err := validator.ValidateOwnerID(req.FromOwnerID); err != nil {
		transfersTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid from_owner_id")
		return
	}
	if err := validator.ValidateOwnerID(req.ToOwnerID); err != nil {
		transfersTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid to_owner_id")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		transfersTotal.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	result, replayed, err := h.service.ProcessTransfer(r.Context(), services.TransferRequest{
		FromOwnerID:    req.FromOwnerID,
		ToOwnerID:      req.ToOwnerID,
		AmountMinor:    amountMinor,
		IdempotencyKey: key,
		Description:    req.Description,
	})
	transferDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		transfersTotal.WithLabelValues(string(services.KindOf(err))).Inc()
		respondDomainError(w, err)
		return
	}
	if replayed {
		transfersTotal.WithLabelValues("replayed").Inc()
		respondJSON(w, http.StatusOK, result)
		return
	}
	transfersTotal.WithLabelValues("completed").Inc()
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "transferID")
	row, err := h.service.GetTransfer(r.Context(), transferID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transferPayload(row))
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if err := validator.ValidateOwnerID(ownerID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner_id")
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	rows, err := h.service.ListTransfers(r.Context(), ownerID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, transferPayload(row))
	}
	respondJSON(w, http.StatusOK, payload)
}

func parseLimit(raw string) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0
	}
	return value
}

func transferPayload(row store.Transfer) map[string]any {
	return map[string]any{
		"id":              row.ID,
		"from_account_id": derefStringPtr(row.FromAccountID),
		"to_account_id":   derefStringPtr(row.ToAccountID),
		"amount":          money.FormatMinor(row.Amount),
		"status":          row.Status,
		"reference":       row.Reference,
		"description":     row.Description,
		"created_at":      row.CreatedAt,
	}
}

func derefStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
