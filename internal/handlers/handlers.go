package handlers

import (
	"encoding/json"
	"net/http"

	"transfers/internal/config"
	"transfers/internal/services"
)

type Handler struct {
	cfg     config.Config
	service TransferService
}

func New(cfg config.Config, service TransferService) *Handler {
	return &Handler{cfg: cfg, service: service}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondDomainError(w http.ResponseWriter, err error) {
	switch services.KindOf(err) {
	case services.KindValidation:
		respondError(w, http.StatusBadRequest, err.Error())
	case services.KindNotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case services.KindConflict:
		respondError(w, http.StatusConflict, err.Error())
	case services.KindInsufficientFunds:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
