package handlers

import (
	"net/http"

	"transfers/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/accounts", h.CreateAccount)
	router.Get("/accounts/{ownerID}", h.GetAccount)
	router.Get("/accounts/{ownerID}/transfers", h.ListTransfers)
	router.Get("/accounts/{ownerID}/reconciliation", h.ReconcileAccount)
	router.Post("/transfers", h.Transfer)
	router.Get("/transfers/{transferID}", h.GetTransfer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}
