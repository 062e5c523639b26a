package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transfers/internal/config"
	"transfers/internal/db"
	"transfers/internal/handlers"
	"transfers/internal/services"
	"transfers/internal/store"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	database, err := db.Connect(cfg.DatabaseURL, cfg.MaxOpenConns, cfg.StatementTimeout)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	transfers := store.NewTransferStore(database)
	ledger := store.NewLedgerStore(database)
	idempotency := store.NewIdempotencyStore(database)
	txRunner := db.NewTxRunner(database)
	admission := services.NewIdempotencyLedger(idempotency)
	service := services.NewTransferService(txRunner, accounts, transfers, ledger, admission, logger)

	handler := handlers.New(cfg, service)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("transfers API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
