package handlers

import (
	"context"

	"transfers/internal/services"
	"transfers/internal/store"
)

type TransferService interface {
	ProcessTransfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, bool, error)
	CreateAccount(ctx context.Context, ownerID string, initialBalanceMinor int64) (store.Account, error)
	GetAccount(ctx context.Context, ownerID string) (store.Account, error)
	GetTransfer(ctx context.Context, transferID string) (store.Transfer, error)
	ListTransfers(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error)
	ReconcileAccount(ctx context.Context, ownerID string) (services.ReconciliationReport, error)
}
