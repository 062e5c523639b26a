package handlers

import (
	"context"
	"net/http"

	"transfers/internal/config"
	"transfers/internal/services"
	"transfers/internal/store"

	"github.com/go-chi/chi/v5"
)

type stubService struct {
	processTransferFn  func(ctx context.Context, req services.TransferRequest) (services.TransferResult, bool, error)
	createAccountFn    func(ctx context.Context, ownerID string, initialBalanceMinor int64) (store.Account, error)
	getAccountFn       func(ctx context.Context, ownerID string) (store.Account, error)
	getTransferFn      func(ctx context.Context, transferID string) (store.Transfer, error)
	listTransfersFn    func(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error)
	reconcileAccountFn func(ctx context.Context, ownerID string) (services.ReconciliationReport, error)
}

func (s stubService) GetTransfer(ctx context.Context, transferID string) (store.Transfer, error) {
	if s.getTransferFn == nil {
		return store.Transfer{}, nil
	}
	return s.getTransferFn(ctx, transferID)
}

func (s stubService) ReconcileAccount(ctx context.Context, ownerID string) (services.ReconciliationReport, error) {
	if s.reconcileAccountFn == nil {
		return services.ReconciliationReport{}, nil
	}
	return s.reconcileAccountFn(ctx, ownerID)
}

func (s stubService) ProcessTransfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, bool, error) {
	if s.processTransferFn == nil {
		return services.TransferResult{}, false, nil
	}
	return s.processTransferFn(ctx, req)
}

func (s stubService) CreateAccount(ctx context.Context, ownerID string, initialBalanceMinor int64) (store.Account, error) {
	if s.createAccountFn == nil {
		return store.Account{}, nil
	}
	return s.createAccountFn(ctx, ownerID, initialBalanceMinor)
}

func (s stubService) GetAccount(ctx context.Context, ownerID string) (store.Account, error) {
	if s.getAccountFn == nil {
		return store.Account{}, nil
	}
	return s.getAccountFn(ctx, ownerID)
}

func (s stubService) ListTransfers(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error) {
	if s.listTransfersFn == nil {
		return nil, nil
	}
	return s.listTransfersFn(ctx, ownerID, limit)
}

func newTestHandler(service TransferService) *Handler {
	return New(config.Config{AllowedOrigins: "*"}, service)
}

func withOwnerParam(req *http.Request, ownerID string) *http.Request {
	return withURLParam(req, "ownerID", ownerID)
}

func withURLParam(req *http.Request, name, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(name, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func stringPtr(s string) *string { return &s }
