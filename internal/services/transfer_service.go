package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"transfers/internal/db"
	"transfers/internal/money"
	"transfers/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type AccountStore interface {
	Create(ctx context.Context, id, ownerID string, balance int64) error
	GetByOwner(ctx context.Context, ownerID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error
}

type TransferStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransferInput) error
	UpdateStatus(ctx context.Context, tx store.Execer, transferID, status string) error
	GetByID(ctx context.Context, transferID string) (store.Transfer, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
	SumByAccount(ctx context.Context, accountID string) (int64, error)
}

type AdmissionLedger interface {
	CheckKey(ctx context.Context, key string) (store.IdempotencyRecord, bool, error)
	BeginAttempt(ctx context.Context, key string, requestSnapshot []byte) error
	CompleteAttempt(ctx context.Context, key, transferID string, responseSnapshot []byte) error
	FailAttempt(ctx context.Context, key, errorMessage string) error
}

type TransferService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	transfers TransferStore
	ledger    LedgerStore
	admission AdmissionLedger
	logger    *slog.Logger
}

func NewTransferService(txRunner db.TxRunner, accounts AccountStore, transfers TransferStore, ledger LedgerStore, admission AdmissionLedger, logger *slog.Logger) *TransferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferService{
		txRunner:  txRunner,
		accounts:  accounts,
		transfers: transfers,
		ledger:    ledger,
		admission: admission,
		logger:    logger,
	}
}

type TransferRequest struct {
	FromOwnerID    string
	ToOwnerID      string
	AmountMinor    int64
	IdempotencyKey string
	Description    string
}

type TransferResult struct {
	TransferID    string `json:"transfer_id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	Message       string `json:"message"`
}

type requestSnapshot struct {
	FromOwnerID string `json:"from_owner_id"`
	ToOwnerID   string `json:"to_owner_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ProcessTransfer moves AmountMinor from the source owner's account to the
// destination owner's account exactly once per idempotency key. The second
// return value reports a replay: the result was served from the recorded
// outcome of an earlier completed attempt, byte for byte, and no balance
// moved again.
func (s *TransferService) ProcessTransfer(ctx context.Context, req TransferRequest) (TransferResult, bool, error) {
	if req.AmountMinor <= 0 {
		return TransferResult{}, false, ErrInvalidAmount
	}
	if req.FromOwnerID == req.ToOwnerID {
		return TransferResult{}, false, ErrSameOwner
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return TransferResult{}, false, ErrMissingIdempotencyKey
	}

	record, found, err := s.admission.CheckKey(ctx, req.IdempotencyKey)
	if err != nil {
		return TransferResult{}, false, err
	}
	if found {
		switch record.Status {
		case store.IdempotencyStatusCompleted:
			var result TransferResult
			if err := json.Unmarshal(record.ResponseSnapshot, &result); err != nil {
				return TransferResult{}, false, internalError(fmt.Sprintf("stored response is unreadable: %v", err))
			}
			return result, true, nil
		case store.IdempotencyStatusPending:
			return TransferResult{}, false, ErrKeyInFlight
		}
		// failed: the prior attempt did not take effect, run again
	}

	snapshot, err := json.Marshal(requestSnapshot{
		FromOwnerID: req.FromOwnerID,
		ToOwnerID:   req.ToOwnerID,
		Amount:      money.FormatMinor(req.AmountMinor),
		Description: req.Description,
	})
	if err != nil {
		return TransferResult{}, false, internalError(fmt.Sprintf("failed to snapshot request: %v", err))
	}
	if err := s.admission.BeginAttempt(ctx, req.IdempotencyKey, snapshot); err != nil {
		return TransferResult{}, false, err
	}

	result, err := s.executeTransfer(ctx, req)
	if err != nil {
		if failErr := s.admission.FailAttempt(ctx, req.IdempotencyKey, err.Error()); failErr != nil {
			s.logger.Error("unable to record failed attempt",
				"key", req.IdempotencyKey, "error", failErr)
		}
		if Expected(err) {
			s.logger.Info("transfer rejected",
				"key", req.IdempotencyKey, "reason", err.Error())
		} else {
			s.logger.Error("transfer aborted",
				"key", req.IdempotencyKey, "error", err)
		}
		return TransferResult{}, false, err
	}

	response, err := json.Marshal(result)
	if err != nil {
		return TransferResult{}, false, internalError(fmt.Sprintf("failed to snapshot response: %v", err))
	}
	if err := s.admission.CompleteAttempt(ctx, req.IdempotencyKey, result.TransferID, response); err != nil {
		// The transfer is committed; a later retry of the same key replays
		// from scratch, so surface this loudly but keep the success.
		s.logger.Error("unable to record completed attempt",
			"key", req.IdempotencyKey, "transfer_id", result.TransferID, "error", err)
	}
	s.logger.Info("transfer completed",
		"transfer_id", result.TransferID,
		"reference", result.Reference,
		"amount", result.Amount,
	)
	return result, false, nil
}

func (s *TransferService) executeTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	var result TransferResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		source, err := s.accounts.GetByOwner(ctx, req.FromOwnerID)
		if errors.Is(err, store.ErrAccountNotFound) {
			return ErrSourceNotFound
		}
		if err != nil {
			return err
		}
		destination, err := s.accounts.GetByOwner(ctx, req.ToOwnerID)
		if errors.Is(err, store.ErrAccountNotFound) {
			return ErrDestinationNotFound
		}
		if err != nil {
			return err
		}

		source, destination, err = lockTwoAccounts(ctx, tx, s.accounts, source.ID, destination.ID)
		if err != nil {
			return err
		}
		if source.Balance < req.AmountMinor {
			return ErrInsufficientFunds
		}

		transferID := uuid.NewString()
		reference := newReference()
		fromID, toID := source.ID, destination.ID
		if err := s.transfers.Create(ctx, tx, store.TransferInput{
			ID:            transferID,
			FromAccountID: &fromID,
			ToAccountID:   &toID,
			Amount:        req.AmountMinor,
			Status:        store.TransferStatusPending,
			Reference:     reference,
			Description:   req.Description,
		}); err != nil {
			return err
		}

		if err := s.accounts.UpdateBalance(ctx, tx, source.ID, source.Balance-req.AmountMinor); err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, destination.ID, destination.Balance+req.AmountMinor); err != nil {
			return err
		}

		entries := []store.LedgerEntryInput{
			{
				ID:          uuid.NewString(),
				TransferID:  transferID,
				AccountID:   source.ID,
				Amount:      -req.AmountMinor,
				Description: "Transfer debit",
			},
			{
				ID:          uuid.NewString(),
				TransferID:  transferID,
				AccountID:   destination.ID,
				Amount:      req.AmountMinor,
				Description: "Transfer credit",
			},
		}
		if err := ensureBalanced(entries); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}

		if err := s.transfers.UpdateStatus(ctx, tx, transferID, store.TransferStatusCompleted); err != nil {
			return err
		}

		result = TransferResult{
			TransferID:    transferID,
			FromAccountID: source.ID,
			ToAccountID:   destination.ID,
			Amount:        money.FormatMinor(req.AmountMinor),
			Status:        store.TransferStatusCompleted,
			Reference:     reference,
			Message:       "transfer completed",
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

func (s *TransferService) CreateAccount(ctx context.Context, ownerID string, initialBalanceMinor int64) (store.Account, error) {
	if initialBalanceMinor < 0 {
		return store.Account{}, ErrNegativeInitialBalance
	}
	err := s.accounts.Create(ctx, uuid.NewString(), ownerID, initialBalanceMinor)
	if errors.Is(err, store.ErrOwnerExists) {
		return store.Account{}, ErrOwnerExists
	}
	if err != nil {
		return store.Account{}, internalError(fmt.Sprintf("failed to create account: %v", err))
	}
	account, err := s.accounts.GetByOwner(ctx, ownerID)
	if err != nil {
		return store.Account{}, internalError(fmt.Sprintf("failed to load created account: %v", err))
	}
	s.logger.Info("account created", "account_id", account.ID, "owner_id", ownerID)
	return account, nil
}

func (s *TransferService) GetAccount(ctx context.Context, ownerID string) (store.Account, error) {
	account, err := s.accounts.GetByOwner(ctx, ownerID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return store.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return store.Account{}, internalError(fmt.Sprintf("failed to load account: %v", err))
	}
	return account, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, transferID string) (store.Transfer, error) {
	row, err := s.transfers.GetByID(ctx, transferID)
	if errors.Is(err, store.ErrTransferNotFound) {
		return store.Transfer{}, ErrTransferNotFound
	}
	if err != nil {
		return store.Transfer{}, internalError(fmt.Sprintf("failed to load transfer: %v", err))
	}
	return row, nil
}

type ReconciliationReport struct {
	AccountID     string `json:"account_id"`
	StoredBalance int64  `json:"stored_balance"`
	LedgerSum     int64  `json:"ledger_sum"`
	Difference    int64  `json:"difference"`
}

// ReconcileAccount compares the stored balance against the ledger entry sum.
// The difference equals the account's initial funding, which never enters the
// ledger; any drift beyond that means a balance was mutated outside a
// transfer.
func (s *TransferService) ReconcileAccount(ctx context.Context, ownerID string) (ReconciliationReport, error) {
	account, err := s.GetAccount(ctx, ownerID)
	if err != nil {
		return ReconciliationReport{}, err
	}
	sum, err := s.ledger.SumByAccount(ctx, account.ID)
	if err != nil {
		return ReconciliationReport{}, internalError(fmt.Sprintf("failed to sum ledger entries: %v", err))
	}
	return ReconciliationReport{
		AccountID:     account.ID,
		StoredBalance: account.Balance,
		LedgerSum:     sum,
		Difference:    account.Balance - sum,
	}, nil
}

const defaultTransferListLimit = 50

func (s *TransferService) ListTransfers(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error) {
	if limit <= 0 {
		limit = defaultTransferListLimit
	}
	if _, err := s.GetAccount(ctx, ownerID); err != nil {
		return nil, err
	}
	rows, err := s.transfers.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, internalError(fmt.Sprintf("failed to list transfers: %v", err))
	}
	return rows, nil
}

func ensureBalanced(entries []store.LedgerEntryInput) error {
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != 0 {
		return errors.New("ledger entries are not balanced")
	}
	return nil
}

// lockTwoAccounts locks both rows in ascending account id order regardless of
// transfer direction. Two opposing transfers between the same pair always
// queue on the same first lock, so the hold-and-wait cycle cannot form.
func lockTwoAccounts(ctx context.Context, tx store.Getter, accounts AccountStore, firstID, secondID string) (store.Account, store.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	leftAccount, err := accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	rightAccount, err := accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	if firstID == leftID {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func newReference() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TRF-" + token[:10]
}
