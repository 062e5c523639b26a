package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"transfers/internal/store"

	"github.com/jmoiron/sqlx"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubAccountStore struct {
	createFn       func(ctx context.Context, id, ownerID string, balance int64) error
	getByOwnerFn   func(ctx context.Context, ownerID string) (store.Account, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	updateBalanceFn func(ctx context.Context, tx store.Execer, accountID string, balance int64) error
}

func (s stubAccountStore) Create(ctx context.Context, id, ownerID string, balance int64) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, id, ownerID, balance)
}

func (s stubAccountStore) GetByOwner(ctx context.Context, ownerID string) (store.Account, error) {
	if s.getByOwnerFn == nil {
		return store.Account{}, nil
	}
	return s.getByOwnerFn(ctx, ownerID)
}

func (s stubAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error) {
	if s.getForUpdateFn == nil {
		return store.Account{}, nil
	}
	return s.getForUpdateFn(ctx, tx, accountID)
}

func (s stubAccountStore) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, accountID, balance)
}

type stubTransferStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.TransferInput) error
	updateStatusFn func(ctx context.Context, tx store.Execer, transferID, status string) error
	getByIDFn      func(ctx context.Context, transferID string) (store.Transfer, error)
	listByOwnerFn  func(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error)
}

func (s stubTransferStore) GetByID(ctx context.Context, transferID string) (store.Transfer, error) {
	if s.getByIDFn == nil {
		return store.Transfer{}, nil
	}
	return s.getByIDFn(ctx, transferID)
}

func (s stubTransferStore) Create(ctx context.Context, tx store.Execer, input store.TransferInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubTransferStore) UpdateStatus(ctx context.Context, tx store.Execer, transferID, status string) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, tx, transferID, status)
}

func (s stubTransferStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerID, limit)
}

type stubLedgerStore struct {
	insertFn func(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
	sumFn    func(ctx context.Context, accountID string) (int64, error)
}

func (s stubLedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	if s.sumFn == nil {
		return 0, nil
	}
	return s.sumFn(ctx, accountID)
}

func (s stubLedgerStore) InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, entries)
}

type stubAdmissionLedger struct {
	checkFn    func(ctx context.Context, key string) (store.IdempotencyRecord, bool, error)
	beginFn    func(ctx context.Context, key string, requestSnapshot []byte) error
	completeFn func(ctx context.Context, key, transferID string, responseSnapshot []byte) error
	failFn     func(ctx context.Context, key, errorMessage string) error
}

func (s stubAdmissionLedger) CheckKey(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	if s.checkFn == nil {
		return store.IdempotencyRecord{}, false, nil
	}
	return s.checkFn(ctx, key)
}

func (s stubAdmissionLedger) BeginAttempt(ctx context.Context, key string, requestSnapshot []byte) error {
	if s.beginFn == nil {
		return nil
	}
	return s.beginFn(ctx, key, requestSnapshot)
}

func (s stubAdmissionLedger) CompleteAttempt(ctx context.Context, key, transferID string, responseSnapshot []byte) error {
	if s.completeFn == nil {
		return nil
	}
	return s.completeFn(ctx, key, transferID, responseSnapshot)
}

func (s stubAdmissionLedger) FailAttempt(ctx context.Context, key, errorMessage string) error {
	if s.failFn == nil {
		return nil
	}
	return s.failFn(ctx, key, errorMessage)
}

type stubIdempotencyStore struct {
	getFn           func(ctx context.Context, key string) (store.IdempotencyRecord, bool, error)
	createPendingFn func(ctx context.Context, key string, requestSnapshot []byte) error
	deleteFailedFn  func(ctx context.Context, key string) error
	markCompletedFn func(ctx context.Context, key, transferID string, responseSnapshot []byte) error
	markFailedFn    func(ctx context.Context, key, errorMessage string) error
}

func (s stubIdempotencyStore) Get(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	if s.getFn == nil {
		return store.IdempotencyRecord{}, false, nil
	}
	return s.getFn(ctx, key)
}

func (s stubIdempotencyStore) CreatePending(ctx context.Context, key string, requestSnapshot []byte) error {
	if s.createPendingFn == nil {
		return nil
	}
	return s.createPendingFn(ctx, key, requestSnapshot)
}

func (s stubIdempotencyStore) DeleteFailed(ctx context.Context, key string) error {
	if s.deleteFailedFn == nil {
		return nil
	}
	return s.deleteFailedFn(ctx, key)
}

func (s stubIdempotencyStore) MarkCompleted(ctx context.Context, key, transferID string, responseSnapshot []byte) error {
	if s.markCompletedFn == nil {
		return nil
	}
	return s.markCompletedFn(ctx, key, transferID, responseSnapshot)
}

func (s stubIdempotencyStore) MarkFailed(ctx context.Context, key, errorMessage string) error {
	if s.markFailedFn == nil {
		return nil
	}
	return s.markFailedFn(ctx, key, errorMessage)
}

// In-memory fakes used by the scenario and concurrency tests. The tx runner
// serializes units of work the way one committing transaction at a time
// would; the idempotency map enforces key uniqueness the way the primary key
// does.

type serialTxRunner struct {
	mu sync.Mutex
}

func (r *serialTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

type memState struct {
	mu          sync.Mutex
	accounts    map[string]store.Account
	byOwner     map[string]string
	transfers   map[string]store.Transfer
	entries     []store.LedgerEntryInput
	idempotency map[string]store.IdempotencyRecord
}

func newMemState() *memState {
	return &memState{
		accounts:    make(map[string]store.Account),
		byOwner:     make(map[string]string),
		transfers:   make(map[string]store.Transfer),
		idempotency: make(map[string]store.IdempotencyRecord),
	}
}

func (m *memState) addAccount(id, ownerID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = store.Account{ID: id, OwnerID: ownerID, Balance: balance, CreatedAt: time.Now()}
	m.byOwner[ownerID] = id
}

func (m *memState) balance(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

type memAccountStore struct {
	state *memState
}

func (s memAccountStore) Create(ctx context.Context, id, ownerID string, balance int64) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.byOwner[ownerID]; exists {
		return store.ErrOwnerExists
	}
	s.state.accounts[id] = store.Account{ID: id, OwnerID: ownerID, Balance: balance, CreatedAt: time.Now()}
	s.state.byOwner[ownerID] = id
	return nil
}

func (s memAccountStore) GetByOwner(ctx context.Context, ownerID string) (store.Account, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	id, exists := s.state.byOwner[ownerID]
	if !exists {
		return store.Account{}, store.ErrAccountNotFound
	}
	return s.state.accounts[id], nil
}

func (s memAccountStore) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	account, exists := s.state.accounts[accountID]
	if !exists {
		return store.Account{}, store.ErrAccountNotFound
	}
	return account, nil
}

func (s memAccountStore) UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	account := s.state.accounts[accountID]
	account.Balance = balance
	s.state.accounts[accountID] = account
	return nil
}

type memTransferStore struct {
	state *memState
}

func (s memTransferStore) Create(ctx context.Context, tx store.Execer, input store.TransferInput) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.transfers[input.ID] = store.Transfer{
		ID:            input.ID,
		FromAccountID: input.FromAccountID,
		ToAccountID:   input.ToAccountID,
		Amount:        input.Amount,
		Status:        input.Status,
		Reference:     input.Reference,
		Description:   input.Description,
		CreatedAt:     time.Now(),
	}
	return nil
}

func (s memTransferStore) UpdateStatus(ctx context.Context, tx store.Execer, transferID, status string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	row := s.state.transfers[transferID]
	row.Status = status
	s.state.transfers[transferID] = row
	return nil
}

func (s memTransferStore) GetByID(ctx context.Context, transferID string) (store.Transfer, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	row, exists := s.state.transfers[transferID]
	if !exists {
		return store.Transfer{}, store.ErrTransferNotFound
	}
	return row, nil
}

func (s memTransferStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.Transfer, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	accountID := s.state.byOwner[ownerID]
	var rows []store.Transfer
	for _, row := range s.state.transfers {
		if (row.FromAccountID != nil && *row.FromAccountID == accountID) ||
			(row.ToAccountID != nil && *row.ToAccountID == accountID) {
			rows = append(rows, row)
		}
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

type memLedgerStore struct {
	state *memState
}

func (s memLedgerStore) InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.entries = append(s.state.entries, entries...)
	return nil
}

func (s memLedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	var sum int64
	for _, entry := range s.state.entries {
		if entry.AccountID == accountID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

type memIdempotencyStore struct {
	state *memState
}

func (s memIdempotencyStore) Get(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	record, found := s.state.idempotency[key]
	return record, found, nil
}

func (s memIdempotencyStore) CreatePending(ctx context.Context, key string, requestSnapshot []byte) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, exists := s.state.idempotency[key]; exists {
		return store.ErrDuplicateKey
	}
	s.state.idempotency[key] = store.IdempotencyRecord{
		Key:             key,
		Status:          store.IdempotencyStatusPending,
		RequestSnapshot: requestSnapshot,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	return nil
}

func (s memIdempotencyStore) DeleteFailed(ctx context.Context, key string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if record, exists := s.state.idempotency[key]; exists && record.Status == store.IdempotencyStatusFailed {
		delete(s.state.idempotency, key)
	}
	return nil
}

func (s memIdempotencyStore) MarkCompleted(ctx context.Context, key, transferID string, responseSnapshot []byte) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	record, exists := s.state.idempotency[key]
	if !exists || record.Status != store.IdempotencyStatusPending {
		return store.ErrRecordMissing
	}
	record.Status = store.IdempotencyStatusCompleted
	record.TransferID = &transferID
	record.ResponseSnapshot = responseSnapshot
	record.UpdatedAt = time.Now()
	s.state.idempotency[key] = record
	return nil
}

func (s memIdempotencyStore) MarkFailed(ctx context.Context, key, errorMessage string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	record, exists := s.state.idempotency[key]
	if !exists || record.Status != store.IdempotencyStatusPending {
		return store.ErrRecordMissing
	}
	record.Status = store.IdempotencyStatusFailed
	record.ErrorMessage = &errorMessage
	record.UpdatedAt = time.Now()
	s.state.idempotency[key] = record
	return nil
}

func newMemService(state *memState) *TransferService {
	return NewTransferService(
		&serialTxRunner{},
		memAccountStore{state: state},
		memTransferStore{state: state},
		memLedgerStore{state: state},
		NewIdempotencyLedger(memIdempotencyStore{state: state}),
		testLogger(),
	)
}
