package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrOwnerExists     = errors.New("owner already has an account")
	ErrAccountNotFound = errors.New("account not found")
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, id, ownerID string, balance int64) error {
	query := `
		INSERT INTO accounts (id, owner_id, balance)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query, id, ownerID, balance)
	if isUniqueViolation(err) {
		return ErrOwnerExists
	}
	return err
}

func (s *AccountStore) GetByOwner(ctx context.Context, ownerID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, balance, created_at
		FROM accounts
		WHERE owner_id = $1
	`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// GetForUpdate takes a row lock; call only inside a transaction, in ascending
// account id order when locking more than one account.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, balance, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}
