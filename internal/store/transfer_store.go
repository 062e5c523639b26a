package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrTransferNotFound = errors.New("transfer not found")

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

type TransferStore struct {
	db DB
}

type Transfer struct {
	ID            string    `db:"id"`
	FromAccountID *string   `db:"from_account_id"`
	ToAccountID   *string   `db:"to_account_id"`
	Amount        int64     `db:"amount"`
	Status        string    `db:"status"`
	Reference     string    `db:"reference"`
	Description   string    `db:"description"`
	CreatedAt     time.Time `db:"created_at"`
}

type TransferInput struct {
	ID            string
	FromAccountID *string
	ToAccountID   *string
	Amount        int64
	Status        string
	Reference     string
	Description   string
}

func NewTransferStore(db DB) *TransferStore {
	return &TransferStore{db: db}
}

func (s *TransferStore) Create(ctx context.Context, tx Execer, input TransferInput) error {
	query := `
		INSERT INTO transfers (id, from_account_id, to_account_id, amount, status, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.FromAccountID, input.ToAccountID, input.Amount,
		input.Status, input.Reference, input.Description,
	)
	return err
}

func (s *TransferStore) UpdateStatus(ctx context.Context, tx Execer, transferID, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE transfers SET status = $1 WHERE id = $2`, status, transferID)
	return err
}

func (s *TransferStore) GetByID(ctx context.Context, transferID string) (Transfer, error) {
	var row Transfer
	err := s.db.GetContext(ctx, &row, `
		SELECT id, from_account_id, to_account_id, amount, status, reference, description, created_at
		FROM transfers
		WHERE id = $1
	`, transferID)
	if errors.Is(err, sql.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	if err != nil {
		return Transfer{}, err
	}
	return row, nil
}

// ListByOwner returns transfers touching any of the owner's accounts, newest
// first.
func (s *TransferStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Transfer, error) {
	var rows []Transfer
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.from_account_id, t.to_account_id, t.amount, t.status, t.reference, t.description, t.created_at
		FROM transfers t
		WHERE t.from_account_id IN (SELECT id FROM accounts WHERE owner_id = $1)
		   OR t.to_account_id IN (SELECT id FROM accounts WHERE owner_id = $1)
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
