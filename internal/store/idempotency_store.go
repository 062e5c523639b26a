package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	IdempotencyStatusPending   = "pending"
	IdempotencyStatusCompleted = "completed"
	IdempotencyStatusFailed    = "failed"
)

var (
	ErrDuplicateKey  = errors.New("idempotency key already reserved")
	ErrRecordMissing = errors.New("idempotency record not found")
)

type IdempotencyStore struct {
	db DB
}

type IdempotencyRecord struct {
	Key              string    `db:"key"`
	Status           string    `db:"status"`
	TransferID       *string   `db:"transfer_id"`
	RequestSnapshot  []byte    `db:"request_snapshot"`
	ResponseSnapshot []byte    `db:"response_snapshot"`
	ErrorMessage     *string   `db:"error_message"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func NewIdempotencyStore(db DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var row IdempotencyRecord
	err := s.db.GetContext(ctx, &row, `
		SELECT key, status, transfer_id, request_snapshot, response_snapshot, error_message, created_at, updated_at
		FROM idempotency_records
		WHERE key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return row, true, nil
}

// CreatePending reserves the key. The primary key on the key column is the
// admission mutex: of N concurrent inserts exactly one succeeds and the rest
// get ErrDuplicateKey.
func (s *IdempotencyStore) CreatePending(ctx context.Context, key string, requestSnapshot []byte) error {
	query := `
		INSERT INTO idempotency_records (key, status, request_snapshot)
		VALUES ($1, $2, $3)
	`
	// string, not []byte: pq would send bytea, which jsonb rejects
	_, err := s.db.ExecContext(ctx, query, key, IdempotencyStatusPending, string(requestSnapshot))
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

// DeleteFailed clears a prior failed attempt so the key can be reserved
// again. Rows in any other status are left alone.
func (s *IdempotencyStore) DeleteFailed(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_records
		WHERE key = $1 AND status = $2
	`, key, IdempotencyStatusFailed)
	return err
}

func (s *IdempotencyStore) MarkCompleted(ctx context.Context, key, transferID string, responseSnapshot []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = $1, transfer_id = $2, response_snapshot = $3, updated_at = NOW()
		WHERE key = $4 AND status = $5
	`, IdempotencyStatusCompleted, transferID, string(responseSnapshot), key, IdempotencyStatusPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRecordMissing
	}
	return nil
}

func (s *IdempotencyStore) MarkFailed(ctx context.Context, key, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE key = $3 AND status = $4
	`, IdempotencyStatusFailed, errorMessage, key, IdempotencyStatusPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRecordMissing
	}
	return nil
}
