package services

import (
	"context"
	"errors"
	"fmt"

	"transfers/internal/store"
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (store.IdempotencyRecord, bool, error)
	CreatePending(ctx context.Context, key string, requestSnapshot []byte) error
	DeleteFailed(ctx context.Context, key string) error
	MarkCompleted(ctx context.Context, key, transferID string, responseSnapshot []byte) error
	MarkFailed(ctx context.Context, key, errorMessage string) error
}

// IdempotencyLedger records one outcome per client-supplied key. The unique
// key column doubles as the admission mutex: reserving a key that is already
// pending fails immediately, before any balance is touched.
//
// Key lifecycle: absent -> pending -> completed | failed. Completed is
// terminal and replay-only. Failed is retryable; the next attempt discards
// the stored error and starts over.
type IdempotencyLedger struct {
	store IdempotencyStore
}

func NewIdempotencyLedger(store IdempotencyStore) *IdempotencyLedger {
	return &IdempotencyLedger{store: store}
}

// CheckKey looks the key up without side effects.
func (l *IdempotencyLedger) CheckKey(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	record, found, err := l.store.Get(ctx, key)
	if err != nil {
		return store.IdempotencyRecord{}, false, internalError(fmt.Sprintf("idempotency lookup failed: %v", err))
	}
	return record, found, nil
}

// BeginAttempt reserves the key by inserting a pending record. A prior failed
// record is removed first. Losing the insert race surfaces as ErrKeyInFlight.
func (l *IdempotencyLedger) BeginAttempt(ctx context.Context, key string, requestSnapshot []byte) error {
	if err := l.store.DeleteFailed(ctx, key); err != nil {
		return internalError(fmt.Sprintf("failed to clear prior attempt: %v", err))
	}
	err := l.store.CreatePending(ctx, key, requestSnapshot)
	if errors.Is(err, store.ErrDuplicateKey) {
		return ErrKeyInFlight
	}
	if err != nil {
		return internalError(fmt.Sprintf("failed to reserve idempotency key: %v", err))
	}
	return nil
}

// CompleteAttempt stores the response verbatim for future replay.
func (l *IdempotencyLedger) CompleteAttempt(ctx context.Context, key, transferID string, responseSnapshot []byte) error {
	if err := l.store.MarkCompleted(ctx, key, transferID, responseSnapshot); err != nil {
		return internalError(fmt.Sprintf("failed to record completed attempt: %v", err))
	}
	return nil
}

// FailAttempt records the failure message against the pending record.
func (l *IdempotencyLedger) FailAttempt(ctx context.Context, key, errorMessage string) error {
	if err := l.store.MarkFailed(ctx, key, errorMessage); err != nil {
		return internalError(fmt.Sprintf("failed to record failed attempt: %v", err))
	}
	return nil
}
