package services

import "errors"

// Kind classifies a domain error so the boundary can map it to a status
// exactly once. The set is closed; anything unexpected is KindInternal.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidAmount          = &Error{Kind: KindValidation, Message: "amount must be greater than zero"}
	ErrSameOwner              = &Error{Kind: KindValidation, Message: "cannot transfer to the same owner"}
	ErrMissingIdempotencyKey  = &Error{Kind: KindValidation, Message: "idempotency key is required"}
	ErrNegativeInitialBalance = &Error{Kind: KindValidation, Message: "initial balance cannot be negative"}
	ErrSourceNotFound         = &Error{Kind: KindNotFound, Message: "source account not found"}
	ErrDestinationNotFound    = &Error{Kind: KindNotFound, Message: "destination account not found"}
	ErrAccountNotFound        = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrTransferNotFound       = &Error{Kind: KindNotFound, Message: "transfer not found"}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrKeyInFlight            = &Error{Kind: KindConflict, Message: "request is already being processed"}
	ErrOwnerExists            = &Error{Kind: KindConflict, Message: "owner already has an account"}
)

// KindOf returns the kind carried by err, or KindInternal for errors from
// outside the closed set.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// Expected reports whether err is a normal business outcome rather than a
// system fault. Expected outcomes are never logged as failures.
func Expected(err error) bool {
	switch KindOf(err) {
	case KindInternal:
		return false
	default:
		return true
	}
}

func internalError(message string) *Error {
	return &Error{Kind: KindInternal, Message: message}
}
