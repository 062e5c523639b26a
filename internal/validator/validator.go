package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidOwnerID        = errors.New("invalid owner id")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
)

var (
	ownerIDRegex        = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)
	idempotencyKeyRegex = regexp.MustCompile(`^[\x21-\x7E]{1,128}$`)
)

func ValidateOwnerID(ownerID string) error {
	if !ownerIDRegex.MatchString(ownerID) {
		return ErrInvalidOwnerID
	}
	return nil
}

// ValidateIdempotencyKey accepts any printable opaque token up to 128 bytes.
// The token is never parsed, only compared.
func ValidateIdempotencyKey(key string) error {
	if !idempotencyKeyRegex.MatchString(key) {
		return ErrInvalidIdempotencyKey
	}
	return nil
}
