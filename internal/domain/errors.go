package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Callers branch with errors.Is instead of string matching.
var (
	ErrNotFound          = errors.New("not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrNotAMember        = errors.New("not a member of group")
	ErrNotAuthorized     = errors.New("not authorized")

	// ErrCrypto covers key decoding and authentication-tag failures. The raw
	// cause is never exposed to callers.
	ErrCrypto = errors.New("message unreadable")
)

// StoreError marks an infrastructure failure (store unavailable, timeout) as
// distinct from the domain errors above.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
