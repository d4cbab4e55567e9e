package domain

import "errors"

// Error taxonomy for the money-movement core. Callers branch on these with
// errors.Is; the HTTP layer maps them to status codes in one place.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAccountNotActive    = errors.New("account not active")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrLimitExceeded       = errors.New("daily limit exceeded")
	ErrDestinationNotFound = errors.New("destination account not found")
	ErrQRNotFound          = errors.New("qr payment request not found")
	ErrQRInactive          = errors.New("qr payment request inactive")
	ErrQRExpired           = errors.New("qr payment request expired")
	ErrAmountMismatch      = errors.New("amount does not match qr payment request")
	ErrDuplicateReference  = errors.New("duplicate reference number")
	ErrIdempotencyConflict = errors.New("reference number reused with different payload")
	ErrInvalidTransition   = errors.New("invalid transaction state transition")
	ErrStorageFailure      = errors.New("storage failure")
)
