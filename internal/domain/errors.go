package domain

import "errors"

var (
	// ErrNotFound covers absent identities, sessions and transactions.
	// Callers never learn whether the record exists under another owner.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is a missing, expired or revoked session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is a malformed or incomplete request body.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredential is a bad OTP or password.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrConflict covers an already-completed profile or a taken login.
	ErrConflict = errors.New("conflict")

	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrGateway is a failed payment-provider call or an invalid webhook
	// signature. Never retried inside the core.
	ErrGateway = errors.New("payment gateway error")

	// ErrAlreadyFinalized marks reconciliation against a non-pending
	// transaction. Treated as success at the webhook boundary so duplicate
	// deliveries are harmless.
	ErrAlreadyFinalized = errors.New("transaction already finalized")
)
