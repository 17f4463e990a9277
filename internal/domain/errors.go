package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	// ErrInvalidCredentials covers both "no such account" and "wrong password".
	// The two cases are deliberately indistinguishable to resist account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Account-state errors, returned only after the password check has passed.
	ErrAccountNotVerified = errors.New("account not verified")
	ErrAccountInactive    = errors.New("account inactive")
	ErrAccountDeleted     = errors.New("account deleted")
	ErrAlreadyRegistered  = errors.New("already registered")

	ErrInvalidPasscode = errors.New("invalid passcode")
	ErrExpiredPasscode = errors.New("passcode expired")

	// ErrInvalidToken covers malformed, tampered and expired credentials alike.
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")

	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
