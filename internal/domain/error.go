package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. Specific errors below wrap one of these so callers can
// match either the category or the exact failure.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("entity not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrRateLimited  = errors.New("rate limited")
	ErrPersistence  = errors.New("persistence error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

var (
	ErrInvalidArgument   = fmt.Errorf("%w: invalid argument", ErrValidation)
	ErrInvalidLevel      = fmt.Errorf("%w: invalid membership level", ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity out of range", ErrValidation)
	ErrInvalidGrant      = fmt.Errorf("%w: invalid grant", ErrValidation)
	ErrInvalidExpiry     = fmt.Errorf("%w: invalid expiry", ErrValidation)
	ErrDowngrade         = fmt.Errorf("%w: code grants a lower tier than the active membership", ErrValidation)
	ErrTrialNotSupported = fmt.Errorf("%w: product has no trial", ErrValidation)
	ErrTrialExhausted    = fmt.Errorf("%w: trial exhausted", ErrValidation)
	ErrNothingToGrant    = fmt.Errorf("%w: membership already lifetime", ErrValidation)

	ErrCodeNotFound    = fmt.Errorf("%w: activation code not found", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: product not found", ErrNotFound)
	ErrBatchNotFound   = fmt.Errorf("%w: batch not found", ErrNotFound)

	ErrCodeAlreadyUsed = fmt.Errorf("%w: activation code already used", ErrConflict)
	ErrBatchExhausted  = fmt.Errorf("%w: could not generate enough unique codes", ErrConflict)
	ErrAlreadyExists   = fmt.Errorf("%w: entity already exists", ErrConflict)

	ErrCodeExpired = fmt.Errorf("%w: activation code expired", ErrExpired)

	ErrOperationFailed    = fmt.Errorf("%w: operation failed", ErrPersistence)
	ErrReadDatabaseRow    = fmt.Errorf("%w: failed to read row", ErrPersistence)
	ErrInvalidExecContext = fmt.Errorf("%w: invalid execution context", ErrPersistence)

	ErrMissingToken = fmt.Errorf("%w: missing token", ErrUnauthorized)
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrAdminOnly    = fmt.Errorf("%w: admin role required", ErrForbidden)
)

// RateLimitedError is returned when a caller exceeded its attempt budget.
type RateLimitedError struct {
	Action       string
	BlockedUntil time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many %s attempts, blocked until %s", e.Action, e.BlockedUntil.UTC().Format(time.RFC3339))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }
