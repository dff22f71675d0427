package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("concurrent modification")
	ErrNotFound           = errors.New("not found")
	ErrExternalDependency = errors.New("external dependency failed")
	ErrInvariantViolation = errors.New("invariant violation")
)

var (
	ErrInvalidOrderInput      = fmt.Errorf("%w: invalid order input", ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be a non-negative finite value", ErrValidation)
	ErrInvalidOrderState      = fmt.Errorf("%w: operation not allowed in current order status", ErrValidation)
	ErrInsufficientStock      = fmt.Errorf("%w: insufficient stock for requested quantity", ErrValidation)
	ErrPriceMismatch          = fmt.Errorf("%w: product price changed since checkout", ErrValidation)
	ErrAmountMismatch         = fmt.Errorf("%w: paid amount does not match order total", ErrValidation)
	ErrSellerInactive         = fmt.Errorf("%w: seller is not active", ErrValidation)
	ErrFraudCheckFailed       = fmt.Errorf("%w: order failed fraud screening", ErrValidation)
	ErrCommissionNotComputed  = fmt.Errorf("%w: commission has not been computed for this order", ErrValidation)
	ErrIdempotencyKeyRequired = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	ErrIdempotencyConflict    = fmt.Errorf("%w: idempotency key already used with different payload", ErrConflict)
	ErrVersionConflict        = fmt.Errorf("%w: entity version changed during update", ErrConflict)
	ErrOrderNotFound          = fmt.Errorf("%w: order not found", ErrNotFound)
	ErrProductNotFound        = fmt.Errorf("%w: product not found", ErrNotFound)
	ErrSellerNotFound         = fmt.Errorf("%w: seller not found", ErrNotFound)
	ErrLedgerUnavailable      = fmt.Errorf("%w: ledger transfer failed", ErrExternalDependency)
	ErrCommissionMismatch     = fmt.Errorf("%w: commission components do not sum to order total", ErrInvariantViolation)
)
