package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Specific failures wrap one of these with %w.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var (
	ErrDuplicateEmail = fmt.Errorf("%w: email already registered", ErrConflict)
	// ErrAuthFailure does not say whether the email, password or role was wrong.
	ErrAuthFailure = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrEmptyCart   = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrForbidden   = fmt.Errorf("%w: insufficient role", ErrUnauthorized)
)

// OutOfStockError is returned by cart edits that would exceed available stock
type OutOfStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product %d requested=%d available=%d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrConflict
}

// InsufficientStockError aborts a checkout when a line exceeds stock at transaction time
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %d requested=%d available=%d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrConflict
}

// Validationf builds a validation error with a formatted message
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
