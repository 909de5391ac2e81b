package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrNotFound             = errors.New("not found")
	ErrStorageConflict      = errors.New("storage conflict")
	ErrLockTimeout          = errors.New("timed out waiting for portfolio lock")
	ErrTradeDeleteForbidden = errors.New("trade deletion is disabled")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InsufficientFundsError reports a buy that exceeds the available cash
type InsufficientFundsError struct {
	Currency  string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s available, %s required",
		FormatMoney(e.Available, e.Currency), FormatMoney(e.Required, e.Currency))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// InsufficientPositionError reports a sell that exceeds the held quantity
type InsufficientPositionError struct {
	Symbol    string
	AssetType AssetType
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position in %s (%s): %s available, %s required",
		e.Symbol, e.AssetType, e.Available.String(), e.Required.String())
}

func (e *InsufficientPositionError) Is(target error) bool {
	return target == ErrInsufficientPosition
}

// NotFoundError wraps ErrNotFound with the missing entity
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// RequirePositive returns a ValidationError unless v > 0
func RequirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return NewValidationError(field, "must be greater than zero")
	}
	return nil
}

// RequireNonEmpty returns a ValidationError when v is empty
func RequireNonEmpty(field, v string) error {
	if v == "" {
		return NewValidationError(field, "is required")
	}
	return nil
}
