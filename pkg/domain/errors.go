package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers branch on the kind with errors.Is or the
// predicate helpers; contextual detail travels in the wrapping message.
var (
	// ErrNotFound indicates a referenced entity does not exist in the caller's organization.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation was attempted against a status that does not allow it.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientBalance indicates a consumption exceeded the remaining balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateIdentifier indicates a human-assigned identifier collides with an existing one.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrMissingPriceData indicates no quotation was available to cost an operation.
	ErrMissingPriceData = errors.New("missing price data")
	// ErrValidation indicates structurally invalid input.
	ErrValidation = errors.New("validation failed")
)

// WrapNotFound builds a not-found error naming the entity and identifier.
func WrapNotFound(entity EntityType, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// WrapInvalidState builds an invalid-state error describing the rejected transition.
func WrapInvalidState(entity EntityType, id string, detail string) error {
	return fmt.Errorf("%s %q %s: %w", entity, id, detail, ErrInvalidState)
}

// WrapInsufficientBalance builds an insufficient-balance error with the offending quantities.
func WrapInsufficientBalance(entity EntityType, id string, detail string) error {
	return fmt.Errorf("%s %q %s: %w", entity, id, detail, ErrInsufficientBalance)
}

// WrapDuplicateIdentifier builds a duplicate-identifier error for a colliding value.
func WrapDuplicateIdentifier(entity EntityType, identifier string) error {
	return fmt.Errorf("%s identifier %q: %w", entity, identifier, ErrDuplicateIdentifier)
}

// WrapMissingPriceData builds a missing-price error for a metal/organization pair.
func WrapMissingPriceData(metal MetalType, detail string) error {
	return fmt.Errorf("no %s quotation %s: %w", metal, detail, ErrMissingPriceData)
}

// WrapValidation builds a validation error with the failing condition.
func WrapValidation(detail string) error {
	return fmt.Errorf("%s: %w", detail, ErrValidation)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidState reports whether err is an invalid-state error.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsInsufficientBalance reports whether err is an insufficient-balance error.
func IsInsufficientBalance(err error) bool { return errors.Is(err, ErrInsufficientBalance) }

// IsDuplicateIdentifier reports whether err is a duplicate-identifier error.
func IsDuplicateIdentifier(err error) bool { return errors.Is(err, ErrDuplicateIdentifier) }

// IsMissingPriceData reports whether err is a missing-price error.
func IsMissingPriceData(err error) bool { return errors.Is(err, ErrMissingPriceData) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
