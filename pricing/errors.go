/*
errors.go - Error taxonomy for the pricing engine

PURPOSE:
  All engine errors in one place. Every error is returned at the point of
  detection: there is no partial computation, no fallback, and no clamping
  of out-of-range values.

ERROR CATEGORIES:
  1. InvalidAmount       - non-finite, unparseable or negative numeric input
  2. InvalidPolicy       - negative percentage or fixed component in a fee policy
  3. UnsupportedCurrency - anything other than USD
  4. EmptyPassengerList  - a booking priced with zero passengers

USAGE:
  Structured errors unwrap to the sentinels:

    if errors.Is(err, pricing.ErrInvalidPolicy) {
        var pe *pricing.PolicyError
        errors.As(err, &pe) // pe.Field tells which component was negative
    }

SEE ALSO:
  - booking/orchestrator.go: Returns ErrEmptyPassengerList
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package pricing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-finite, unparseable or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPolicy is returned when a fee policy has a negative component
	// or is not one of the known variants.
	ErrInvalidPolicy = errors.New("invalid fee policy")

	// ErrUnsupportedCurrency is returned for any currency other than USD.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrEmptyPassengerList is returned when a booking has no passengers.
	ErrEmptyPassengerList = errors.New("booking must have at least one passenger")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmountError names the offending input.
type AmountError struct {
	Field  string
	Value  string
	Reason string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount: %s %q is %s", e.Field, e.Value, e.Reason)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// PolicyError names the fee policy component that failed validation.
type PolicyError struct {
	Kind   FeeKind
	Field  string
	Value  string
	Reason string // empty means negative
}

func (e *PolicyError) Error() string {
	switch {
	case e.Field == "" && e.Value == "":
		return fmt.Sprintf("invalid fee policy: %s", e.Kind)
	case e.Field == "":
		return fmt.Sprintf("invalid fee policy: %s %s", e.Kind, e.Value)
	case e.Reason != "":
		return fmt.Sprintf("invalid fee policy: %s.%s %s is %s", e.Kind, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid fee policy: %s.%s must be >= 0, got %s", e.Kind, e.Field, e.Value)
}

func (e *PolicyError) Unwrap() error { return ErrInvalidPolicy }

// CurrencyError carries the rejected code.
type CurrencyError struct {
	Code string
}

func (e *CurrencyError) Error() string {
	return fmt.Sprintf("unsupported currency %q (only %s is settled)", e.Code, USD)
}

func (e *CurrencyError) Unwrap() error { return ErrUnsupportedCurrency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrUnsupportedCurrency) ||
		errors.Is(err, ErrEmptyPassengerList)
}
