/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response bodies
  - *DTO: Nested response parts

TYPES:
  Quotes:    QuoteRequest, PassengerDTO, QuoteResponse
  Refunds:   RefundRequest, RefundResponse
  Rate card: RateCardResponse (wraps factory.RateCardJSON)
  Scenarios: ScenarioDTO, LoadScenarioRequest, LoadScenarioResponse

VALIDATION:
  Shape checks use validator struct tags and run before any engine call.
  Money and policy rules are left to the engine so every caller gets the
  same error for the same input.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/ratecard.go: RateCardJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fare-engine/factory"
	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
)

// =============================================================================
// QUOTES
// =============================================================================

// PassengerDTO is either a pre-classified tier or a date of birth. A date of
// birth wins when both are given.
type PassengerDTO struct {
	Tier        string `json:"tier,omitempty" validate:"required_without=DateOfBirth"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// QuoteRequest prices a booking. With a booking ID the quote is stored and
// becomes the basis for later refunds.
type QuoteRequest struct {
	BookingID        string           `json:"booking_id,omitempty" validate:"omitempty,max=64"`
	BaseFarePerAdult *decimal.Decimal `json:"base_fare_per_adult" validate:"required"`
	Currency         string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Passengers       []PassengerDTO   `json:"passengers" validate:"dive"`
	Gateway          string           `json:"gateway" validate:"required"`
	GatewayFeeBase   string           `json:"gateway_fee_base,omitempty" validate:"omitempty,oneof=pre_fee_total base_only"`
	ReferenceDate    string           `json:"reference_date,omitempty"` // YYYY-MM-DD, defaults to today
}

type QuoteResponse struct {
	BookingID       string                 `json:"booking_id,omitempty"`
	Gateway         string                 `json:"gateway"`
	AgeRules        string                 `json:"age_rules"`
	Passengers      []string               `json:"passengers"`
	Breakdown       pricing.PriceBreakdown `json:"breakdown"`
	RateCardVersion int                    `json:"rate_card_version"`
	Persisted       bool                   `json:"persisted"`
	CreatedAt       string                 `json:"created_at,omitempty"`
}

// =============================================================================
// REFUNDS
// =============================================================================

// RefundRequest computes a refund. Totals come from the stored quote when a
// booking ID is given and total_paid is omitted. Elapsed time comes from
// hours_since_payment, then paid_at, then the stored quote's creation time.
type RefundRequest struct {
	BookingID         string           `json:"booking_id,omitempty" validate:"omitempty,max=64"`
	TotalPaid         *decimal.Decimal `json:"total_paid,omitempty"`
	GatewayFee        *decimal.Decimal `json:"gateway_fee,omitempty"`
	Currency          string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	HoursSincePayment *float64         `json:"hours_since_payment,omitempty"`
	PaidAt            *time.Time       `json:"paid_at,omitempty"`
	IsAirlineCancel   bool             `json:"is_airline_cancel"`
	IdempotencyKey    string           `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

type RefundResponse struct {
	ID                string         `json:"id,omitempty"`
	BookingID         string         `json:"booking_id,omitempty"`
	IdempotencyKey    string         `json:"idempotency_key,omitempty"`
	IsAirlineCancel   bool           `json:"is_airline_cancel"`
	HoursSincePayment float64        `json:"hours_since_payment"`
	TotalPaid         pricing.Amount `json:"total_paid"`
	Result            refund.Result  `json:"result"`
	Persisted         bool           `json:"persisted"`
	CreatedAt         string         `json:"created_at,omitempty"`
}

// =============================================================================
// RATE CARD
// =============================================================================

type RateCardResponse struct {
	Version   int                  `json:"version"` // 0 means built-in defaults
	UpdatedAt string               `json:"updated_at,omitempty"`
	RateCard  factory.RateCardJSON `json:"rate_card"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type LoadScenarioResponse struct {
	Scenario string           `json:"scenario"`
	Quotes   []QuoteResponse  `json:"quotes"`
	Refunds  []RefundResponse `json:"refunds"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	RateCardVersion int    `json:"rate_card_version"`
}
