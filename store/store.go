/*
store.go - Persistence interface for quotes, refunds and the rate card

PURPOSE:
  Defines the boundary between the fare engine and whatever keeps its
  outputs. The engine never reads or writes storage itself: callers hand it
  values and persist what it returns. This package gives those callers a
  single interface with SQLite and in-memory implementations.

RECORDS:
  QuoteRecord:   A priced booking. The breakdown is stored verbatim and read
                 back unchanged; refunds use the stored figures, never a
                 recomputation.
  RefundRecord:  The refund decision for a booking. At most one per booking.
  RateCardRecord: The current rate card document (JSON) plus a version.

APPEND-ONLY CONTRACT:
  - SaveQuote writes a booking's quote once. A second write for the same
    booking ID is ErrDuplicateBooking.
  - AppendRefund is the only refund write. There is no update or delete.
  - A booking is refunded once. A second refund for the same booking is
    ErrBookingAlreadyRefunded whatever idempotency key it carries, so the
    refunds of a booking can never add up to more than was paid.

IDEMPOTENCY:
  Every refund carries an idempotency key. Reusing a key is rejected with
  ErrDuplicateIdempotencyKey, so a retried HTTP call cannot refund twice.

IMPLEMENTATIONS:
  - store/memory.go:        In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite with WAL

SEE ALSO:
  - api/handlers.go: Only caller
  - factory/ratecard.go: Format of the rate card document
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrDuplicateBooking        = errors.New("quote already stored for booking")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrBookingAlreadyRefunded  = errors.New("booking already refunded")
)

// =============================================================================
// RECORDS
// =============================================================================

// QuoteRecord is a priced booking as it was returned to the customer.
type QuoteRecord struct {
	ID         string
	BookingID  string
	Gateway    string
	AgeRules   string
	Passengers []string // tier names, in passenger order
	Breakdown  pricing.PriceBreakdown
	CreatedAt  time.Time
}

// RefundRecord is one refund decision. Never modified after append.
type RefundRecord struct {
	ID                string
	BookingID         string
	IdempotencyKey    string
	IsAirlineCancel   bool
	HoursSincePayment float64
	Result            refund.Result
	CreatedAt         time.Time
}

type RateCardRecord struct {
	Document  string
	Version   int
	UpdatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// SaveQuote persists a quote. Returns ErrDuplicateBooking if the booking
	// already has one.
	SaveQuote(ctx context.Context, q QuoteRecord) error

	// GetQuote returns ErrNotFound for an unknown booking.
	GetQuote(ctx context.Context, bookingID string) (*QuoteRecord, error)

	// AppendRefund persists a refund. Returns ErrDuplicateIdempotencyKey if
	// the key was used before, ErrBookingAlreadyRefunded if the booking
	// already has a refund.
	AppendRefund(ctx context.Context, r RefundRecord) error

	// ListRefunds returns a booking's refunds ordered by creation (zero or one).
	ListRefunds(ctx context.Context, bookingID string) ([]RefundRecord, error)

	// SaveRateCard replaces the current rate card and bumps its version.
	SaveRateCard(ctx context.Context, document string) (*RateCardRecord, error)

	// LoadRateCard returns ErrNotFound when no rate card was ever saved.
	LoadRateCard(ctx context.Context) (*RateCardRecord, error)
}
