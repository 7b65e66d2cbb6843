/*
scenarios.go - Demo bookings for testing and demonstrations

PURPOSE:
  Populates the store with priced bookings and refunds that exercise each
  pricing path and refund rule under the current rate card.

AVAILABLE SCENARIOS:
  family-stripe:        2 adults + 1 infant on Stripe, no refund
  airline-cancellation: PayPal booking cancelled by the airline (rule A)
  early-cancellation:   Customer cancels within the window (rule B)
  late-cancellation:    Bank transfer, customer cancels after 3 days (rule C)

HOW SCENARIOS WORK:
  1. Price each booking through the same path as POST /api/quotes
  2. Store it under a fresh booking ID (demo-<scenario>-<suffix>)
  3. Run any refund through the same path as POST /api/refunds

  The store is append-only, so scenarios never reset anything. Loading one
  twice creates a second set of bookings.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "late-cancellation"}

SEE ALSO:
  - handlers.go: priceQuote, computeRefund
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "family-stripe",
		Name:        "Family on Stripe",
		Description: "Two adults and an infant at 199.99 paid by card",
		Category:    "pricing",
	},
	{
		ID:          "airline-cancellation",
		Name:        "Airline Cancellation",
		Description: "Full refund plus compensation; gateway fee retained",
		Category:    "refund",
	},
	{
		ID:          "early-cancellation",
		Name:        "Early Cancellation",
		Description: "Customer cancels 6 hours after paying",
		Category:    "refund",
	},
	{
		ID:          "late-cancellation",
		Name:        "Late Cancellation",
		Description: "Bank transfer booking cancelled after 72 hours",
		Category:    "refund",
	},
}

type scenarioRefund struct {
	hours   float64
	airline bool
}

type scenarioBooking struct {
	quote  QuoteRequest
	refund *scenarioRefund
}

func scenarioBookings(id string) ([]scenarioBooking, bool) {
	fare := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	adults := func(n int, extra ...PassengerDTO) []PassengerDTO {
		ps := make([]PassengerDTO, 0, n+len(extra))
		for i := 0; i < n; i++ {
			ps = append(ps, PassengerDTO{Tier: "adult"})
		}
		return append(ps, extra...)
	}

	switch id {
	case "family-stripe":
		return []scenarioBooking{{
			quote: QuoteRequest{BaseFarePerAdult: fare("199.99"), Passengers: adults(2, PassengerDTO{Tier: "infant"}), Gateway: "stripe"},
		}}, true
	case "airline-cancellation":
		return []scenarioBooking{{
			quote:  QuoteRequest{BaseFarePerAdult: fare("450.00"), Passengers: adults(1), Gateway: "paypal"},
			refund: &scenarioRefund{hours: 100, airline: true},
		}}, true
	case "early-cancellation":
		return []scenarioBooking{{
			quote:  QuoteRequest{BaseFarePerAdult: fare("320.00"), Passengers: adults(2), Gateway: "stripe"},
			refund: &scenarioRefund{hours: 6},
		}}, true
	case "late-cancellation":
		return []scenarioBooking{{
			quote:  QuoteRequest{BaseFarePerAdult: fare("120.00"), Passengers: adults(1, PassengerDTO{DateOfBirth: "2018-05-01"}), Gateway: "bank_transfer"},
			refund: &scenarioRefund{hours: 72},
		}}, true
	default:
		return nil, false
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario prices and stores a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	bookings, ok := scenarioBookings(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	resp, err := h.loadScenario(r.Context(), req.ScenarioID, bookings)
	if err != nil {
		h.writeEngineError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadScenario(ctx context.Context, id string, bookings []scenarioBooking) (LoadScenarioResponse, error) {
	snap := h.snapshot()
	resp := LoadScenarioResponse{Scenario: id, Quotes: []QuoteResponse{}, Refunds: []RefundResponse{}}

	for _, b := range bookings {
		b.quote.BookingID = fmt.Sprintf("demo-%s-%s", id, uuid.NewString()[:8])

		quote, err := h.priceQuote(snap, b.quote)
		if err != nil {
			return resp, err
		}
		if err := h.persistQuote(ctx, &quote); err != nil {
			return resp, err
		}
		resp.Quotes = append(resp.Quotes, quote)

		if b.refund == nil {
			continue
		}
		hours := b.refund.hours
		refundReq := RefundRequest{
			BookingID:         quote.BookingID,
			HoursSincePayment: &hours,
			IsAirlineCancel:   b.refund.airline,
		}
		rr, err := h.computeRefund(ctx, snap, refundReq)
		if err != nil {
			return resp, err
		}
		if err := h.persistRefund(ctx, refundReq, &rr); err != nil {
			return resp, err
		}
		resp.Refunds = append(resp.Refunds, rr)
	}
	return resp, nil
}
