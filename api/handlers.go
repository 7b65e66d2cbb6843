/*
handlers.go - HTTP API handlers for the fare engine

PURPOSE:
  Exposes booking pricing and refund calculation via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine
  packages. The engine never touches storage; this layer reads the stored
  breakdown for refunds and persists what the engine returns.

ENDPOINTS:
  Quotes:
    POST   /api/quotes                       Price a booking (stored with booking_id)
    GET    /api/quotes/{bookingID}           Stored breakdown

  Refunds:
    POST   /api/refunds                      Compute (and record) a refund
    GET    /api/bookings/{bookingID}/refunds Refund history

  Rate card:
    GET    /api/rate-card                    Current settings
    PUT    /api/rate-card                    Replace settings (new version)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: quotes, refunds, rate card versions
  - RateCards: JSON/YAML to engine config conversion
  - A rate card snapshot, swapped atomically on PUT or refresh

SETTINGS SNAPSHOT:
  Each request reads the snapshot once and passes the derived configs by
  value to the engine. A concurrent PUT never changes a request midway.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid amount/policy/currency, unknown gateway
  - 404: Booking quote not found
  - 400: Refund totals that disagree with the stored quote
  - 409: Duplicate idempotency key, booking ID, or an already refunded booking
  - 500: Store failures

SECURITY NOTE:
  No authentication. Deploy behind a gateway that handles it.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo bookings
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/fare-engine/booking"
	"github.com/warp/fare-engine/factory"
	"github.com/warp/fare-engine/obs"
	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
	"github.com/warp/fare-engine/store"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks request-shape problems the engine never sees.
var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     store.Store
	RateCards *factory.RateCardFactory
	Logger    zerolog.Logger
	Metrics   *obs.Metrics

	// now is swapped in tests.
	now      func() time.Time
	validate *validator.Validate

	mu              sync.RWMutex
	rateCard        rateCardSnapshot
	currentScenario string
}

type rateCardSnapshot struct {
	card      factory.RateCard
	version   int
	updatedAt time.Time
}

// NewHandler creates a handler using the built-in rate card until
// LoadRateCard is called.
func NewHandler(st store.Store, logger zerolog.Logger, metrics *obs.Metrics) *Handler {
	return &Handler{
		Store:     st,
		RateCards: factory.NewRateCardFactory(),
		Logger:    logger,
		Metrics:   metrics,
		now:       time.Now,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		rateCard:  rateCardSnapshot{card: factory.DefaultRateCard()},
	}
}

// LoadRateCard installs the stored rate card. With nothing stored, the file
// at seedPath (if any) is parsed and saved as version 1; otherwise the
// built-in defaults stay in place as version 0.
func (h *Handler) LoadRateCard(ctx context.Context, seedPath string) error {
	loaded, err := h.RefreshRateCard(ctx)
	if err != nil || loaded {
		return err
	}
	if seedPath == "" {
		h.Logger.Info().Msg("no stored rate card, using built-in defaults")
		return nil
	}

	card, err := h.RateCards.LoadFile(seedPath)
	if err != nil {
		return fmt.Errorf("seed rate card: %w", err)
	}
	_, err = h.saveRateCard(ctx, *card)
	return err
}

// RefreshRateCard re-reads the stored rate card and swaps it in when its
// version differs from the current one. Returns false if nothing is stored.
func (h *Handler) RefreshRateCard(ctx context.Context) (bool, error) {
	rec, err := h.Store.LoadRateCard(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Version == h.snapshot().version {
		return true, nil
	}

	card, err := h.RateCards.ParseRateCard(rec.Document)
	if err != nil {
		return false, fmt.Errorf("stored rate card v%d: %w", rec.Version, err)
	}
	h.setRateCard(rateCardSnapshot{card: *card, version: rec.Version, updatedAt: rec.UpdatedAt})
	h.Logger.Info().Int("version", rec.Version).Msg("rate card loaded")
	return true, nil
}

func (h *Handler) snapshot() rateCardSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateCard
}

func (h *Handler) setRateCard(s rateCardSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateCard = s
}

func (h *Handler) saveRateCard(ctx context.Context, card factory.RateCard) (rateCardSnapshot, error) {
	doc, err := card.MarshalIndent()
	if err != nil {
		return rateCardSnapshot{}, err
	}
	rec, err := h.Store.SaveRateCard(ctx, doc)
	if err != nil {
		return rateCardSnapshot{}, err
	}
	s := rateCardSnapshot{card: card, version: rec.Version, updatedAt: rec.UpdatedAt}
	h.setRateCard(s)
	h.Logger.Info().Int("version", rec.Version).Msg("rate card saved")
	return s, nil
}

// =============================================================================
// QUOTE HANDLERS
// =============================================================================

// CreateQuote prices a booking.
func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap := h.snapshot()
	gatewayLabel := gatewayLabel(snap, req.Gateway)

	resp, err := h.priceQuote(snap, req)
	if err != nil {
		h.Metrics.ObserveQuote(gatewayLabel, resultLabel(err))
		h.writeEngineError(w, r, "Failed to price booking", err)
		return
	}

	status := http.StatusOK
	if req.BookingID != "" {
		if err := h.persistQuote(r.Context(), &resp); err != nil {
			h.Metrics.ObserveQuote(gatewayLabel, resultLabel(err))
			h.writeEngineError(w, r, "Failed to store quote", err)
			return
		}
		status = http.StatusCreated
	}

	h.Metrics.ObserveQuote(gatewayLabel, obs.ResultOK)
	writeJSON(w, status, resp)
}

func (h *Handler) priceQuote(snap rateCardSnapshot, req QuoteRequest) (QuoteResponse, error) {
	currency, err := pricing.ParseCurrency(valueOr(req.Currency, string(pricing.USD)))
	if err != nil {
		return QuoteResponse{}, err
	}
	feeBase, err := pricing.ParseGatewayFeeBase(req.GatewayFeeBase)
	if err != nil {
		return QuoteResponse{}, err
	}

	ref := h.now().UTC()
	if req.ReferenceDate != "" {
		ref, err = time.Parse(booking.DateLayout, req.ReferenceDate)
		if err != nil {
			return QuoteResponse{}, fmt.Errorf("%w: reference_date %q is not YYYY-MM-DD", errBadRequest, req.ReferenceDate)
		}
	}

	rules := snap.card.Booking.AgeRules
	tiers := make([]booking.AgeTier, len(req.Passengers))
	names := make([]string, len(req.Passengers))
	for i, p := range req.Passengers {
		if p.DateOfBirth != "" {
			tiers[i] = rules.Classify(p.DateOfBirth, ref)
		} else {
			t, ok := rules.TierByName(p.Tier)
			if !ok {
				return QuoteResponse{}, fmt.Errorf("%w: passenger %d tier %q not in %s", booking.ErrInvalidRuleSet, i, p.Tier, rules.Name)
			}
			tiers[i] = t
		}
		names[i] = string(tiers[i].Name)
	}

	pricer := booking.NewPricer(snap.card.Booking)
	breakdown, err := pricer.PriceRequest(booking.Request{
		BaseFarePerAdult: pricing.Money{Amount: *req.BaseFarePerAdult, Currency: currency},
		Passengers:       tiers,
		Gateway:          booking.GatewayID(req.Gateway),
		FeeBase:          feeBase,
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	return QuoteResponse{
		BookingID:       req.BookingID,
		Gateway:         req.Gateway,
		AgeRules:        rules.Name,
		Passengers:      names,
		Breakdown:       breakdown,
		RateCardVersion: snap.version,
	}, nil
}

func (h *Handler) persistQuote(ctx context.Context, resp *QuoteResponse) error {
	now := h.now().UTC()
	err := h.Store.SaveQuote(ctx, store.QuoteRecord{
		ID:         uuid.NewString(),
		BookingID:  resp.BookingID,
		Gateway:    resp.Gateway,
		AgeRules:   resp.AgeRules,
		Passengers: resp.Passengers,
		Breakdown:  resp.Breakdown,
		CreatedAt:  now,
	})
	if err != nil {
		return err
	}
	resp.Persisted = true
	resp.CreatedAt = now.Format(time.RFC3339)
	return nil
}

// GetQuote returns a stored quote.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	q, err := h.Store.GetQuote(r.Context(), bookingID)
	if err != nil {
		h.writeEngineError(w, r, "Failed to get quote", err)
		return
	}

	writeJSON(w, http.StatusOK, quoteToDTO(q))
}

func quoteToDTO(q *store.QuoteRecord) QuoteResponse {
	return QuoteResponse{
		BookingID:  q.BookingID,
		Gateway:    q.Gateway,
		AgeRules:   q.AgeRules,
		Passengers: q.Passengers,
		Breakdown:  q.Breakdown,
		Persisted:  true,
		CreatedAt:  q.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// REFUND HANDLERS
// =============================================================================

// CreateRefund computes a refund and records it when tied to a booking.
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap := h.snapshot()
	resp, err := h.computeRefund(r.Context(), snap, req)
	if err != nil {
		h.Metrics.ObserveRefund("", resultLabel(err))
		h.writeEngineError(w, r, "Failed to calculate refund", err)
		return
	}
	rule := string(resp.Result.Rule)

	status := http.StatusOK
	if req.BookingID != "" {
		if err := h.persistRefund(r.Context(), req, &resp); err != nil {
			h.Metrics.ObserveRefund(rule, resultLabel(err))
			h.writeEngineError(w, r, "Failed to record refund", err)
			return
		}
		status = http.StatusCreated
	}

	h.Metrics.ObserveRefund(rule, obs.ResultOK)
	writeJSON(w, status, resp)
}

func (h *Handler) computeRefund(ctx context.Context, snap rateCardSnapshot, req RefundRequest) (RefundResponse, error) {
	var (
		quote                 *store.QuoteRecord
		totalPaid, gatewayFee pricing.Money
	)
	if req.BookingID != "" {
		// The stored breakdown is authoritative; client totals may only echo it.
		q, err := h.Store.GetQuote(ctx, req.BookingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return RefundResponse{}, fmt.Errorf("quote for booking %q: %w", req.BookingID, store.ErrNotFound)
			}
			return RefundResponse{}, err
		}
		quote = q
		totalPaid = pricing.Money{Amount: q.Breakdown.TotalAmount.Value, Currency: q.Breakdown.Currency}
		gatewayFee = pricing.Money{Amount: q.Breakdown.GatewayFeeAmount.Value, Currency: q.Breakdown.Currency}
		if err := matchStored(req, totalPaid, gatewayFee); err != nil {
			return RefundResponse{}, err
		}
	} else {
		if req.TotalPaid == nil || req.GatewayFee == nil {
			return RefundResponse{}, fmt.Errorf("%w: total_paid and gateway_fee, or booking_id, are required", errBadRequest)
		}
		currency, err := pricing.ParseCurrency(valueOr(req.Currency, string(pricing.USD)))
		if err != nil {
			return RefundResponse{}, err
		}
		totalPaid = pricing.Money{Amount: *req.TotalPaid, Currency: currency}
		gatewayFee = pricing.Money{Amount: *req.GatewayFee, Currency: currency}
	}

	var hours float64
	switch {
	case req.HoursSincePayment != nil:
		hours = *req.HoursSincePayment
	case req.PaidAt != nil:
		hours = refund.HoursSince(*req.PaidAt, h.now())
	case quote != nil:
		hours = refund.HoursSince(quote.CreatedAt, h.now())
	default:
		return RefundResponse{}, fmt.Errorf("%w: hours_since_payment or paid_at is required", errBadRequest)
	}

	result, err := refund.NewCalculator(snap.card.Refund).Calculate(totalPaid, hours, req.IsAirlineCancel, gatewayFee)
	if err != nil {
		return RefundResponse{}, err
	}

	return RefundResponse{
		BookingID:         req.BookingID,
		IsAirlineCancel:   req.IsAirlineCancel,
		HoursSincePayment: hours,
		TotalPaid:         result.RefundableBase().Add(result.GatewayFeeRetained),
		Result:            result,
	}, nil
}

// matchStored rejects client figures that disagree with the stored quote.
func matchStored(req RefundRequest, totalPaid, gatewayFee pricing.Money) error {
	if req.Currency != "" {
		currency, err := pricing.ParseCurrency(req.Currency)
		if err != nil {
			return err
		}
		if currency != totalPaid.Currency {
			return fmt.Errorf("%w: currency %s does not match booking currency %s", errBadRequest, currency, totalPaid.Currency)
		}
	}
	check := func(field string, given *decimal.Decimal, stored pricing.Money) error {
		if given == nil {
			return nil
		}
		got, err := pricing.Money{Amount: *given, Currency: stored.Currency}.Cents(field)
		if err != nil {
			return err
		}
		want, err := stored.Cents(field)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%w: %s %s does not match the booking's %s", errBadRequest, field, given.StringFixed(2), stored.Amount.StringFixed(2))
		}
		return nil
	}
	if err := check("total_paid", req.TotalPaid, totalPaid); err != nil {
		return err
	}
	return check("gateway_fee", req.GatewayFee, gatewayFee)
}

func (h *Handler) persistRefund(ctx context.Context, req RefundRequest, resp *RefundResponse) error {
	key := req.IdempotencyKey
	if key == "" {
		// One refund per booking, so the booking alone is the key.
		key = req.BookingID + ":refund"
	}
	rec := store.RefundRecord{
		ID:                uuid.NewString(),
		BookingID:         req.BookingID,
		IdempotencyKey:    key,
		IsAirlineCancel:   req.IsAirlineCancel,
		HoursSincePayment: resp.HoursSincePayment,
		Result:            resp.Result,
		CreatedAt:         h.now().UTC(),
	}
	if err := h.Store.AppendRefund(ctx, rec); err != nil {
		return err
	}
	resp.ID = rec.ID
	resp.IdempotencyKey = key
	resp.Persisted = true
	resp.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	return nil
}

// ListRefunds returns a booking's refund history.
func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	records, err := h.Store.ListRefunds(r.Context(), bookingID)
	if err != nil {
		h.writeEngineError(w, r, "Failed to list refunds", err)
		return
	}

	dtos := make([]RefundResponse, len(records))
	for i, rec := range records {
		dtos[i] = RefundResponse{
			ID:                rec.ID,
			BookingID:         rec.BookingID,
			IdempotencyKey:    rec.IdempotencyKey,
			IsAirlineCancel:   rec.IsAirlineCancel,
			HoursSincePayment: rec.HoursSincePayment,
			TotalPaid:         rec.Result.RefundableBase().Add(rec.Result.GatewayFeeRetained),
			Result:            rec.Result,
			Persisted:         true,
			CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RATE CARD HANDLERS
// =============================================================================

// GetRateCard returns the settings currently used for pricing.
func (h *Handler) GetRateCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rateCardToDTO(h.snapshot()))
}

// PutRateCard validates and stores a new rate card version.
func (h *Handler) PutRateCard(w http.ResponseWriter, r *http.Request) {
	var doc factory.RateCardJSON
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	card, err := h.RateCards.FromJSON(doc)
	if err != nil {
		h.writeEngineError(w, r, "Invalid rate card", err)
		return
	}

	snap, err := h.saveRateCard(r.Context(), *card)
	if err != nil {
		h.writeEngineError(w, r, "Failed to save rate card", err)
		return
	}
	writeJSON(w, http.StatusOK, rateCardToDTO(snap))
}

func rateCardToDTO(s rateCardSnapshot) RateCardResponse {
	resp := RateCardResponse{Version: s.version, RateCard: s.card.ToJSON()}
	if !s.updatedAt.IsZero() {
		resp.UpdatedAt = s.updatedAt.Format(time.RFC3339)
	}
	return resp
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness and whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", RateCardVersion: h.snapshot().version})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an error to its HTTP status and logs it.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	evt := h.Logger.Warn()
	if status >= http.StatusInternalServerError {
		evt = h.Logger.Error()
	}
	evt.Err(err).
		Int("status", status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg(message)
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, errBadRequest),
		booking.IsClientError(err),
		refund.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateIdempotencyKey),
		errors.Is(err, store.ErrBookingAlreadyRefunded),
		errors.Is(err, store.ErrDuplicateBooking):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func resultLabel(err error) string {
	if statusFor(err) < http.StatusInternalServerError {
		return obs.ResultClientError
	}
	return obs.ResultError
}

// gatewayLabel keeps metric cardinality bounded by the configured gateways.
func gatewayLabel(s rateCardSnapshot, gateway string) string {
	if _, ok := s.card.Booking.Gateways[booking.GatewayID(gateway)]; ok {
		return gateway
	}
	return "unknown"
}

func valueOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
