// Package booking prices multi-passenger bookings on top of the pricing engine.
// It binds age multipliers and a gateway's fee policy into one Price Engine call.
package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fare-engine/pricing"
)

// ErrUnknownGateway is returned when no fee settings exist for a gateway.
var ErrUnknownGateway = errors.New("unknown payment gateway")

// =============================================================================
// CONFIG - supplied by the caller, never read from storage here
// =============================================================================

// Config is a point-in-time snapshot of the pricing settings. Callers read
// it before pricing; two concurrent prices during a settings change are each
// internally consistent.
type Config struct {
	Markup   pricing.FeePolicy
	Gateways map[GatewayID]GatewaySettings
	AgeRules AgeRuleSet
}

// Gateway looks up the settings for a gateway.
func (c Config) Gateway(id GatewayID) (GatewaySettings, error) {
	gs, ok := c.Gateways[id]
	if !ok {
		return GatewaySettings{}, fmt.Errorf("%w: %q", ErrUnknownGateway, id)
	}
	return gs, nil
}

// Validate checks every policy and the age rules.
func (c Config) Validate() error {
	if err := pricing.Validate(c.Markup); err != nil {
		return fmt.Errorf("markup: %w", err)
	}
	for id, gs := range c.Gateways {
		if err := pricing.Validate(gs.Fee); err != nil {
			return fmt.Errorf("gateway %s fee: %w", id, err)
		}
		if gs.VolatilityBuffer != nil {
			if err := pricing.Validate(gs.VolatilityBuffer); err != nil {
				return fmt.Errorf("gateway %s volatility buffer: %w", id, err)
			}
		}
	}
	return c.AgeRules.Validate()
}

// =============================================================================
// PRICER - Booking Pricing Orchestrator
// =============================================================================

type Pricer struct {
	Config Config
}

func NewPricer(cfg Config) *Pricer {
	return &Pricer{Config: cfg}
}

// Request carries the optional gateway-fee base override.
type Request struct {
	BaseFarePerAdult pricing.Money
	Passengers       []AgeTier
	Gateway          GatewayID
	FeeBase          pricing.GatewayFeeBase // empty means pre_fee_total
}

// PriceBooking prices a booking with the gateway fee charged on what the
// customer actually pays (markup and buffer included).
func (p *Pricer) PriceBooking(baseFarePerAdult pricing.Money, passengers []AgeTier, gateway GatewayID) (pricing.PriceBreakdown, error) {
	return p.PriceRequest(Request{
		BaseFarePerAdult: baseFarePerAdult,
		Passengers:       passengers,
		Gateway:          gateway,
		FeeBase:          pricing.FeeBasePreFeeTotal,
	})
}

// PriceRequest is PriceBooking with an explicit fee base.
func (p *Pricer) PriceRequest(req Request) (pricing.PriceBreakdown, error) {
	if len(req.Passengers) == 0 {
		return pricing.PriceBreakdown{}, pricing.ErrEmptyPassengerList
	}
	if req.BaseFarePerAdult.Amount.IsNegative() {
		return pricing.PriceBreakdown{}, &pricing.AmountError{
			Field: "base_fare_per_adult", Value: req.BaseFarePerAdult.Amount.String(), Reason: "negative",
		}
	}

	gs, err := p.Config.Gateway(req.Gateway)
	if err != nil {
		return pricing.PriceBreakdown{}, err
	}

	// Lines stay in decimal; the engine rounds the sum once.
	base := decimal.Zero
	for _, tier := range req.Passengers {
		base = base.Add(req.BaseFarePerAdult.Amount.Mul(tier.Multiplier))
	}

	feeBase := req.FeeBase
	if feeBase == "" {
		feeBase = pricing.FeeBasePreFeeTotal
	}

	return pricing.Compute(pricing.PriceInput{
		Base:             pricing.Money{Amount: base, Currency: req.BaseFarePerAdult.Currency},
		Markup:           p.Config.Markup,
		VolatilityBuffer: gs.VolatilityBuffer,
		GatewayFee:       gs.Fee,
		GatewayFeeBase:   feeBase,
	})
}

// PricePassengers classifies each date of birth against the configured rule
// set, then prices the booking.
func (p *Pricer) PricePassengers(baseFarePerAdult pricing.Money, datesOfBirth []string, ref time.Time, gateway GatewayID) (pricing.PriceBreakdown, []AgeTier, error) {
	tiers, err := p.Classify(datesOfBirth, ref)
	if err != nil {
		return pricing.PriceBreakdown{}, nil, err
	}
	b, err := p.PriceBooking(baseFarePerAdult, tiers, gateway)
	return b, tiers, err
}

// Classify maps each date of birth to a tier. The configured rule set is
// validated first.
func (p *Pricer) Classify(datesOfBirth []string, ref time.Time) ([]AgeTier, error) {
	if err := p.Config.AgeRules.Validate(); err != nil {
		return nil, err
	}
	tiers := make([]AgeTier, len(datesOfBirth))
	for i, dob := range datesOfBirth {
		tiers[i] = p.Config.AgeRules.Classify(dob, ref)
	}
	return tiers, nil
}

// IsClientError reports whether err came from bad booking input or settings.
func IsClientError(err error) bool {
	return pricing.IsClientError(err) ||
		errors.Is(err, ErrUnknownGateway) ||
		errors.Is(err, ErrInvalidRuleSet)
}
