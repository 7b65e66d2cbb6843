/*
Package factory provides JSON/YAML to Go rate card conversion.

PURPOSE:
  Converts a rate card document into the configuration structs the pricing
  engine consumes (booking.Config and refund.Config). Pricing settings can
  change without code changes: ops edit the rate card, the factory builds
  the Go values, and the API hands them to the engine by value.

WHY A DOCUMENT?
  - Non-developers can adjust gateway fees and buffers
  - Easy storage in the database (settings table)
  - Version control for rate cards
  - Same schema over HTTP (PUT /api/rate-card) and on disk

JSON SCHEMA:
  {
    "markup": {"type": "none"},
    "gateways": {
      "stripe": {
        "fee": {"type": "mixed", "percentage": "2.9", "fixed_amount": "0.30"},
        "volatility_buffer": {"type": "percentage", "percentage": "3"}
      }
    },
    "age_rules": {"name": "three_tier"},
    "refund": {
      "compensation_bonus": "20.00",
      "full_refund_window_hours": 48,
      "partial_percentage": 50
    }
  }

  The YAML form uses the same keys. Amounts may be strings or numbers; they
  are parsed as decimals, never floats.

KEY FEATURES:
  - Every FeePolicy variant has a document form (type: none|fixed|percentage|mixed)
  - Unknown fee types fail with pricing.ErrInvalidPolicy
  - Missing sections fall back to the built-in defaults
  - Round trip: ToJSON(FromJSON(doc)) describes the same configuration

USAGE:
  f := factory.NewRateCardFactory()
  card, err := f.ParseRateCard(jsonString)
  pricer := booking.NewPricer(card.Booking)
  calc := refund.NewCalculator(card.Refund)

SEE ALSO:
  - pricing/fee.go: FeePolicy variants
  - booking/gateways.go: Built-in gateway defaults
  - refund/calculator.go: Refund config
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/fare-engine/booking"
	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// RateCardJSON is the document representation of the pricing settings.
type RateCardJSON struct {
	Markup           *FeePolicyJSON         `json:"markup,omitempty" yaml:"markup,omitempty"`
	VolatilityBuffer *FeePolicyJSON         `json:"volatility_buffer,omitempty" yaml:"volatility_buffer,omitempty"` // default for gateways that set none
	Gateways         map[string]GatewayJSON `json:"gateways,omitempty" yaml:"gateways,omitempty"`
	AgeRules         *AgeRulesJSON          `json:"age_rules,omitempty" yaml:"age_rules,omitempty"`
	Refund           *RefundJSON            `json:"refund,omitempty" yaml:"refund,omitempty"`
}

// FeePolicyJSON represents one fee policy.
type FeePolicyJSON struct {
	Type        string           `json:"type" yaml:"type"` // none, fixed, percentage, mixed
	Amount      *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty" yaml:"fixed_amount,omitempty"`
}

// GatewayJSON represents the fee settings of one gateway.
type GatewayJSON struct {
	Fee              FeePolicyJSON  `json:"fee" yaml:"fee"`
	VolatilityBuffer *FeePolicyJSON `json:"volatility_buffer,omitempty" yaml:"volatility_buffer,omitempty"`
}

// AgeRulesJSON selects a built-in rule set by name or defines custom tiers.
type AgeRulesJSON struct {
	Name  string        `json:"name,omitempty" yaml:"name,omitempty"`
	Tiers []AgeTierJSON `json:"tiers,omitempty" yaml:"tiers,omitempty"`
}

type AgeTierJSON struct {
	Name       string          `json:"name" yaml:"name"`
	MinAge     int             `json:"min_age" yaml:"min_age"`
	Multiplier decimal.Decimal `json:"multiplier" yaml:"multiplier"`
}

// RefundJSON represents refund settings.
type RefundJSON struct {
	CompensationBonus     *decimal.Decimal `json:"compensation_bonus,omitempty" yaml:"compensation_bonus,omitempty"`
	FullRefundWindowHours *int             `json:"full_refund_window_hours,omitempty" yaml:"full_refund_window_hours,omitempty"`
	PartialPercentage     *int64           `json:"partial_percentage,omitempty" yaml:"partial_percentage,omitempty"`
}

// =============================================================================
// RATE CARD
// =============================================================================

// RateCard is the parsed, validated configuration.
type RateCard struct {
	Booking booking.Config
	Refund  refund.Config
}

// DefaultRateCard returns the built-in settings.
func DefaultRateCard() RateCard {
	return RateCard{Booking: booking.DefaultConfig(), Refund: refund.DefaultConfig()}
}

// Validate checks both halves of the card.
func (rc RateCard) Validate() error {
	if err := rc.Booking.Validate(); err != nil {
		return err
	}
	return rc.Refund.Validate()
}

// =============================================================================
// RATE CARD FACTORY
// =============================================================================

// RateCardFactory converts rate card documents to Go structs.
type RateCardFactory struct{}

// NewRateCardFactory creates a new rate card factory.
func NewRateCardFactory() *RateCardFactory {
	return &RateCardFactory{}
}

// ParseRateCard parses a JSON document.
func (f *RateCardFactory) ParseRateCard(jsonStr string) (*RateCard, error) {
	var doc RateCardJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rate card JSON: %w", err)
	}
	return f.FromJSON(doc)
}

// ParseRateCardYAML parses a YAML document.
func (f *RateCardFactory) ParseRateCardYAML(data []byte) (*RateCard, error) {
	var doc RateCardJSON
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rate card YAML: %w", err)
	}
	return f.FromJSON(doc)
}

// LoadFile reads a rate card from disk. .yaml/.yml files are parsed as
// YAML, everything else as JSON.
func (f *RateCardFactory) LoadFile(path string) (*RateCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate card: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return f.ParseRateCardYAML(data)
	default:
		return f.ParseRateCard(string(data))
	}
}

// FromJSON converts a document to a validated RateCard.
func (f *RateCardFactory) FromJSON(doc RateCardJSON) (*RateCard, error) {
	card := DefaultRateCard()

	if doc.Markup != nil {
		p, err := ParseFeePolicy(*doc.Markup)
		if err != nil {
			return nil, fmt.Errorf("markup: %w", err)
		}
		card.Booking.Markup = p
	}

	defaultBuffer := booking.DefaultVolatilityBuffer()
	if doc.VolatilityBuffer != nil {
		p, err := ParseFeePolicy(*doc.VolatilityBuffer)
		if err != nil {
			return nil, fmt.Errorf("volatility_buffer: %w", err)
		}
		defaultBuffer = p
	}

	if doc.Gateways != nil {
		card.Booking.Gateways = make(map[booking.GatewayID]booking.GatewaySettings, len(doc.Gateways))
		for id, gj := range doc.Gateways {
			gs, err := parseGateway(gj, defaultBuffer)
			if err != nil {
				return nil, fmt.Errorf("gateway %s: %w", id, err)
			}
			card.Booking.Gateways[booking.GatewayID(strings.ToLower(id))] = gs
		}
	} else if doc.VolatilityBuffer != nil {
		for id, gs := range card.Booking.Gateways {
			gs.VolatilityBuffer = defaultBuffer
			card.Booking.Gateways[id] = gs
		}
	}

	if doc.AgeRules != nil {
		rs, err := parseAgeRules(*doc.AgeRules)
		if err != nil {
			return nil, err
		}
		card.Booking.AgeRules = rs
	}

	if doc.Refund != nil {
		if doc.Refund.CompensationBonus != nil {
			card.Refund.CompensationBonus = *doc.Refund.CompensationBonus
		}
		if doc.Refund.FullRefundWindowHours != nil {
			card.Refund.FullRefundWindow = time.Duration(*doc.Refund.FullRefundWindowHours) * time.Hour
		}
		if doc.Refund.PartialPercentage != nil {
			card.Refund.PartialPercentage = *doc.Refund.PartialPercentage
		}
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}
	return &card, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// ParseFeePolicy converts a document fee policy into a pricing.FeePolicy.
func ParseFeePolicy(fj FeePolicyJSON) (pricing.FeePolicy, error) {
	switch pricing.FeeKind(strings.ToLower(strings.TrimSpace(fj.Type))) {
	case pricing.FeeNone, "":
		return pricing.NoFee{}, nil
	case pricing.FeeFixed:
		return pricing.NewFixedFee(valueOrZero(fj.Amount))
	case pricing.FeePercentage:
		return pricing.NewPercentageFee(valueOrZero(fj.Percentage))
	case pricing.FeeMixed:
		return pricing.NewMixedFee(valueOrZero(fj.Percentage), valueOrZero(fj.FixedAmount))
	default:
		return nil, &pricing.PolicyError{Kind: pricing.FeeKind(fj.Type)}
	}
}

func parseGateway(gj GatewayJSON, defaultBuffer pricing.FeePolicy) (booking.GatewaySettings, error) {
	fee, err := ParseFeePolicy(gj.Fee)
	if err != nil {
		return booking.GatewaySettings{}, fmt.Errorf("fee: %w", err)
	}
	buffer := defaultBuffer
	if gj.VolatilityBuffer != nil {
		buffer, err = ParseFeePolicy(*gj.VolatilityBuffer)
		if err != nil {
			return booking.GatewaySettings{}, fmt.Errorf("volatility_buffer: %w", err)
		}
	}
	return booking.GatewaySettings{Fee: fee, VolatilityBuffer: buffer}, nil
}

func parseAgeRules(aj AgeRulesJSON) (booking.AgeRuleSet, error) {
	if len(aj.Tiers) == 0 {
		return booking.RuleSetByName(aj.Name)
	}
	name := aj.Name
	if name == "" {
		name = "custom"
	}
	rs := booking.AgeRuleSet{Name: name}
	for _, tj := range aj.Tiers {
		rs.Tiers = append(rs.Tiers, booking.AgeTier{
			Name:       booking.TierName(strings.ToLower(tj.Name)),
			MinAge:     tj.MinAge,
			Multiplier: tj.Multiplier,
		})
	}
	return rs, rs.Validate()
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// =============================================================================
// SERIALIZATION - Go structs back to documents
// =============================================================================

// FeePolicyToJSON is the inverse of ParseFeePolicy.
func FeePolicyToJSON(p pricing.FeePolicy) FeePolicyJSON {
	switch v := p.(type) {
	case pricing.FixedFee:
		return FeePolicyJSON{Type: string(pricing.FeeFixed), Amount: &v.Amount}
	case pricing.PercentageFee:
		return FeePolicyJSON{Type: string(pricing.FeePercentage), Percentage: &v.Percentage}
	case pricing.MixedFee:
		return FeePolicyJSON{Type: string(pricing.FeeMixed), Percentage: &v.Percentage, FixedAmount: &v.FixedAmount}
	default:
		return FeePolicyJSON{Type: string(pricing.FeeNone)}
	}
}

// ToJSON converts a RateCard back to its document form.
func (rc RateCard) ToJSON() RateCardJSON {
	markup := FeePolicyToJSON(rc.Booking.Markup)
	doc := RateCardJSON{
		Markup:   &markup,
		Gateways: make(map[string]GatewayJSON, len(rc.Booking.Gateways)),
	}

	ids := make([]string, 0, len(rc.Booking.Gateways))
	for id := range rc.Booking.Gateways {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		gs := rc.Booking.Gateways[booking.GatewayID(id)]
		gj := GatewayJSON{Fee: FeePolicyToJSON(gs.Fee)}
		if gs.VolatilityBuffer != nil {
			buf := FeePolicyToJSON(gs.VolatilityBuffer)
			gj.VolatilityBuffer = &buf
		}
		doc.Gateways[id] = gj
	}

	rules := AgeRulesJSON{Name: rc.Booking.AgeRules.Name}
	for _, t := range rc.Booking.AgeRules.Tiers {
		rules.Tiers = append(rules.Tiers, AgeTierJSON{Name: string(t.Name), MinAge: t.MinAge, Multiplier: t.Multiplier})
	}
	doc.AgeRules = &rules

	bonus := rc.Refund.CompensationBonus
	hours := int(rc.Refund.FullRefundWindow / time.Hour)
	pct := rc.Refund.PartialPercentage
	doc.Refund = &RefundJSON{CompensationBonus: &bonus, FullRefundWindowHours: &hours, PartialPercentage: &pct}
	return doc
}

// MarshalIndent renders the card as a JSON document.
func (rc RateCard) MarshalIndent() (string, error) {
	data, err := json.MarshalIndent(rc.ToJSON(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DefaultRateCardJSON is the built-in rate card as a document.
func DefaultRateCardJSON() string {
	s, err := DefaultRateCard().MarshalIndent()
	if err != nil {
		panic(err)
	}
	return s
}
