/*
fee.go - Fee policies and the Fee Policy Evaluator

PURPOSE:
  A FeePolicy describes how a surcharge is derived from a base amount.
  The same evaluator serves markup, volatility buffer and gateway fee.

VARIANTS (closed set):
  NoFee          - fee is zero
  FixedFee       - flat fee in major units
  PercentageFee  - percentage of the fee's base
  MixedFee       - percentage of base plus a flat fee, each rounded on its own

EXHAUSTIVENESS:
  FeePolicy is sealed by an unexported method, so only this package can add
  variants. ComputeFee rejects anything it does not recognise with
  ErrInvalidPolicy, and FeeKinds() is walked by the tests: a new variant
  that is missing from ComputeFee or the rate card factory fails the build's
  test run.

ROUNDING:
  Each component is rounded to the nearest cent where it is computed.
  Never derive a fee from another already-rounded fee.

EXAMPLE:
  stripe := pricing.MustMixedFee("2.9", "0.30")
  fee, _ := pricing.ComputeFee(10000, stripe) // 290 + 30 = 320
*/
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FEE POLICY - sealed sum type
// =============================================================================

type FeeKind string

const (
	FeeNone       FeeKind = "none"
	FeeFixed      FeeKind = "fixed"
	FeePercentage FeeKind = "percentage"
	FeeMixed      FeeKind = "mixed"
)

// FeeKinds lists every variant. Keep in sync with ComputeFee.
func FeeKinds() []FeeKind {
	return []FeeKind{FeeNone, FeeFixed, FeePercentage, FeeMixed}
}

// FeePolicy is one of NoFee, FixedFee, PercentageFee or MixedFee.
type FeePolicy interface {
	Kind() FeeKind
	sealed()
}

type NoFee struct{}

type FixedFee struct {
	Amount decimal.Decimal // major units
}

type PercentageFee struct {
	Percentage decimal.Decimal // 2.9 means 2.9%
}

type MixedFee struct {
	Percentage  decimal.Decimal
	FixedAmount decimal.Decimal
}

func (NoFee) Kind() FeeKind         { return FeeNone }
func (FixedFee) Kind() FeeKind      { return FeeFixed }
func (PercentageFee) Kind() FeeKind { return FeePercentage }
func (MixedFee) Kind() FeeKind      { return FeeMixed }

func (NoFee) sealed()         {}
func (FixedFee) sealed()      {}
func (PercentageFee) sealed() {}
func (MixedFee) sealed()      {}

// Compile-time checks
var (
	_ FeePolicy = NoFee{}
	_ FeePolicy = FixedFee{}
	_ FeePolicy = PercentageFee{}
	_ FeePolicy = MixedFee{}
)

// =============================================================================
// CONSTRUCTORS - validate on the way in
// =============================================================================

func NewFixedFee(amount decimal.Decimal) (FixedFee, error) {
	p := FixedFee{Amount: amount}
	return p, Validate(p)
}

func NewPercentageFee(percentage decimal.Decimal) (PercentageFee, error) {
	p := PercentageFee{Percentage: percentage}
	return p, Validate(p)
}

func NewMixedFee(percentage, fixedAmount decimal.Decimal) (MixedFee, error) {
	p := MixedFee{Percentage: percentage, FixedAmount: fixedAmount}
	return p, Validate(p)
}

// MustMixedFee is for presets built from string literals. Panics on bad input.
func MustMixedFee(percentage, fixedAmount string) MixedFee {
	p, err := NewMixedFee(decimal.RequireFromString(percentage), decimal.RequireFromString(fixedAmount))
	if err != nil {
		panic(err)
	}
	return p
}

// MustPercentageFee is for presets built from string literals. Panics on bad input.
func MustPercentageFee(percentage string) PercentageFee {
	p, err := NewPercentageFee(decimal.RequireFromString(percentage))
	if err != nil {
		panic(err)
	}
	return p
}

// Validate re-checks a policy. Struct literals bypass the constructors, so
// the evaluator calls this on every use.
func Validate(policy FeePolicy) error {
	switch p := policy.(type) {
	case NoFee:
		return nil
	case FixedFee:
		return fixedInRange(FeeFixed, "amount", p.Amount)
	case PercentageFee:
		return nonNegative(FeePercentage, "percentage", p.Percentage)
	case MixedFee:
		if err := nonNegative(FeeMixed, "percentage", p.Percentage); err != nil {
			return err
		}
		return fixedInRange(FeeMixed, "fixed_amount", p.FixedAmount)
	case *NoFee, *FixedFee, *PercentageFee, *MixedFee:
		return &PolicyError{Kind: "pointer", Value: fmt.Sprintf("%T", policy)}
	case nil:
		return &PolicyError{Kind: "nil"}
	default:
		return &PolicyError{Kind: policy.Kind()}
	}
}

func nonNegative(kind FeeKind, field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &PolicyError{Kind: kind, Field: field, Value: v.String()}
	}
	return nil
}

// fixedInRange also rejects fixed amounts that cannot be held in cents.
func fixedInRange(kind FeeKind, field string, v decimal.Decimal) error {
	if err := nonNegative(kind, field, v); err != nil {
		return err
	}
	if v.Mul(hundred).Round(0).GreaterThan(maxCents) {
		return &PolicyError{Kind: kind, Field: field, Value: v.String(), Reason: "too large"}
	}
	return nil
}

// =============================================================================
// FEE POLICY EVALUATOR
// =============================================================================

// ComputeFee returns the fee in cents for a base in cents.
func ComputeFee(baseCents int64, policy FeePolicy) (int64, error) {
	if err := Validate(policy); err != nil {
		return 0, err
	}
	switch p := policy.(type) {
	case NoFee:
		return 0, nil
	case FixedFee:
		return roundCents("fee", p.Amount.Mul(hundred))
	case PercentageFee:
		return percentOf(baseCents, p.Percentage)
	case MixedFee:
		pct, err := percentOf(baseCents, p.Percentage)
		if err != nil {
			return 0, err
		}
		fixed, err := roundCents("fee", p.FixedAmount.Mul(hundred))
		if err != nil {
			return 0, err
		}
		return AddCents("fee", pct, fixed)
	default:
		return 0, &PolicyError{Kind: policy.Kind()}
	}
}

// percentOf computes round(base * pct / 100) without leaving decimal math.
func percentOf(baseCents int64, percentage decimal.Decimal) (int64, error) {
	return roundCents("fee", decimal.NewFromInt(baseCents).Mul(percentage).Shift(-2))
}
