/*
Package pricing provides the core fare calculation engine.

PURPOSE:
  This package turns a base fare and a set of fee policies into an exact
  amount to charge. It is the arithmetic layer underneath booking pricing
  and refund calculation: every money figure that leaves the engine was
  produced here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A major-unit amount in a settlement currency, as it arrives at
    the boundary (request body, rate card, stored breakdown)
  - Cents: Integer minor units. All internal arithmetic happens on cents.
  - Amount: A figure exposed both as cents (accounting) and as a decimal
    (display)

DESIGN PRINCIPLES:
  1. Single conversion point: decimals become cents once, in ToCents
  2. Precision: decimal.Decimal at the boundary, int64 after it
  3. One rounding policy: half away from zero, everywhere
  4. Purity: no I/O, no globals, same inputs give the same output
  5. Bounded: figures above MaxCents are errors, never wrapped int64s

USAGE:
  base, _ := pricing.NewMoney("199.99", "USD")
  breakdown, err := pricing.Compute(pricing.PriceInput{
      Base:       base,
      Markup:     pricing.NoFee{},
      GatewayFee: pricing.MustMixedFee("2.9", "0.30"),
  })

SEE ALSO:
  - fee.go: FeePolicy variants and the Fee Policy Evaluator
  - engine.go: Price Engine
  - errors.go: Error taxonomy
*/
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENCY
// =============================================================================

type Currency string

// USD is the only settlement currency in this version.
const USD Currency = "USD"

// ParseCurrency normalizes a currency code and rejects anything but USD.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if c != USD {
		return "", &CurrencyError{Code: code}
	}
	return c, nil
}

// =============================================================================
// CENTS CORE - the single decimal <-> integer conversion point
// =============================================================================

var hundred = decimal.NewFromInt(100)

// MaxCents bounds every cent figure the engine accepts or produces
// ($10 trillion). A sum of a few bounded figures stays inside int64.
const MaxCents int64 = 1_000_000_000_000_000

var maxCents = decimal.NewFromInt(MaxCents)

// ToCents converts a major-unit amount to integer cents, rounding half away
// from zero. This is the only place a decimal becomes an integer. Amounts
// beyond MaxCents are rejected rather than wrapped.
func ToCents(amount decimal.Decimal) (int64, error) {
	return roundCents("amount", amount.Mul(hundred))
}

// FromCents converts integer cents back to a major-unit decimal. Exact.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// roundCents rounds a fractional cent value with the same policy as ToCents.
func roundCents(field string, cents decimal.Decimal) (int64, error) {
	r := cents.Round(0)
	if r.Abs().GreaterThan(maxCents) {
		return 0, &AmountError{Field: field, Value: cents.Shift(-2).String(), Reason: "too large"}
	}
	return r.IntPart(), nil
}

// AddCents sums bounded cent figures and rejects a total above MaxCents.
func AddCents(field string, parts ...int64) (int64, error) {
	var total int64
	for _, p := range parts {
		total += p
	}
	if total > MaxCents || total < -MaxCents {
		return 0, &AmountError{Field: field, Value: FromCents(total).String(), Reason: "too large"}
	}
	return total, nil
}

// ParseAmount parses a major-unit decimal string.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &AmountError{Field: "amount", Value: s, Reason: "not a number"}
	}
	return d, nil
}

// AmountFromFloat accepts a float only when it is finite.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, &AmountError{Field: "amount", Value: strconv.FormatFloat(f, 'g', -1, 64), Reason: "not finite"}
	}
	return decimal.NewFromFloat(f), nil
}

// =============================================================================
// MONEY - boundary value
// =============================================================================

// Money is a major-unit amount in a currency. It is what callers hand the
// engine; the engine converts it to cents before doing anything else.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney parses an amount string and a currency code.
func NewMoney(amount, currency string) (Money, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return Money{}, err
	}
	c, err := ParseCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: c}, nil
}

// USDCents builds Money from an already-settled cent figure.
func USDCents(cents int64) Money {
	return Money{Amount: FromCents(cents), Currency: USD}
}

// Cents validates the money value and converts it to cents. field names the
// input in the returned error.
func (m Money) Cents(field string) (int64, error) {
	if m.Currency != USD {
		return 0, &CurrencyError{Code: string(m.Currency)}
	}
	if m.Amount.IsNegative() {
		return 0, &AmountError{Field: field, Value: m.Amount.String(), Reason: "negative"}
	}
	return roundCents(field, m.Amount.Mul(hundred))
}

func (m Money) String() string { return m.Amount.StringFixed(2) + " " + string(m.Currency) }

// =============================================================================
// AMOUNT - dual representation in outputs
// =============================================================================

// Amount is an output figure: exact cents for accounting, decimal for display.
type Amount struct {
	Value decimal.Decimal `json:"amount"`
	Cents int64           `json:"cents"`
}

// NewAmount derives the display value from cents so the two never disagree.
func NewAmount(cents int64) Amount {
	return Amount{Value: FromCents(cents), Cents: cents}
}

type amountJSON struct {
	Value string `json:"amount"`
	Cents int64  `json:"cents"`
}

// MarshalJSON renders the display value with exactly two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Value: a.Value.StringFixed(2), Cents: a.Cents})
}

// UnmarshalJSON trusts cents and rebuilds the display value from them.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var aj amountJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	*a = NewAmount(aj.Cents)
	return nil
}

func (a Amount) Add(b Amount) Amount { return NewAmount(a.Cents + b.Cents) }
func (a Amount) Sub(b Amount) Amount { return NewAmount(a.Cents - b.Cents) }
func (a Amount) IsZero() bool        { return a.Cents == 0 }
func (a Amount) String() string      { return a.Value.StringFixed(2) }
