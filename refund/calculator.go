/*
Package refund computes how much of a settled booking goes back to the customer.

PURPOSE:
  Applies the three refund rules to an amount that was already charged.
  Inputs come from the stored breakdown (total paid and gateway fee are
  read back, never recomputed); the elapsed time is computed by the caller.

RULES (evaluated in priority order):
  A. Airline cancellation (overrides everything):
       100% of the refundable base + fixed compensation bonus
  B. Customer cancels within the window (hours < 48):
       100% of the refundable base
  C. Customer cancels outside the window (hours >= 48):
       50% of the refundable base

COMPUTATION (integer cents, each step rounded where computed):
  refundable_base = total_paid - gateway_fee
  refund_base     = round(refundable_base * percentage / 100)
  refund_amount   = refund_base + compensation_bonus
  penalty_amount  = refundable_base - refund_base

INVARIANT:
  The gateway fee is never refunded, under any rule:
    refund_amount - compensation_bonus + penalty_amount + gateway_fee_retained == total_paid

SEE ALSO:
  - pricing/types.go: Cents core used for every figure here
  - api/handlers.go: Reads the stored breakdown and persists the result
*/
package refund

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fare-engine/pricing"
)

// ErrGatewayFeeExceedsTotal is returned when the retained fee is larger than
// what was paid. It unwraps to pricing.ErrInvalidAmount.
var ErrGatewayFeeExceedsTotal = fmt.Errorf("%w: gateway fee exceeds total paid", pricing.ErrInvalidAmount)

// =============================================================================
// RULES
// =============================================================================

type Rule string

const (
	RuleAirlineCancellation Rule = "airline_cancellation"
	RuleWithinWindow        Rule = "within_window"
	RuleOutsideWindow       Rule = "outside_window"
)

const (
	reasonAirline = "full refund + compensation, airline-caused cancellation, gateway fee non-refundable"
	reasonWithin  = "full refund within window, gateway fee non-refundable"
	reasonOutside = "partial 50% refund outside window, gateway fee non-refundable"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the refund constants. Supplied by the caller.
type Config struct {
	CompensationBonus decimal.Decimal // major units, paid on airline cancellations
	FullRefundWindow  time.Duration
	PartialPercentage int64 // refund percentage outside the window
}

// DefaultConfig is $20 compensation, a 48 hour window and a 50% partial refund.
func DefaultConfig() Config {
	return Config{
		CompensationBonus: decimal.NewFromInt(20),
		FullRefundWindow:  48 * time.Hour,
		PartialPercentage: 50,
	}
}

// Validate rejects negative or out-of-range settings.
func (c Config) Validate() error {
	if c.CompensationBonus.IsNegative() {
		return &pricing.AmountError{Field: "compensation_bonus", Value: c.CompensationBonus.String(), Reason: "negative"}
	}
	if _, err := (pricing.Money{Amount: c.CompensationBonus, Currency: pricing.USD}).Cents("compensation_bonus"); err != nil {
		return err
	}
	if c.FullRefundWindow < 0 {
		return &pricing.AmountError{Field: "full_refund_window", Value: c.FullRefundWindow.String(), Reason: "negative"}
	}
	if c.PartialPercentage < 0 || c.PartialPercentage > 100 {
		return &pricing.AmountError{Field: "partial_percentage", Value: strconv.FormatInt(c.PartialPercentage, 10), Reason: "outside [0, 100]"}
	}
	return nil
}

// =============================================================================
// RESULT
// =============================================================================

type Result struct {
	Rule               Rule           `json:"rule"`
	RefundAmount       pricing.Amount `json:"refund_amount"`
	PenaltyAmount      pricing.Amount `json:"penalty_amount"`
	CompensationBonus  pricing.Amount `json:"compensation_bonus"`
	GatewayFeeRetained pricing.Amount `json:"gateway_fee_retained"`
	RefundPercentage   int64          `json:"refund_percentage"`
	RetentionReason    string         `json:"retention_reason"`
}

// RefundableBase is what the percentage was applied to.
func (r Result) RefundableBase() pricing.Amount {
	return r.RefundAmount.Sub(r.CompensationBonus).Add(r.PenaltyAmount)
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	Config Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{Config: cfg}
}

// Calculate applies the refund rules.
func (c *Calculator) Calculate(totalPaid pricing.Money, hoursSincePayment float64, isAirlineCancel bool, gatewayFee pricing.Money) (Result, error) {
	if err := c.Config.Validate(); err != nil {
		return Result{}, err
	}
	paid, err := totalPaid.Cents("total_paid")
	if err != nil {
		return Result{}, err
	}
	fee, err := gatewayFee.Cents("gateway_fee")
	if err != nil {
		return Result{}, err
	}
	if math.IsNaN(hoursSincePayment) || math.IsInf(hoursSincePayment, 0) {
		return Result{}, &pricing.AmountError{Field: "hours_since_payment", Value: strconv.FormatFloat(hoursSincePayment, 'g', -1, 64), Reason: "not finite"}
	}
	if hoursSincePayment < 0 {
		return Result{}, &pricing.AmountError{Field: "hours_since_payment", Value: strconv.FormatFloat(hoursSincePayment, 'g', -1, 64), Reason: "negative"}
	}
	if fee > paid {
		return Result{}, ErrGatewayFeeExceedsTotal
	}

	rule, percentage, bonus, reason := c.selectRule(hoursSincePayment, isAirlineCancel)
	bonusCents, err := pricing.ToCents(bonus)
	if err != nil {
		return Result{}, err
	}

	// percentage <= 100, so refundBase never exceeds refundable
	refundable := paid - fee
	refundBase := decimal.NewFromInt(refundable).Mul(decimal.NewFromInt(percentage)).Shift(-2).Round(0).IntPart()
	refundAmount, err := pricing.AddCents("refund_amount", refundBase, bonusCents)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Rule:               rule,
		RefundAmount:       pricing.NewAmount(refundAmount),
		PenaltyAmount:      pricing.NewAmount(refundable - refundBase),
		CompensationBonus:  pricing.NewAmount(bonusCents),
		GatewayFeeRetained: pricing.NewAmount(fee),
		RefundPercentage:   percentage,
		RetentionReason:    reason,
	}, nil
}

func (c *Calculator) selectRule(hours float64, isAirlineCancel bool) (Rule, int64, decimal.Decimal, string) {
	window := c.Config.FullRefundWindow.Hours()
	switch {
	case isAirlineCancel:
		return RuleAirlineCancellation, 100, c.Config.CompensationBonus, reasonAirline
	case hours < window:
		return RuleWithinWindow, 100, decimal.Zero, reasonWithin
	default:
		return RuleOutsideWindow, c.Config.PartialPercentage, decimal.Zero, partialReason(c.Config.PartialPercentage)
	}
}

func partialReason(pct int64) string {
	if pct == 50 {
		return reasonOutside
	}
	return fmt.Sprintf("partial %d%% refund outside window, gateway fee non-refundable", pct)
}

// HoursSince returns fractional hours elapsed between payment and now.
func HoursSince(paidAt, now time.Time) float64 {
	return now.Sub(paidAt).Hours()
}

// IsClientError reports whether err came from bad refund input.
func IsClientError(err error) bool {
	return errors.Is(err, pricing.ErrInvalidAmount) || errors.Is(err, pricing.ErrUnsupportedCurrency)
}
