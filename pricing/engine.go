/*
engine.go - Price Engine

PURPOSE:
  Composes a full price breakdown from a base amount and three fee
  policies. Every step delegates to ComputeFee; the engine only adds.

ALGORITHM (fixed order):
  1. subtotal      = ToCents(base)
  2. markup        = ComputeFee(subtotal, markup)
  3. buffer        = ComputeFee(subtotal, volatility buffer or none)
  4. pre-fee total = subtotal + markup + buffer
  5. fee base      = pre-fee total, or subtotal in base_only mode
  6. gateway fee   = ComputeFee(fee base, gateway fee)
  7. total         = pre-fee total + gateway fee

INVARIANT:
  total == subtotal + markup + buffer + gateway fee, exactly. Each part is
  rounded where it is computed and the total is a sum of rounded parts.
  Any figure above MaxCents fails with ErrInvalidAmount ("too large").

DETERMINISM:
  Compute is a pure function. Upstream payment-intent creation relies on
  identical inputs producing an identical breakdown.
*/
package pricing

import "fmt"

// GatewayFeeBase selects what the gateway fee percentage is applied to.
type GatewayFeeBase string

const (
	// FeeBasePreFeeTotal charges the gateway fee on subtotal + markup + buffer.
	FeeBasePreFeeTotal GatewayFeeBase = "pre_fee_total"
	// FeeBaseBaseOnly charges the gateway fee on the bare subtotal.
	FeeBaseBaseOnly GatewayFeeBase = "base_only"
)

// ParseGatewayFeeBase accepts the two modes; empty means pre_fee_total.
func ParseGatewayFeeBase(s string) (GatewayFeeBase, error) {
	switch GatewayFeeBase(s) {
	case "", FeeBasePreFeeTotal:
		return FeeBasePreFeeTotal, nil
	case FeeBaseBaseOnly:
		return FeeBaseBaseOnly, nil
	default:
		return "", fmt.Errorf("%w: unknown gateway fee base %q", ErrInvalidPolicy, s)
	}
}

// PriceInput is everything the engine needs for one calculation.
type PriceInput struct {
	Base             Money
	Markup           FeePolicy
	VolatilityBuffer FeePolicy // optional, nil means none
	GatewayFee       FeePolicy
	GatewayFeeBase   GatewayFeeBase
}

// PriceBreakdown is the engine's output. It is persisted verbatim by callers.
type PriceBreakdown struct {
	Currency               Currency       `json:"currency"`
	GatewayFeeBase         GatewayFeeBase `json:"gateway_fee_base"`
	Subtotal               Amount         `json:"subtotal"`
	MarkupAmount           Amount         `json:"markup_amount"`
	VolatilityBufferAmount Amount         `json:"volatility_buffer_amount"`
	GatewayFeeAmount       Amount         `json:"gateway_fee_amount"`
	TotalAmount            Amount         `json:"total_amount"`
}

// PreFeeTotal is what the customer pays before the gateway fee.
func (b PriceBreakdown) PreFeeTotal() Amount {
	return b.Subtotal.Add(b.MarkupAmount).Add(b.VolatilityBufferAmount)
}

// Verify re-checks the exactness invariant. Useful on breakdowns read back
// from storage.
func (b PriceBreakdown) Verify() error {
	sum := b.PreFeeTotal().Add(b.GatewayFeeAmount)
	if sum.Cents != b.TotalAmount.Cents {
		return fmt.Errorf("%w: total %d != parts %d", ErrInvalidAmount, b.TotalAmount.Cents, sum.Cents)
	}
	return nil
}

// Compute runs the Price Engine.
func Compute(in PriceInput) (PriceBreakdown, error) {
	subtotal, err := in.Base.Cents("base")
	if err != nil {
		return PriceBreakdown{}, err
	}

	mode, err := ParseGatewayFeeBase(string(in.GatewayFeeBase))
	if err != nil {
		return PriceBreakdown{}, err
	}

	markup, err := ComputeFee(subtotal, in.Markup)
	if err != nil {
		return PriceBreakdown{}, err
	}

	bufferPolicy := in.VolatilityBuffer
	if bufferPolicy == nil {
		bufferPolicy = NoFee{}
	}
	buffer, err := ComputeFee(subtotal, bufferPolicy)
	if err != nil {
		return PriceBreakdown{}, err
	}

	preFeeTotal, err := AddCents("pre_fee_total", subtotal, markup, buffer)
	if err != nil {
		return PriceBreakdown{}, err
	}

	feeBase := preFeeTotal
	if mode == FeeBaseBaseOnly {
		feeBase = subtotal
	}
	gatewayFee, err := ComputeFee(feeBase, in.GatewayFee)
	if err != nil {
		return PriceBreakdown{}, err
	}

	total, err := AddCents("total", preFeeTotal, gatewayFee)
	if err != nil {
		return PriceBreakdown{}, err
	}

	return PriceBreakdown{
		Currency:               in.Base.Currency,
		GatewayFeeBase:         mode,
		Subtotal:               NewAmount(subtotal),
		MarkupAmount:           NewAmount(markup),
		VolatilityBufferAmount: NewAmount(buffer),
		GatewayFeeAmount:       NewAmount(gatewayFee),
		TotalAmount:            NewAmount(total),
	}, nil
}
