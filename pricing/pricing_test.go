package pricing_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fare-engine/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usd(t *testing.T, amount string) pricing.Money {
	t.Helper()
	m, err := pricing.NewMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

// =============================================================================
// CENTS CORE
// =============================================================================

func TestToCents_RoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"199.99", 19999},
		{"419.979", 41998},
		{"0.005", 1},
		{"0.004", 0},
		{"1.005", 101},
		{"12.345", 1235},
		{"100", 10000},
	}
	for _, tc := range cases {
		got, err := pricing.ToCents(dec(tc.in))
		require.NoError(t, err, "ToCents(%s)", tc.in)
		assert.Equal(t, tc.want, got, "ToCents(%s)", tc.in)
	}
}

func TestToCents_RejectsAmountsBeyondMaxCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		tooLong bool
	}{
		{"10000000000000", pricing.MaxCents, false},
		{"10000000000000.004", pricing.MaxCents, false},
		{"10000000000000.005", 0, true},
		{"10000000000000.01", 0, true},
		{"1e17", 0, true},
		{"1e20", 0, true},
		{"-10000000000000.01", 0, true},
	}
	for _, tc := range cases {
		got, err := pricing.ToCents(dec(tc.in))
		if !tc.tooLong {
			require.NoError(t, err, "ToCents(%s)", tc.in)
			assert.Equal(t, tc.want, got)
			continue
		}
		var ae *pricing.AmountError
		require.ErrorAs(t, err, &ae, "ToCents(%s)", tc.in)
		assert.Equal(t, "too large", ae.Reason)
		assert.ErrorIs(t, err, pricing.ErrInvalidAmount)
	}
}

func TestMoneyCents_RejectsOverflow(t *testing.T) {
	// GIVEN: an amount whose cents would wrap int64
	m := usd(t, "1e17")

	// WHEN: converted at the boundary
	_, err := m.Cents("base")

	// THEN: the error names the field instead of returning a negative figure
	var ae *pricing.AmountError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "base", ae.Field)
	assert.Equal(t, "too large", ae.Reason)
}

func TestAddCents_Bounds(t *testing.T) {
	got, err := pricing.AddCents("total", pricing.MaxCents-1, 1)
	require.NoError(t, err)
	assert.Equal(t, pricing.MaxCents, got)

	_, err = pricing.AddCents("total", pricing.MaxCents, 1)
	assert.ErrorIs(t, err, pricing.ErrInvalidAmount)
}

func TestFromCents_IsExact(t *testing.T) {
	assert.True(t, pricing.FromCents(41998).Equal(dec("419.98")))
	assert.True(t, pricing.FromCents(1).Equal(dec("0.01")))
	assert.True(t, pricing.FromCents(0).IsZero())
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	_, err := pricing.ParseAmount("12,50")
	require.ErrorIs(t, err, pricing.ErrInvalidAmount)

	var ae *pricing.AmountError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "12,50", ae.Value)

	d, err := pricing.ParseAmount(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("12.5")))
}

func TestAmountFromFloat_RejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := pricing.AmountFromFloat(f)
		assert.ErrorIs(t, err, pricing.ErrInvalidAmount)
	}
	d, err := pricing.AmountFromFloat(2.9)
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("2.9")))
}

func TestParseCurrency(t *testing.T) {
	c, err := pricing.ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, pricing.USD, c)

	_, err = pricing.ParseCurrency("EUR")
	assert.ErrorIs(t, err, pricing.ErrUnsupportedCurrency)
}

func TestAmount_JSONUsesTwoDecimals(t *testing.T) {
	data, err := json.Marshal(pricing.NewAmount(100))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1.00","cents":100}`, string(data))

	var back pricing.Amount
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, int64(100), back.Cents)
	assert.True(t, back.Value.Equal(dec("1")))
}

// =============================================================================
// FEE POLICY EVALUATOR
// =============================================================================

func TestComputeFee_Variants(t *testing.T) {
	cases := []struct {
		name   string
		base   int64
		policy pricing.FeePolicy
		want   int64
	}{
		{"none", 10000, pricing.NoFee{}, 0},
		{"fixed", 10000, pricing.FixedFee{Amount: dec("0.30")}, 30},
		{"fixed ignores base", 0, pricing.FixedFee{Amount: dec("5")}, 500},
		{"percentage", 10000, pricing.PercentageFee{Percentage: dec("2.9")}, 290},
		{"percentage rounds down", 10001, pricing.PercentageFee{Percentage: dec("2.5")}, 250},
		{"percentage half rounds up", 50, pricing.PercentageFee{Percentage: dec("1")}, 1},
		{"mixed", 10000, pricing.MixedFee{Percentage: dec("2.9"), FixedAmount: dec("0.30")}, 320},
		{"mixed zero base", 0, pricing.MixedFee{Percentage: dec("2.9"), FixedAmount: dec("0.30")}, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pricing.ComputeFee(tc.base, tc.policy)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeFee_MixedRoundsComponentsIndependently(t *testing.T) {
	// GIVEN: 1.5% of 100 cents is 1.5 cents, fixed part 0.005 is 0.5 cents
	// WHEN: each part is rounded on its own
	// THEN: 2 + 1 = 3, not round(1.5 + 0.5) = 2
	got, err := pricing.ComputeFee(100, pricing.MixedFee{Percentage: dec("1.5"), FixedAmount: dec("0.005")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
}

func TestComputeFee_NegativeComponentsFail(t *testing.T) {
	bad := []pricing.FeePolicy{
		pricing.FixedFee{Amount: dec("-0.01")},
		pricing.PercentageFee{Percentage: dec("-1")},
		pricing.MixedFee{Percentage: dec("-2.9"), FixedAmount: dec("0.30")},
		pricing.MixedFee{Percentage: dec("2.9"), FixedAmount: dec("-0.30")},
	}
	for _, p := range bad {
		_, err := pricing.ComputeFee(10000, p)
		assert.ErrorIs(t, err, pricing.ErrInvalidPolicy, "%T", p)
	}

	var pe *pricing.PolicyError
	_, err := pricing.ComputeFee(10000, pricing.MixedFee{Percentage: dec("2.9"), FixedAmount: dec("-0.30")})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fixed_amount", pe.Field)
}

func TestConstructors_Validate(t *testing.T) {
	_, err := pricing.NewFixedFee(dec("-1"))
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)
	_, err = pricing.NewPercentageFee(dec("-0.1"))
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)
	_, err = pricing.NewMixedFee(dec("1"), dec("-1"))
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)

	p, err := pricing.NewMixedFee(dec("2.9"), dec("0.30"))
	require.NoError(t, err)
	assert.Equal(t, pricing.FeeMixed, p.Kind())

	assert.Panics(t, func() { pricing.MustMixedFee("-1", "0") })
}

func TestComputeFee_RejectsNilAndPointerVariants(t *testing.T) {
	_, err := pricing.ComputeFee(100, nil)
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)

	_, err = pricing.ComputeFee(100, &pricing.FixedFee{Amount: dec("1")})
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)
}

func TestValidate_TypedNilVariantsDoNotPanic(t *testing.T) {
	typedNils := []pricing.FeePolicy{
		(*pricing.NoFee)(nil),
		(*pricing.FixedFee)(nil),
		(*pricing.PercentageFee)(nil),
		(*pricing.MixedFee)(nil),
	}
	for _, p := range typedNils {
		assert.NotPanics(t, func() {
			err := pricing.Validate(p)
			assert.ErrorIs(t, err, pricing.ErrInvalidPolicy, "%T", p)
		})
		_, err := pricing.ComputeFee(100, p)
		assert.ErrorIs(t, err, pricing.ErrInvalidPolicy, "%T", p)
	}
}

func TestComputeFee_RejectsFeesBeyondMaxCents(t *testing.T) {
	cases := []struct {
		name   string
		base   int64
		policy pricing.FeePolicy
		ok     bool
		err    error
	}{
		{"percentage at limit", pricing.MaxCents, pricing.PercentageFee{Percentage: dec("100")}, true, nil},
		{"percentage over limit", 9_000_000_000_000_000_000, pricing.PercentageFee{Percentage: dec("300")}, false, pricing.ErrInvalidAmount},
		{"percentage multiplies past limit", pricing.MaxCents, pricing.PercentageFee{Percentage: dec("101")}, false, pricing.ErrInvalidAmount},
		{"mixed sum past limit", pricing.MaxCents, pricing.MixedFee{Percentage: dec("100"), FixedAmount: dec("0.01")}, false, pricing.ErrInvalidAmount},
		{"fixed at limit", 0, pricing.FixedFee{Amount: dec("10000000000000")}, true, nil},
		{"fixed over limit", 0, pricing.FixedFee{Amount: dec("10000000000000.01")}, false, pricing.ErrInvalidPolicy},
		{"mixed fixed over limit", 0, pricing.MixedFee{Percentage: dec("1"), FixedAmount: dec("1e16")}, false, pricing.ErrInvalidPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pricing.ComputeFee(tc.base, tc.policy)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, pricing.MaxCents, got)
				return
			}
			assert.ErrorIs(t, err, tc.err)
			assert.Zero(t, got)
		})
	}

	_, err := pricing.NewFixedFee(dec("1e16"))
	var pe *pricing.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "too large", pe.Reason)
}

// Every declared kind must have a concrete variant the evaluator accepts.
func TestComputeFee_HandlesEveryKind(t *testing.T) {
	variants := map[pricing.FeeKind]pricing.FeePolicy{
		pricing.FeeNone:       pricing.NoFee{},
		pricing.FeeFixed:      pricing.FixedFee{Amount: dec("1")},
		pricing.FeePercentage: pricing.PercentageFee{Percentage: dec("1")},
		pricing.FeeMixed:      pricing.MixedFee{Percentage: dec("1"), FixedAmount: dec("1")},
	}
	for _, kind := range pricing.FeeKinds() {
		p, ok := variants[kind]
		require.True(t, ok, "no test variant for kind %s", kind)
		assert.Equal(t, kind, p.Kind())
		_, err := pricing.ComputeFee(1000, p)
		assert.NoError(t, err, "kind %s", kind)
	}
	assert.Len(t, variants, len(pricing.FeeKinds()))
}

// =============================================================================
// PRICE ENGINE
// =============================================================================

func TestCompute_ZeroFeeIdentity(t *testing.T) {
	b, err := pricing.Compute(pricing.PriceInput{
		Base:       usd(t, "199.99"),
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.NoFee{},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(19999), b.TotalAmount.Cents)
	assert.True(t, b.TotalAmount.Value.Equal(dec("199.99")))
	assert.Equal(t, pricing.FeeBasePreFeeTotal, b.GatewayFeeBase)
}

func TestCompute_FamilyBookingExample(t *testing.T) {
	// GIVEN: 2 adults + 1 infant at 199.99 -> 419.979, 3% buffer, Stripe 2.9% + 0.30
	b, err := pricing.Compute(pricing.PriceInput{
		Base:             usd(t, "419.979"),
		Markup:           pricing.NoFee{},
		VolatilityBuffer: pricing.MustPercentageFee("3"),
		GatewayFee:       pricing.MustMixedFee("2.9", "0.30"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(41998), b.Subtotal.Cents)
	assert.Equal(t, int64(0), b.MarkupAmount.Cents)
	assert.Equal(t, int64(1260), b.VolatilityBufferAmount.Cents)
	assert.Equal(t, int64(43258), b.PreFeeTotal().Cents)
	assert.Equal(t, int64(1284), b.GatewayFeeAmount.Cents)
	assert.Equal(t, int64(44542), b.TotalAmount.Cents)
	assert.Equal(t, "445.42", b.TotalAmount.String())
	assert.NoError(t, b.Verify())
}

func TestCompute_GatewayFeeBaseModes(t *testing.T) {
	in := pricing.PriceInput{
		Base:             usd(t, "100.00"),
		Markup:           pricing.MustPercentageFee("10"),
		VolatilityBuffer: pricing.MustPercentageFee("3"),
		GatewayFee:       pricing.MustMixedFee("2.9", "0.30"),
	}

	pre, err := pricing.Compute(in)
	require.NoError(t, err)
	// 11300 * 2.9% = 327.7 -> 328, + 30
	assert.Equal(t, int64(358), pre.GatewayFeeAmount.Cents)
	assert.Equal(t, int64(11658), pre.TotalAmount.Cents)

	in.GatewayFeeBase = pricing.FeeBaseBaseOnly
	baseOnly, err := pricing.Compute(in)
	require.NoError(t, err)
	// 10000 * 2.9% = 290, + 30
	assert.Equal(t, int64(320), baseOnly.GatewayFeeAmount.Cents)
	assert.Equal(t, int64(11620), baseOnly.TotalAmount.Cents)
	assert.Equal(t, pricing.FeeBaseBaseOnly, baseOnly.GatewayFeeBase)

	in.GatewayFeeBase = "customer_total"
	_, err = pricing.Compute(in)
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)
}

func TestCompute_Failures(t *testing.T) {
	_, err := pricing.Compute(pricing.PriceInput{
		Base:       pricing.Money{Amount: dec("10"), Currency: "EUR"},
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.NoFee{},
	})
	assert.ErrorIs(t, err, pricing.ErrUnsupportedCurrency)

	_, err = pricing.Compute(pricing.PriceInput{
		Base:       pricing.Money{Amount: dec("-0.01"), Currency: pricing.USD},
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.NoFee{},
	})
	assert.ErrorIs(t, err, pricing.ErrInvalidAmount)

	_, err = pricing.Compute(pricing.PriceInput{
		Base:       usd(t, "10"),
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.PercentageFee{Percentage: dec("-2.9")},
	})
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)

	_, err = pricing.Compute(pricing.PriceInput{Base: usd(t, "10"), GatewayFee: pricing.NoFee{}})
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy, "markup is required")
}

func TestCompute_RejectsTotalsBeyondMaxCents(t *testing.T) {
	// GIVEN: a base far beyond any real fare
	_, err := pricing.Compute(pricing.PriceInput{
		Base:       usd(t, "1e20"),
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.NoFee{},
	})
	assert.ErrorIs(t, err, pricing.ErrInvalidAmount)

	// GIVEN: a base exactly at the limit that the buffer pushes over
	_, err = pricing.Compute(pricing.PriceInput{
		Base:             usd(t, "10000000000000"),
		Markup:           pricing.NoFee{},
		VolatilityBuffer: pricing.PercentageFee{Percentage: dec("3")},
		GatewayFee:       pricing.NoFee{},
	})
	var ae *pricing.AmountError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "pre_fee_total", ae.Field)

	// GIVEN: a pre-fee total at the limit and a gateway fee on top
	_, err = pricing.Compute(pricing.PriceInput{
		Base:       usd(t, "10000000000000"),
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.FixedFee{Amount: dec("0.30")},
	})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "total", ae.Field)

	// THEN: the limit itself still prices
	b, err := pricing.Compute(pricing.PriceInput{
		Base:       usd(t, "10000000000000"),
		Markup:     pricing.NoFee{},
		GatewayFee: pricing.NoFee{},
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.MaxCents, b.TotalAmount.Cents)
}

func TestCompute_TotalIsSumOfRoundedParts(t *testing.T) {
	policies := []pricing.FeePolicy{
		pricing.NoFee{},
		pricing.MustPercentageFee("3"),
		pricing.MustPercentageFee("7.25"),
		pricing.MustMixedFee("2.9", "0.30"),
		pricing.MustMixedFee("3.49", "0.49"),
		pricing.FixedFee{Amount: dec("1.99")},
	}
	for cents := int64(0); cents < 250000; cents += 997 {
		for _, markup := range policies {
			for _, gw := range policies {
				b, err := pricing.Compute(pricing.PriceInput{
					Base:             pricing.USDCents(cents),
					Markup:           markup,
					VolatilityBuffer: pricing.MustPercentageFee("3"),
					GatewayFee:       gw,
				})
				require.NoError(t, err)
				sum := b.Subtotal.Cents + b.MarkupAmount.Cents + b.VolatilityBufferAmount.Cents + b.GatewayFeeAmount.Cents
				require.Equal(t, sum, b.TotalAmount.Cents)
				require.True(t, b.TotalAmount.Value.Equal(pricing.FromCents(sum)))
			}
		}
	}
}

func TestCompute_IsDeterministic(t *testing.T) {
	in := pricing.PriceInput{
		Base:             usd(t, "1234.567"),
		Markup:           pricing.MustPercentageFee("4.5"),
		VolatilityBuffer: pricing.MustPercentageFee("3"),
		GatewayFee:       pricing.MustMixedFee("2.9", "0.30"),
	}
	first, err := pricing.Compute(in)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := pricing.Compute(in)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestPriceBreakdown_VerifyDetectsDrift(t *testing.T) {
	b := pricing.PriceBreakdown{
		Subtotal:    pricing.NewAmount(1000),
		TotalAmount: pricing.NewAmount(1001),
	}
	assert.ErrorIs(t, b.Verify(), pricing.ErrInvalidAmount)
}
