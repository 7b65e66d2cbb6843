package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
	"github.com/warp/fare-engine/store"
	"github.com/warp/fare-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleBreakdown() pricing.PriceBreakdown {
	return pricing.PriceBreakdown{
		Currency:               pricing.USD,
		GatewayFeeBase:         pricing.FeeBasePreFeeTotal,
		Subtotal:               pricing.NewAmount(41998),
		MarkupAmount:           pricing.NewAmount(0),
		VolatilityBufferAmount: pricing.NewAmount(1260),
		GatewayFeeAmount:       pricing.NewAmount(1284),
		TotalAmount:            pricing.NewAmount(44542),
	}
}

func TestStore_QuoteStoredVerbatim(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// GIVEN: a stored quote
	want := sampleBreakdown()
	require.NoError(t, st.SaveQuote(ctx, store.QuoteRecord{
		BookingID:  "BK-1",
		Gateway:    "stripe",
		AgeRules:   "three_tier",
		Passengers: []string{"adult", "adult", "infant"},
		Breakdown:  want,
	}))

	// WHEN: read back
	q, err := st.GetQuote(ctx, "BK-1")
	require.NoError(t, err)

	// THEN: every figure is unchanged
	assert.Equal(t, want.TotalAmount.Cents, q.Breakdown.TotalAmount.Cents)
	assert.Equal(t, want.GatewayFeeAmount.Cents, q.Breakdown.GatewayFeeAmount.Cents)
	assert.Equal(t, want.Subtotal.Cents, q.Breakdown.Subtotal.Cents)
	assert.Equal(t, "445.42", q.Breakdown.TotalAmount.String())
	assert.Equal(t, pricing.FeeBasePreFeeTotal, q.Breakdown.GatewayFeeBase)
	assert.Equal(t, []string{"adult", "adult", "infant"}, q.Passengers)
	assert.NoError(t, q.Breakdown.Verify())
	assert.False(t, q.CreatedAt.IsZero())
}

func TestStore_QuoteOncePerBooking(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.SaveQuote(ctx, store.QuoteRecord{BookingID: "BK-1", Gateway: "stripe", Breakdown: sampleBreakdown()}))
	err := st.SaveQuote(ctx, store.QuoteRecord{BookingID: "BK-1", Gateway: "paypal", Breakdown: sampleBreakdown()})
	assert.ErrorIs(t, err, store.ErrDuplicateBooking)

	_, err = st.GetQuote(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_RefundOncePerBooking(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	calc := refund.NewCalculator(refund.DefaultConfig())
	result, err := calc.Calculate(pricing.USDCents(50000), 10, true, pricing.USDCents(1500))
	require.NoError(t, err)

	rec := store.RefundRecord{
		BookingID:         "BK-1",
		IdempotencyKey:    "BK-1:refund",
		IsAirlineCancel:   true,
		HoursSincePayment: 10,
		Result:            result,
	}
	require.NoError(t, st.AppendRefund(ctx, rec))

	// A retry with the same key
	assert.ErrorIs(t, st.AppendRefund(ctx, rec), store.ErrDuplicateIdempotencyKey)

	// A second refund under another key, or none
	other := rec
	other.IdempotencyKey = "BK-1:second"
	assert.ErrorIs(t, st.AppendRefund(ctx, other), store.ErrBookingAlreadyRefunded)
	other.IdempotencyKey = ""
	assert.ErrorIs(t, st.AppendRefund(ctx, other), store.ErrBookingAlreadyRefunded)

	// Refunds without a key never collide across bookings
	require.NoError(t, st.AppendRefund(ctx, store.RefundRecord{BookingID: "BK-2", Result: result}))
	require.NoError(t, st.AppendRefund(ctx, store.RefundRecord{BookingID: "BK-3", Result: result}))

	got, err := st.ListRefunds(ctx, "BK-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BK-1:refund", got[0].IdempotencyKey)
	assert.True(t, got[0].IsAirlineCancel)
	assert.Equal(t, 10.0, got[0].HoursSincePayment)
	assert.Equal(t, refund.RuleAirlineCancellation, got[0].Result.Rule)
	assert.Equal(t, int64(50500), got[0].Result.RefundAmount.Cents)
	assert.Equal(t, int64(1500), got[0].Result.GatewayFeeRetained.Cents)
	assert.Equal(t, result.RetentionReason, got[0].Result.RetentionReason)

	keyless, err := st.ListRefunds(ctx, "BK-2")
	require.NoError(t, err)
	require.Len(t, keyless, 1)
	assert.Empty(t, keyless[0].IdempotencyKey)

	none, err := st.ListRefunds(ctx, "BK-4")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RateCardHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.LoadRateCard(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	v1, err := st.SaveRateCard(ctx, `{"markup":{"type":"none"}}`)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := st.SaveRateCard(ctx, `{"age_rules":{"name":"two_tier"}}`)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	current, err := st.LoadRateCard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, `{"age_rules":{"name":"two_tier"}}`, current.Document)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fares.db")

	st, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveQuote(ctx, store.QuoteRecord{BookingID: "BK-9", Gateway: "bank_transfer", Breakdown: sampleBreakdown()}))
	require.NoError(t, st.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	q, err := reopened.GetQuote(ctx, "BK-9")
	require.NoError(t, err)
	assert.Equal(t, int64(44542), q.Breakdown.TotalAmount.Cents)
	assert.NoError(t, reopened.Ping(ctx))
}
