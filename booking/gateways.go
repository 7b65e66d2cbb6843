/*
gateways.go - Pre-built gateway fee configurations

PURPOSE:
  Ready-to-use fee settings for the payment gateways we integrate with.
  These are defaults; the rate card can override every value.

AVAILABLE GATEWAYS:
  Stripe:        2.9% + $0.30, 3% volatility buffer
  PayPal:        3.49% + $0.49, 3% volatility buffer
  BankTransfer:  no gateway fee, 3% volatility buffer

SEE ALSO:
  - orchestrator.go: Uses Config to price a booking
  - factory/ratecard.go: JSON/YAML rate card overriding these values
*/
package booking

import "github.com/warp/fare-engine/pricing"

type GatewayID string

const (
	GatewayStripe       GatewayID = "stripe"
	GatewayPayPal       GatewayID = "paypal"
	GatewayBankTransfer GatewayID = "bank_transfer"
)

// GatewaySettings is the fee configuration read for one gateway.
type GatewaySettings struct {
	Fee              pricing.FeePolicy
	VolatilityBuffer pricing.FeePolicy
}

// DefaultVolatilityBuffer is the buffer applied when a gateway does not set one.
func DefaultVolatilityBuffer() pricing.FeePolicy {
	return pricing.MustPercentageFee("3")
}

func StripeGateway() GatewaySettings {
	return GatewaySettings{
		Fee:              pricing.MustMixedFee("2.9", "0.30"),
		VolatilityBuffer: DefaultVolatilityBuffer(),
	}
}

func PayPalGateway() GatewaySettings {
	return GatewaySettings{
		Fee:              pricing.MustMixedFee("3.49", "0.49"),
		VolatilityBuffer: DefaultVolatilityBuffer(),
	}
}

func BankTransferGateway() GatewaySettings {
	return GatewaySettings{
		Fee:              pricing.NoFee{},
		VolatilityBuffer: DefaultVolatilityBuffer(),
	}
}

// DefaultConfig wires the built-in gateways with no markup and three age tiers.
func DefaultConfig() Config {
	return Config{
		Markup: pricing.NoFee{},
		Gateways: map[GatewayID]GatewaySettings{
			GatewayStripe:       StripeGateway(),
			GatewayPayPal:       PayPalGateway(),
			GatewayBankTransfer: BankTransferGateway(),
		},
		AgeRules: ThreeTierRules(),
	}
}
