package swap

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"xmrbridge/pkg/lightning"
)

// LiquidityGate is the admission control in front of quote acceptance: it
// rejects swaps the service cannot safely pay out.
type LiquidityGate struct {
	wallet            lightning.Wallet
	maxAmountBTC      decimal.Decimal
	minLiquidityRatio decimal.Decimal
}

// NewLiquidityGate creates a gate with the given ceiling and minimum
// local-liquidity ratio.
func NewLiquidityGate(wallet lightning.Wallet, maxAmountBTC, minLiquidityRatio decimal.Decimal) *LiquidityGate {
	return &LiquidityGate{
		wallet:            wallet,
		maxAmountBTC:      maxAmountBTC,
		minLiquidityRatio: minLiquidityRatio,
	}
}

// Check runs the three admission checks for the given invoice amount. A
// *RejectionError means the swap must not be created; any other error is a
// transport failure and the caller may retry.
func (g *LiquidityGate) Check(ctx context.Context, amountBTC decimal.Decimal) error {
	channels, err := g.wallet.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	var localSats, remoteSats int64
	for _, ch := range channels {
		localSats += ch.LocalBalance
		remoteSats += ch.RemoteBalance
	}

	local := lightning.BTCFromSats(localSats)
	if local.LessThan(amountBTC) {
		return &RejectionError{Reason: "insufficient local channel balance for this invoice"}
	}

	capacity := lightning.BTCFromSats(localSats + remoteSats)
	if capacity.IsZero() {
		return &RejectionError{Reason: "no channels or zero capacity"}
	}
	ratio := local.Div(capacity)
	if ratio.LessThan(g.minLiquidityRatio) {
		return &RejectionError{
			Reason: fmt.Sprintf("send liquidity %s is below the %s minimum",
				ratio.Round(4), g.minLiquidityRatio),
		}
	}

	if amountBTC.GreaterThan(g.maxAmountBTC) {
		return &RejectionError{
			Reason: fmt.Sprintf("invoice amount %s BTC is above the %s BTC ceiling",
				amountBTC, g.maxAmountBTC),
		}
	}

	return nil
}
