package swap

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/oracle"
)

// amountPrecision is the number of fractional digits carried by XMR amounts.
const amountPrecision = 12

// Quote is the XMR price offered for one Lightning invoice.
type Quote struct {
	Invoice     string
	PaymentHash string
	AmountBTC   decimal.Decimal
	Description string

	// Rate is the XMR/BTC exchange rate the quote was computed from.
	Rate decimal.Decimal

	// FeeRate is the margin applied on top of the converted amount.
	FeeRate decimal.Decimal

	// XMRAmountDue is the full amount the payer must send.
	XMRAmountDue decimal.Decimal
}

// QuoteEngine decodes Lightning invoices and prices them in XMR.
type QuoteEngine struct {
	wallet  lightning.Wallet
	rates   oracle.RateSource
	feeRate decimal.Decimal
}

// NewQuoteEngine creates a quote engine with the given fee rate.
func NewQuoteEngine(wallet lightning.Wallet, rates oracle.RateSource, feeRate decimal.Decimal) *QuoteEngine {
	return &QuoteEngine{
		wallet:  wallet,
		rates:   rates,
		feeRate: feeRate,
	}
}

// Quote decodes the invoice, fetches the current rate and computes the XMR
// amount due. It has no side effects beyond the oracle query.
func (e *QuoteEngine) Quote(ctx context.Context, invoice string) (*Quote, error) {
	decoded, err := e.wallet.DecodeInvoice(ctx, invoice)
	if err != nil {
		return nil, &InvoiceDecodeError{Err: err}
	}
	if !decoded.AmountBTC.IsPositive() {
		return nil, &InvoiceDecodeError{Err: fmt.Errorf("invoice carries no amount")}
	}

	rate, err := e.rates.XMRBTCRate(ctx)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Invoice:      invoice,
		PaymentHash:  decoded.PaymentHash,
		AmountBTC:    decoded.AmountBTC,
		Description:  decoded.Description,
		Rate:         rate,
		FeeRate:      e.feeRate,
		XMRAmountDue: AmountDue(decoded.AmountBTC, rate, e.feeRate),
	}, nil
}

// AmountDue converts a BTC amount to XMR at the given rate and applies the
// fee margin, rounded half-up to 12 decimals. The result is deterministic for
// fixed inputs.
func AmountDue(amountBTC, rate, feeRate decimal.Decimal) decimal.Decimal {
	converted := amountBTC.Div(rate)
	return converted.Mul(decimal.New(1, 0).Add(feeRate)).Round(amountPrecision)
}
