package swap

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/oracle"
)

type fakeWallet struct {
	invoice    *lightning.Invoice
	decodeErr  error
	channels   []lightning.Channel
	listErr    error
	payResult  *lightning.PayResult
	payErr     error
	payCalls   int
	lastInvoice string
}

func (f *fakeWallet) DecodeInvoice(ctx context.Context, invoice string) (*lightning.Invoice, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.invoice, nil
}

func (f *fakeWallet) ListChannels(ctx context.Context) ([]lightning.Channel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.channels, nil
}

func (f *fakeWallet) PayInvoice(ctx context.Context, invoice string) (*lightning.PayResult, error) {
	f.payCalls++
	f.lastInvoice = invoice
	if f.payErr != nil {
		return nil, f.payErr
	}
	return f.payResult, nil
}

func (f *fakeWallet) AddInvoice(ctx context.Context, amountBTC decimal.Decimal, description string) (string, error) {
	return "lnbc1fake", nil
}

type fakeRates struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeRates) XMRBTCRate(ctx context.Context) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.rate, nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestAmountDue(t *testing.T) {
	// 0.001 BTC at 0.01 XMR/BTC with a 5% margin is exactly 0.105 XMR.
	due := AmountDue(dec(t, "0.001"), dec(t, "0.01"), dec(t, "0.05"))
	require.True(t, due.Equal(dec(t, "0.105")), "got %s", due)
}

func TestAmountDueRoundsHalfUp(t *testing.T) {
	// 1.5e-12 sits exactly on the rounding boundary and must round up.
	due := AmountDue(dec(t, "0.0000000000015"), dec(t, "1"), dec(t, "0"))
	require.True(t, due.Equal(dec(t, "0.000000000002")), "got %s", due)
}

func TestAmountDueTwelveDecimals(t *testing.T) {
	due := AmountDue(dec(t, "1"), dec(t, "3"), dec(t, "0"))
	require.True(t, due.Equal(dec(t, "0.333333333333")), "got %s", due)
}

func TestAmountDueDeterministic(t *testing.T) {
	amount, rate, fee := dec(t, "0.00123"), dec(t, "0.00456"), dec(t, "0.05")
	first := AmountDue(amount, rate, fee)
	for i := 0; i < 10; i++ {
		require.True(t, first.Equal(AmountDue(amount, rate, fee)))
	}
}

func TestQuoteEngine(t *testing.T) {
	wallet := &fakeWallet{
		invoice: &lightning.Invoice{
			Raw:         "lnbc1m1test",
			PaymentHash: "deadbeef",
			AmountBTC:   dec(t, "0.001"),
			Description: "coffee",
		},
	}
	engine := NewQuoteEngine(wallet, &fakeRates{rate: dec(t, "0.01")}, dec(t, "0.05"))

	quote, err := engine.Quote(context.Background(), "lnbc1m1test")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", quote.PaymentHash)
	require.Equal(t, "coffee", quote.Description)
	require.True(t, quote.XMRAmountDue.Equal(dec(t, "0.105")), "got %s", quote.XMRAmountDue)
}

func TestQuoteEngineDecodeError(t *testing.T) {
	wallet := &fakeWallet{decodeErr: errors.New("bad checksum")}
	engine := NewQuoteEngine(wallet, &fakeRates{rate: dec(t, "0.01")}, dec(t, "0.05"))

	_, err := engine.Quote(context.Background(), "garbage")
	var decodeErr *InvoiceDecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.True(t, IsBusinessError(err))
}

func TestQuoteEngineZeroAmountInvoice(t *testing.T) {
	wallet := &fakeWallet{invoice: &lightning.Invoice{AmountBTC: decimal.Zero}}
	engine := NewQuoteEngine(wallet, &fakeRates{rate: dec(t, "0.01")}, dec(t, "0.05"))

	_, err := engine.Quote(context.Background(), "lnbc1zero")
	var decodeErr *InvoiceDecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestQuoteEngineRateUnavailable(t *testing.T) {
	wallet := &fakeWallet{invoice: &lightning.Invoice{AmountBTC: dec(t, "0.001")}}
	engine := NewQuoteEngine(wallet, &fakeRates{err: oracle.ErrRateUnavailable}, dec(t, "0.05"))

	_, err := engine.Quote(context.Background(), "lnbc1m1test")
	require.ErrorIs(t, err, oracle.ErrRateUnavailable)
	require.False(t, IsBusinessError(err))
}
