package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"xmrbridge/config"
	"xmrbridge/pkg/ledger"
	"xmrbridge/pkg/lightning"
	"xmrbridge/pkg/monero"
	"xmrbridge/pkg/oracle"
	"xmrbridge/pkg/swap"
)

type fixture struct {
	server *httptest.Server

	decodeErr    error
	rateErr      error
	transfers    *monero.Transfers
	transfersErr error
	paySuccess   bool
}

func (f *fixture) DecodeInvoice(ctx context.Context, invoice string) (*lightning.Invoice, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &lightning.Invoice{
		Raw:         invoice,
		PaymentHash: "deadbeef",
		AmountBTC:   decimal.New(1, -3),
		Description: "coffee",
	}, nil
}

func (f *fixture) ListChannels(ctx context.Context) ([]lightning.Channel, error) {
	return []lightning.Channel{{LocalBalance: 500_000, RemoteBalance: 500_000}}, nil
}

func (f *fixture) PayInvoice(ctx context.Context, invoice string) (*lightning.PayResult, error) {
	return &lightning.PayResult{Success: f.paySuccess}, nil
}

func (f *fixture) AddInvoice(ctx context.Context, amountBTC decimal.Decimal, description string) (string, error) {
	return "lnbc1fake", nil
}

func (f *fixture) CreateAddress(ctx context.Context) (string, uint32, error) {
	return "74swapSubaddr", 7, nil
}

func (f *fixture) ValidateAddress(ctx context.Context, address string) (*monero.AddressInfo, error) {
	return &monero.AddressInfo{Valid: address != "garbage"}, nil
}

func (f *fixture) GetTransfers(ctx context.Context, index uint32) (*monero.Transfers, error) {
	if f.transfersErr != nil {
		return nil, f.transfersErr
	}
	if f.transfers == nil {
		return &monero.Transfers{}, nil
	}
	return f.transfers, nil
}

func (f *fixture) XMRBTCRate(ctx context.Context) (decimal.Decimal, error) {
	if f.rateErr != nil {
		return decimal.Zero, f.rateErr
	}
	return decimal.New(1, -2), nil
}

type nilStore struct{}

func (nilStore) Put(id string, rec ledger.Record) error { return nil }
func (nilStore) List() ([]ledger.Entry, error)          { return nil, nil }
func (nilStore) Delete(id string) error                 { return nil }

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{paySuccess: true}

	cfg := config.ServiceConfig{
		SettlementAddress: "54serviceSettleAddr",
		FeeRate:           mustDec("0.05"),
		MaxAmountBTC:      mustDec("0.0015"),
		MinLiquidityRatio: mustDec("0.10"),
		ZeroConfThreshold: mustDec("0.25"),
		QuoteTTL:          2 * time.Minute,
	}
	svc := swap.NewService(cfg, f, f, f, nilStore{}, nilStore{}, nil)
	f.server = httptest.NewServer(NewServer(svc, nil).Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, body := f.post(t, "/v1/quote", `{"invoice":"lnbc1m1test","refund_address":"49refundAddr"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "QUOTED", body["status"])
	require.Equal(t, "0.105000000000", body["xmr_amount_due"])
	require.Equal(t, "0.001", body["amount_btc"])
	require.NotEmpty(t, body["id"])
	require.NotEmpty(t, body["expires_at"])
}

func TestQuoteEndpointBadBody(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.post(t, "/v1/quote", `{broken`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuoteEndpointRejectionCarriesReason(t *testing.T) {
	f := newFixture(t)
	resp, body := f.post(t, "/v1/quote", `{"invoice":"lnbc1m1test","refund_address":"garbage"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, body["error"], "refund address")
}

func TestQuoteEndpointRateUnavailable(t *testing.T) {
	f := newFixture(t)
	f.rateErr = oracle.ErrRateUnavailable
	resp, _ := f.post(t, "/v1/quote", `{"invoice":"lnbc1m1test","refund_address":"49refundAddr"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownSessionIs404(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/v1/swaps/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusTransportErrorIsGeneric(t *testing.T) {
	f := newFixture(t)
	id := f.quoteAndAccept(t)

	f.transfersErr = errors.New("wallet rpc connection refused")
	resp, body := f.get(t, "/v1/swaps/"+id)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NotContains(t, body["error"], "connection refused")
}

func (f *fixture) quoteAndAccept(t *testing.T) string {
	t.Helper()
	resp, body := f.post(t, "/v1/quote", `{"invoice":"lnbc1m1test","refund_address":"49refundAddr"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := body["id"].(string)

	resp, body = f.post(t, "/v1/swaps/"+id+"/accept", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "AWAITING_PAYMENT", body["status"])
	require.Equal(t, "monero:74swapSubaddr?tx_amount=0.105", body["payment_uri"])
	return id
}

func TestFullSwapFlow(t *testing.T) {
	f := newFixture(t)
	id := f.quoteAndAccept(t)

	// Nothing paid yet.
	resp, body := f.get(t, "/v1/swaps/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["payment_received"])

	// Settling before payment is refused.
	resp, _ = f.post(t, "/v1/swaps/"+id+"/settle", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// The payment lands in the mempool; small swaps settle zero-conf.
	f.transfers = &monero.Transfers{Pool: []monero.Transfer{{Amount: 105_000_000_000}}}
	resp, body = f.get(t, "/v1/swaps/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["payment_received"])
	require.Equal(t, "PAYMENT_DETECTED", body["status"])

	resp, body = f.post(t, "/v1/swaps/"+id+"/settle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "SETTLED", body["status"])

	// Settled sessions are gone.
	resp, _ = f.get(t, "/v1/swaps/"+id)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFailedSettlement(t *testing.T) {
	f := newFixture(t)
	f.paySuccess = false
	id := f.quoteAndAccept(t)

	f.transfers = &monero.Transfers{Pool: []monero.Transfer{{Amount: 105_000_000_000}}}
	resp, _ := f.get(t, "/v1/swaps/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.post(t, "/v1/swaps/"+id+"/settle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "FAILED", body["status"])
}
