package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"xmrbridge/config"
)

// SatoshisPerBTC is the number of satoshis in one BTC.
const SatoshisPerBTC = 1e8

// Invoice is a decoded Lightning invoice.
type Invoice struct {
	// Raw is the original bolt11 invoice string.
	Raw string

	PaymentHash string
	AmountBTC   decimal.Decimal
	Description string
}

// Channel is a single Lightning channel with its balance split.
type Channel struct {
	ChannelID     string `json:"channel_id"`
	LocalBalance  int64  `json:"local_balance"`
	RemoteBalance int64  `json:"remote_balance"`
}

// PayResult is the outcome of an outbound Lightning payment.
type PayResult struct {
	Success  bool            `json:"success"`
	Preimage string          `json:"preimage"`
	Payload  json.RawMessage `json:"-"`
}

// Wallet is the Lightning wallet surface consumed by the swap service. The
// JSON-RPC Client implements it; tests substitute fakes.
type Wallet interface {
	DecodeInvoice(ctx context.Context, invoice string) (*Invoice, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	PayInvoice(ctx context.Context, invoice string) (*PayResult, error)
	AddInvoice(ctx context.Context, amountBTC decimal.Decimal, description string) (string, error)
}

// Client talks to the Lightning wallet daemon over JSON-RPC.
type Client struct {
	config config.LightningConfig
	client *http.Client
}

var _ Wallet = (*Client)(nil)

// NewClient creates a new Lightning wallet client.
func NewClient(cfg config.LightningConfig) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{},
	}
}

// DecodeInvoice decodes a bolt11 invoice into its payment hash, amount and
// description.
func (c *Client) DecodeInvoice(ctx context.Context, invoice string) (*Invoice, error) {
	result, err := c.callRPC(ctx, "decode_invoice", map[string]interface{}{
		"invoice": invoice,
	})
	if err != nil {
		return nil, fmt.Errorf("decode_invoice failed: %w", err)
	}

	var decoded struct {
		PaymentHash string `json:"payment_hash"`
		AmountBTC   string `json:"amount_btc"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse decoded invoice: %w", err)
	}

	amount, err := decimal.NewFromString(decoded.AmountBTC)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice amount %q: %w", decoded.AmountBTC, err)
	}

	return &Invoice{
		Raw:         invoice,
		PaymentHash: decoded.PaymentHash,
		AmountBTC:   amount,
		Description: decoded.Description,
	}, nil
}

// ListChannels returns all open channels with their balance split in satoshis.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	result, err := c.callRPC(ctx, "list_channels", nil)
	if err != nil {
		return nil, fmt.Errorf("list_channels failed: %w", err)
	}

	var channels []Channel
	if err := json.Unmarshal(result, &channels); err != nil {
		return nil, fmt.Errorf("failed to parse channels: %w", err)
	}

	return channels, nil
}

// PayInvoice pays the given bolt11 invoice from the wallet's channel funds.
// The full response payload is preserved for logging.
func (c *Client) PayInvoice(ctx context.Context, invoice string) (*PayResult, error) {
	result, err := c.callRPC(ctx, "lnpay", map[string]interface{}{
		"invoice": invoice,
	})
	if err != nil {
		return nil, fmt.Errorf("lnpay failed: %w", err)
	}

	var payResult PayResult
	if err := json.Unmarshal(result, &payResult); err != nil {
		return nil, fmt.Errorf("failed to parse payment result: %w", err)
	}
	payResult.Payload = result

	return &payResult, nil
}

// AddInvoice issues a new invoice for the given amount and returns the bolt11
// string.
func (c *Client) AddInvoice(ctx context.Context, amountBTC decimal.Decimal, description string) (string, error) {
	result, err := c.callRPC(ctx, "add_invoice", map[string]interface{}{
		"amount":      amountBTC.String(),
		"description": description,
	})
	if err != nil {
		return "", fmt.Errorf("add_invoice failed: %w", err)
	}

	var invoiceResult struct {
		Invoice string `json:"invoice"`
	}
	if err := json.Unmarshal(result, &invoiceResult); err != nil {
		return "", fmt.Errorf("failed to parse invoice result: %w", err)
	}
	if invoiceResult.Invoice == "" {
		return "", fmt.Errorf("empty invoice returned")
	}

	return invoiceResult.Invoice, nil
}

// BTCFromSats converts a satoshi amount to BTC.
func BTCFromSats(sats int64) decimal.Decimal {
	return decimal.New(sats, -8)
}

type rpcRequest struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("lightning rpc error (code %d): %s", e.Code, e.Message)
}

// callRPC makes a JSON-RPC call to the Lightning wallet daemon.
func (c *Client) callRPC(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRpc: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.Username != "" && c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RPC returned status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
