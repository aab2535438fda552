package monero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"xmrbridge/config"
)

// Client talks to monero-wallet-rpc over JSON-RPC 2.0 with Basic auth.
type Client struct {
	config config.MoneroConfig
	client *http.Client
}

// NewClient creates a new Monero wallet client.
func NewClient(cfg config.MoneroConfig) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{},
	}
}

// RPCRequest represents a JSON-RPC request to monero-wallet-rpc.
type RPCRequest struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response from monero-wallet-rpc.
type RPCResponse struct {
	JSONRpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents an error in the RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("monero rpc error (code %d): %s", e.Code, e.Message)
}

// CreateAddress creates a fresh subaddress under the configured account and
// returns the address together with its index.
func (c *Client) CreateAddress(ctx context.Context) (string, uint32, error) {
	params := map[string]interface{}{
		"account_index": c.config.AccountIndex,
		"count":         1,
	}

	result, err := c.callRPC(ctx, "create_address", params)
	if err != nil {
		return "", 0, fmt.Errorf("create_address failed: %w", err)
	}

	var addrResult struct {
		Address      string   `json:"address"`
		AddressIndex uint32   `json:"address_index"`
		Addresses    []string `json:"addresses"`
	}
	if err := json.Unmarshal(result, &addrResult); err != nil {
		return "", 0, fmt.Errorf("failed to parse create_address result: %w", err)
	}

	address := addrResult.Address
	if len(addrResult.Addresses) > 0 {
		address = addrResult.Addresses[0]
	}
	if address == "" {
		return "", 0, fmt.Errorf("empty subaddress returned")
	}

	return address, addrResult.AddressIndex, nil
}

// SubaddressBalance reports the funds held by a single subaddress.
type SubaddressBalance struct {
	AddressIndex    uint32 `json:"address_index"`
	Balance         uint64 `json:"balance"`
	UnlockedBalance uint64 `json:"unlocked_balance"`
	BlocksToUnlock  uint64 `json:"blocks_to_unlock"`
}

// GetBalance returns the balance entry for the given subaddress index, or an
// error if the wallet does not report the index.
func (c *Client) GetBalance(ctx context.Context, subaddressIndex uint32) (*SubaddressBalance, error) {
	params := map[string]interface{}{
		"account_index":   c.config.AccountIndex,
		"address_indices": []uint32{subaddressIndex},
	}

	result, err := c.callRPC(ctx, "get_balance", params)
	if err != nil {
		return nil, fmt.Errorf("get_balance failed: %w", err)
	}

	var balanceResult struct {
		PerSubaddress []SubaddressBalance `json:"per_subaddress"`
	}
	if err := json.Unmarshal(result, &balanceResult); err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}

	for i := range balanceResult.PerSubaddress {
		if balanceResult.PerSubaddress[i].AddressIndex == subaddressIndex {
			return &balanceResult.PerSubaddress[i], nil
		}
	}

	return nil, fmt.Errorf("no balance entry for subaddress index %d", subaddressIndex)
}

// Transfer is a single incoming transfer as reported by get_transfers.
type Transfer struct {
	Amount          uint64 `json:"amount"`
	TxID            string `json:"txid"`
	UnlockTime      uint64 `json:"unlock_time"`
	DoubleSpendSeen bool   `json:"double_spend_seen"`
	Confirmations   uint64 `json:"confirmations"`
}

// Transfers groups the confirmed and mempool transfers for a subaddress.
type Transfers struct {
	// In holds confirmed incoming transfers.
	In []Transfer `json:"in"`

	// Pool holds unconfirmed transfers still in the mempool.
	Pool []Transfer `json:"pool"`
}

// GetTransfers returns the confirmed and pool transfers addressed to the given
// subaddress index.
func (c *Client) GetTransfers(ctx context.Context, subaddressIndex uint32) (*Transfers, error) {
	params := map[string]interface{}{
		"in":               true,
		"out":              false,
		"pending":          true,
		"failed":           false,
		"pool":             true,
		"filter_by_height": false,
		"account_index":    c.config.AccountIndex,
		"subaddr_indices":  []uint32{subaddressIndex},
	}

	result, err := c.callRPC(ctx, "get_transfers", params)
	if err != nil {
		return nil, fmt.Errorf("get_transfers failed: %w", err)
	}

	var transfers Transfers
	if err := json.Unmarshal(result, &transfers); err != nil {
		return nil, fmt.Errorf("failed to parse transfers: %w", err)
	}

	return &transfers, nil
}

// SweepAll transfers all unlocked funds from the given subaddress to the
// target address and returns the resulting transaction hashes. An empty list
// means the wallet found nothing to sweep.
func (c *Client) SweepAll(ctx context.Context, subaddressIndex uint32, targetAddress string) ([]string, error) {
	params := map[string]interface{}{
		"address":         targetAddress,
		"account_index":   c.config.AccountIndex,
		"subaddr_indices": []uint32{subaddressIndex},
		"get_tx_keys":     true,
	}

	result, err := c.callRPC(ctx, "sweep_all", params)
	if err != nil {
		return nil, fmt.Errorf("sweep_all failed: %w", err)
	}

	var sweepResult struct {
		TxHashList []string `json:"tx_hash_list"`
	}
	if err := json.Unmarshal(result, &sweepResult); err != nil {
		return nil, fmt.Errorf("failed to parse sweep result: %w", err)
	}

	return sweepResult.TxHashList, nil
}

// AddressInfo is the wallet's view of a validated address.
type AddressInfo struct {
	Valid            bool   `json:"valid"`
	Integrated       bool   `json:"integrated"`
	Subaddress       bool   `json:"subaddress"`
	Nettype          string `json:"nettype"`
	OpenaliasAddress string `json:"openalias_address"`
}

// ValidateAddress checks whether the given string is a valid Monero address.
func (c *Client) ValidateAddress(ctx context.Context, address string) (*AddressInfo, error) {
	params := map[string]interface{}{
		"address": address,
	}

	result, err := c.callRPC(ctx, "validate_address", params)
	if err != nil {
		return nil, fmt.Errorf("validate_address failed: %w", err)
	}

	var info AddressInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to parse address info: %w", err)
	}

	return &info, nil
}

// callRPC makes a JSON-RPC call to monero-wallet-rpc.
func (c *Client) callRPC(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	rpcReq := RPCRequest{
		JSONRpc: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	}

	reqBody, err := json.Marshal(rpcReq)
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

	var rpcResp RPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
