// Package walletrpc implements a JSON-RPC 2.0 client for monero-wallet-rpc
// compatible wallet services.
package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// ErrTransferNotFound reports that the wallet does not know the requested
// transaction for the probed account. Callers treat it as control flow, not
// a failure.
var ErrTransferNotFound = errors.New("transfer not found")

const rpcRequestTimeout = 30 * time.Second

// WalletClient is the wallet RPC surface consumed by the reconciliation
// core. All methods are safe for concurrent use.
type WalletClient interface {
	// GetTransfers returns incoming transfers for one account, filtered to
	// the given subaddress indices.
	GetTransfers(ctx context.Context, accountIndex uint64, subaddrIndices []uint64) ([]Transfer, error)

	// GetAccounts returns every account index known to the wallet.
	GetAccounts(ctx context.Context) ([]uint64, error)

	// GetTransferByTxID looks up a transaction in one account. Returns
	// ErrTransferNotFound when the account does not own the transaction.
	GetTransferByTxID(ctx context.Context, txID string, accountIndex *uint64) (*TransferByTxID, error)

	// GetHeight returns the wallet's current blockchain height. Used as a
	// liveness probe.
	GetHeight(ctx context.Context) (uint64, error)
}

// RPCError is a JSON-RPC level error returned by the wallet service.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc %s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// Client talks JSON-RPC 2.0 to a single wallet endpoint.
type Client struct {
	endpoint   string
	username   string
	password   string
	httpClient *http.Client
	log        logger.Interface
}

// NewClient creates a wallet RPC client for the given base URL.
func NewClient(rpcURL, username, password string, log logger.Interface) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(rpcURL, "/") + "/json_rpc",
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: rpcRequestTimeout,
		},
		log: log,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet rpc %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet rpc %s returned status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if rpcResp.Error != nil {
		return &RPCError{Method: method, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
		}
	}

	return nil
}

func (c *Client) GetTransfers(ctx context.Context, accountIndex uint64, subaddrIndices []uint64) ([]Transfer, error) {
	var resp getTransfersResponse
	err := c.call(ctx, "get_transfers", getTransfersRequest{
		AccountIndex:   accountIndex,
		In:             true,
		SubaddrIndices: subaddrIndices,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.In, nil
}

func (c *Client) GetAccounts(ctx context.Context) ([]uint64, error) {
	var resp getAccountsResponse
	if err := c.call(ctx, "get_accounts", struct{}{}, &resp); err != nil {
		return nil, err
	}

	indexes := make([]uint64, 0, len(resp.SubaddressAccounts))
	for _, account := range resp.SubaddressAccounts {
		indexes = append(indexes, uint64(account.AccountIndex))
	}
	return indexes, nil
}

func (c *Client) GetTransferByTxID(ctx context.Context, txID string, accountIndex *uint64) (*TransferByTxID, error) {
	var resp TransferByTxID
	err := c.call(ctx, "get_transfer_by_txid", getTransferByTxIDRequest{
		TxID:         txID,
		AccountIndex: accountIndex,
	}, &resp)
	if err != nil {
		// The wallet answers an RPC-level error when the account does not
		// own the transaction; transport failures stay errors.
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, rpcErr.Message)
		}
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var resp getHeightResponse
	if err := c.call(ctx, "get_height", struct{}{}, &resp); err != nil {
		return 0, err
	}
	return uint64(resp.Height), nil
}
